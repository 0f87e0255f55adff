package olx

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"lot-analyze-pipeline/models"

	"github.com/google/uuid"
)

const maxSyntheticListings = 5

// priceRange is the fabricated price band for a category keyword.
type priceRange struct {
	min, max int
}

// syntheticPriceRanges maps a category keyword found in the search
// term to a plausible price band in currency units.
var syntheticPriceRanges = map[string]priceRange{
	"генератор":    {8000, 60000},
	"бензопила":    {2000, 15000},
	"компресор":    {3000, 25000},
	"зварювальний": {2500, 20000},
	"срібло":       {1500, 30000},
	"золото":       {5000, 150000},
	"годинник":     {2000, 80000},
	"монети":       {500, 40000},
}

var defaultPriceRange = priceRange{1000, 50000}

// Synthesizer fabricates placeholder listings when the live source is
// unreachable. The output only exists to keep the pipeline exercised
// and carries the synthetic origin tag end to end.
type Synthesizer struct {
	minPrice int

	// mu guards rng; the poll cycle and an ad-hoc search can hit the
	// fallback at the same time and rand.Rand is not goroutine-safe.
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSynthesizer(minPrice int) *Synthesizer {
	return &Synthesizer{
		minPrice: minPrice,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate fabricates up to 5 listings, one per a random sample of the
// configured search terms.
func (s *Synthesizer) Generate(terms []string) []models.Listing {
	if len(terms) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sample := make([]string, len(terms))
	copy(sample, terms)
	s.rng.Shuffle(len(sample), func(i, j int) {
		sample[i], sample[j] = sample[j], sample[i]
	})
	if len(sample) > maxSyntheticListings {
		sample = sample[:maxSyntheticListings]
	}

	now := time.Now()
	listings := make([]models.Listing, 0, len(sample))
	for _, term := range sample {
		id := "SYN-" + uuid.NewString()[:8]
		listings = append(listings, models.Listing{
			ExternalID: id,
			Title:      fmt.Sprintf("%s (приклад)", strings.TrimSpace(term)),
			Price:      s.priceFor(term),
			URL:        fmt.Sprintf("%s/d/uk/obyavlenie/synthetic-ID%s.html", baseURL, id),
			SearchTerm: term,
			Origin:     models.OriginSynthetic,
			FetchedAt:  now,
		})
	}
	return listings
}

func (s *Synthesizer) priceFor(term string) int {
	band := defaultPriceRange
	lower := strings.ToLower(term)
	for keyword, r := range syntheticPriceRanges {
		if strings.Contains(lower, keyword) {
			band = r
			break
		}
	}

	price := band.min + s.rng.Intn(band.max-band.min+1)
	if price < s.minPrice {
		price = s.minPrice
	}
	return price
}
