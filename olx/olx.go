package olx

import (
	"context"
	"fmt"
	"html"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"lot-analyze-pipeline/metrics"
	"lot-analyze-pipeline/models"

	"github.com/go-resty/resty/v2"
)

const (
	baseURL   = "https://www.olx.ua"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

var (
	// cardRegexp splits the search page into listing card blocks.
	cardRegexp = regexp.MustCompile(`(?s)<div[^>]+data-cy="l-card".*?(?:</div>\s*){3}`)
	// linkRegexp captures the detail-page link inside a card.
	linkRegexp = regexp.MustCompile(`href="(/d/[^"]+|https?://[^"]+/d/[^"]+)"`)
	// titleRegexp captures the fixed heading element.
	titleRegexp = regexp.MustCompile(`(?s)<h6[^>]*>(.*?)</h6>`)
	// priceRegexp captures the fixed price element.
	priceRegexp = regexp.MustCompile(`(?s)data-testid="ad-price"[^>]*>(.*?)</p>`)
	// imageRegexp captures the first image source inside a card.
	imageRegexp = regexp.MustCompile(`<img[^>]+src="(https?://[^"]+)"`)
	// idRegexp extracts the external identifier from the detail URL.
	idRegexp = regexp.MustCompile(`-ID([A-Za-z0-9]+)\.html`)
	// tagRegexp strips nested markup from extracted text.
	tagRegexp = regexp.MustCompile(`<[^>]+>`)
	// digitRegexp keeps digit runs for price parsing.
	digitRegexp = regexp.MustCompile(`\d`)
)

// Fetcher pulls listing candidates from the OLX search pages.
type Fetcher struct {
	client      *resty.Client
	baseURL     string
	minPrice    int
	maxPerTerm  int
	synthesizer *Synthesizer
}

// NewFetcher creates a fetcher with a price floor and a per-term cap.
func NewFetcher(minPrice, maxPerTerm int, timeout time.Duration) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)

	return &Fetcher{
		client:      client,
		baseURL:     baseURL,
		minPrice:    minPrice,
		maxPerTerm:  maxPerTerm,
		synthesizer: NewSynthesizer(minPrice),
	}
}

// FetchCandidates runs one search per term, all concurrently, and
// merges the results deduplicated by external identifier. A term whose
// fetch fails contributes nothing; it never aborts the batch. When the
// merged set comes back empty the synthetic fallback keeps the
// pipeline exercised, tagged so downstream consumers flag it.
func (f *Fetcher) FetchCandidates(ctx context.Context, terms []string, excludeIDs map[string]struct{}) []models.Listing {
	var mu sync.Mutex
	var wg sync.WaitGroup
	merged := make(map[string]models.Listing)
	fetched := 0

	for _, term := range terms {
		wg.Add(1)
		go func(term string) {
			defer wg.Done()

			listings, err := f.fetchTerm(ctx, term)
			if err != nil {
				metrics.FetchErrorsTotal.Inc()
				log.Printf("OLX fetch failed for %q: %v", term, err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			fetched += len(listings)
			for _, listing := range listings {
				if listing.Price < f.minPrice {
					continue
				}
				if _, seen := excludeIDs[listing.ExternalID]; seen {
					continue
				}
				// last-write-wins when two terms surface the same listing
				merged[listing.ExternalID] = listing
			}
		}(term)
	}
	wg.Wait()

	result := make([]models.Listing, 0, len(merged))
	for _, listing := range merged {
		result = append(result, listing)
	}

	// Synthesize only when the source yielded nothing at all. An empty
	// result after filtering means the cycle is simply caught up.
	if len(result) == 0 && fetched == 0 {
		synthetic := f.synthesizer.Generate(terms)
		log.Printf("OLX returned no candidates, synthesized %d placeholder listings", len(synthetic))
		return synthetic
	}
	return result
}

// fetchTerm loads the search page for one term and extracts up to
// maxPerTerm candidates.
func (f *Fetcher) fetchTerm(ctx context.Context, term string) ([]models.Listing, error) {
	searchPath := strings.ReplaceAll(strings.TrimSpace(term), " ", "-")
	url := fmt.Sprintf("%s/uk/list/q-%s/", f.baseURL, searchPath)

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	return f.extract(resp.String(), term), nil
}

// extract parses listing cards out of a search results page.
func (f *Fetcher) extract(page, term string) []models.Listing {
	cards := cardRegexp.FindAllString(page, -1)
	if len(cards) > f.maxPerTerm {
		cards = cards[:f.maxPerTerm]
	}

	now := time.Now()
	var listings []models.Listing
	for _, card := range cards {
		link := extractLink(card)
		id := ExtractID(link)
		title := extractText(card, titleRegexp)
		if id == "" || title == "" {
			continue
		}

		listings = append(listings, models.Listing{
			ExternalID: id,
			Title:      title,
			Price:      ParsePrice(extractText(card, priceRegexp)),
			URL:        link,
			ImageURL:   extractImage(card),
			SearchTerm: term,
			Origin:     models.OriginReal,
			FetchedAt:  now,
		})
	}
	return listings
}

// FetchImage downloads the listing photo. Synthetic listings and
// listings without a photo yield nil without error; the engine treats
// missing image data as a neutral classification.
func (f *Fetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if imageURL == "" {
		return nil, nil
	}

	resp, err := f.client.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// ExtractID parses the external identifier out of a detail-page URL.
// Returns "" when the URL does not match the detail pattern.
func ExtractID(url string) string {
	match := idRegexp.FindStringSubmatch(url)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// ParsePrice strips all non-digit characters and parses the remainder
// as an integer. A missing or digit-free price yields 0.
func ParsePrice(raw string) int {
	digits := strings.Join(digitRegexp.FindAllString(raw, -1), "")
	if digits == "" {
		return 0
	}
	price, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return price
}

func extractLink(card string) string {
	match := linkRegexp.FindStringSubmatch(card)
	if len(match) < 2 {
		return ""
	}
	link := match[1]
	if !strings.HasPrefix(link, "http") {
		link = baseURL + link
	}
	return link
}

func extractText(card string, re *regexp.Regexp) string {
	match := re.FindStringSubmatch(card)
	if len(match) < 2 {
		return ""
	}
	text := tagRegexp.ReplaceAllString(match[1], " ")
	return strings.Join(strings.Fields(html.UnescapeString(text)), " ")
}

func extractImage(card string) string {
	match := imageRegexp.FindStringSubmatch(card)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}
