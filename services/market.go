package services

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"

	"lot-analyze-pipeline/models"
)

// MarketDataProvider supplies comparable sale data for a keyword set.
// The simulated implementation stands in for a real pricing/auction
// feed; a real provider can be swapped in behind the same interface.
type MarketDataProvider interface {
	// Lookup must be deterministic for the same keyword set.
	Lookup(keywords []string) models.MarketComparison
	// LiquiditySnapshot returns a simulated days-listed figure for a
	// listing identifier. Display-only data.
	LiquiditySnapshot(listingID string) models.LiquiditySnapshot
}

// SimulatedMarket is a seeded pseudo-market. Output is stable per
// input so scoring tests stay reproducible, but it carries no real
// market information.
type SimulatedMarket struct {
	basePrice float64
	spread    float64
}

// NewSimulatedMarket creates a simulated provider centered on the
// given base comparable price in currency units.
func NewSimulatedMarket(basePrice float64) *SimulatedMarket {
	return &SimulatedMarket{basePrice: basePrice, spread: 0.8}
}

func (m *SimulatedMarket) Lookup(keywords []string) models.MarketComparison {
	rng := rand.New(rand.NewSource(seedFor(keywords)))

	// Average price varies within [base*(1-spread/2), base*(1+spread/2)].
	avg := m.basePrice * (1 + m.spread*(rng.Float64()-0.5))
	if avg < 1 {
		avg = 1
	}

	return models.MarketComparison{
		AveragePrice: float64(int(avg)),
		RarityScore:  rng.Intn(101),
		MarketDepth:  rng.Intn(50) + 1,
	}
}

func (m *SimulatedMarket) LiquiditySnapshot(listingID string) models.LiquiditySnapshot {
	rng := rand.New(rand.NewSource(seedFor([]string{listingID})))
	days := rng.Intn(45)

	status := models.LiquidityNormal
	switch {
	case days <= 3:
		status = models.LiquidityFresh
	case days > 21:
		status = models.LiquidityStale
	}

	return models.LiquiditySnapshot{DaysListed: days, Status: status}
}

// seedFor derives a stable seed from a keyword set. Keywords are
// normalized and sorted so ordering does not change the result.
func seedFor(keywords []string) int64 {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	sort.Strings(normalized)

	h := fnv.New64a()
	for _, kw := range normalized {
		h.Write([]byte(kw))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}
