package services

import (
	"testing"

	"lot-analyze-pipeline/models"
)

func TestSimulatedMarketDeterministic(t *testing.T) {
	market := NewSimulatedMarket(10000)

	keywords := []string{"генератор", "honda", "2kw"}
	first := market.Lookup(keywords)
	for i := 0; i < 5; i++ {
		got := market.Lookup(keywords)
		if got != first {
			t.Fatalf("Lookup() not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestSimulatedMarketOrderIndependent(t *testing.T) {
	market := NewSimulatedMarket(10000)

	a := market.Lookup([]string{"honda", "генератор"})
	b := market.Lookup([]string{"генератор", "honda"})
	if a != b {
		t.Errorf("Lookup() depends on keyword order: %+v vs %+v", a, b)
	}

	// Normalization: case and surrounding whitespace are ignored.
	c := market.Lookup([]string{" Honda ", "ГЕНЕРАТОР"})
	if a != c {
		t.Errorf("Lookup() depends on keyword normalization: %+v vs %+v", a, c)
	}
}

func TestSimulatedMarketDistinctKeywordSets(t *testing.T) {
	market := NewSimulatedMarket(10000)

	a := market.Lookup([]string{"генератор"})
	b := market.Lookup([]string{"бензопила"})
	if a == b {
		t.Errorf("distinct keyword sets produced identical comparisons: %+v", a)
	}
}

func TestSimulatedMarketRanges(t *testing.T) {
	market := NewSimulatedMarket(10000)

	sets := [][]string{
		{"генератор"}, {"бензопила"}, {"годинник"}, {"монета"}, {"срібло"},
		{"rolex"}, {"omega"}, {"марки"}, {"компресор"}, {"статуетка"},
	}
	for _, keywords := range sets {
		comp := market.Lookup(keywords)
		if comp.AveragePrice < 1 {
			t.Errorf("Lookup(%v) average price %v below 1", keywords, comp.AveragePrice)
		}
		if comp.RarityScore < 0 || comp.RarityScore > 100 {
			t.Errorf("Lookup(%v) rarity %d out of range", keywords, comp.RarityScore)
		}
		if comp.MarketDepth < 1 || comp.MarketDepth > 50 {
			t.Errorf("Lookup(%v) depth %d out of range", keywords, comp.MarketDepth)
		}
	}
}

func TestLiquiditySnapshotTiers(t *testing.T) {
	market := NewSimulatedMarket(10000)

	for _, id := range []string{"A1", "B2", "C3", "D4", "E5", "F6", "G7", "H8"} {
		snap := market.LiquiditySnapshot(id)

		if snap.DaysListed < 0 || snap.DaysListed > 44 {
			t.Errorf("LiquiditySnapshot(%q) days %d out of range", id, snap.DaysListed)
		}

		want := models.LiquidityNormal
		switch {
		case snap.DaysListed <= 3:
			want = models.LiquidityFresh
		case snap.DaysListed > 21:
			want = models.LiquidityStale
		}
		if snap.Status != want {
			t.Errorf("LiquiditySnapshot(%q) = %d days but status %q, want %q",
				id, snap.DaysListed, snap.Status, want)
		}

		again := market.LiquiditySnapshot(id)
		if again != snap {
			t.Errorf("LiquiditySnapshot(%q) not deterministic: %+v vs %+v", id, again, snap)
		}
	}
}
