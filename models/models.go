package models

import "time"

// Listing origin values. Synthetic listings come from the fallback
// generator and must never be presented as live marketplace data.
const (
	OriginReal      = "real"
	OriginSynthetic = "synthetic"
)

// Envelope categories produced by the valuation engine.
const (
	CategoryEquipment   = "equipment"
	CategorySpotMetal   = "spot_metal"
	CategoryCollectible = "collectible"
	CategoryRejected    = "rejected"
	CategoryError       = "error"
)

// Liquidity status tiers derived from the simulated days-listed figure.
const (
	LiquidityFresh  = "fresh"
	LiquidityNormal = "normal"
	LiquidityStale  = "stale"
)

// Listing is one marketplace candidate. Immutable once created; the
// external identifier is the dedup key across polling cycles.
type Listing struct {
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	Price      int       `json:"price"`
	URL        string    `json:"url"`
	ImageURL   string    `json:"image_url,omitempty"`
	SearchTerm string    `json:"search_term"`
	Origin     string    `json:"origin"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// EquipmentDetails is the classifier's nested equipment block.
type EquipmentDetails struct {
	Manufacturer   string `json:"manufacturer"`
	Model          string `json:"model"`
	Year           int    `json:"year"`
	OperatingHours int    `json:"operating_hours"`
	Condition      int    `json:"condition"`
}

// CollectibleDetails is the classifier's nested collectible block.
type CollectibleDetails struct {
	Brand            string `json:"brand"`
	Condition        int    `json:"condition"`
	AuthenticityRisk int    `json:"authenticity_risk"`
}

// ClassifierResult is the structured output of one vision call. It is
// owned by a single engine invocation and never persisted on its own.
type ClassifierResult struct {
	IsPlausibleCategory  bool                `json:"is_plausible_category"`
	Keywords             []string            `json:"keywords"`
	RarityScore          int                 `json:"rarity_score"`
	Equipment            *EquipmentDetails   `json:"equipment,omitempty"`
	Collectible          *CollectibleDetails `json:"collectible,omitempty"`
	EstimatedWeightGrams float64             `json:"estimated_weight_grams,omitempty"`
}

// MarketComparison is the market-data lookup result for a keyword set.
type MarketComparison struct {
	AveragePrice float64 `json:"average_price"`
	RarityScore  int     `json:"rarity_score"`
	MarketDepth  int     `json:"market_depth"`
}

// LiquiditySnapshot maps a simulated days-listed figure onto a
// qualitative tier. Display-only; not derived from real timestamps.
type LiquiditySnapshot struct {
	DaysListed int    `json:"days_listed"`
	Status     string `json:"status"`
}

// DecisionEnvelope is the engine's verdict for one listing. Created
// once per listing; only FeedbackFactor is ever overwritten, when a
// new vote arrives for the listing.
type DecisionEnvelope struct {
	Category        string            `json:"category"`
	EstimatedValue  float64           `json:"estimated_value"`
	Assessment      string            `json:"assessment"`
	PotentialProfit float64           `json:"potential_profit"`
	ProfitPct       float64           `json:"profit_pct"`
	PremiumPct      float64           `json:"premium_pct,omitempty"`
	FeedbackFactor  float64           `json:"feedback_factor"`
	Liquidity       LiquiditySnapshot `json:"liquidity"`
	Market          MarketComparison  `json:"market"`
	Keywords        []string          `json:"keywords,omitempty"`
	IsRelevant      bool              `json:"is_relevant"`
	SyntheticSource bool              `json:"synthetic_source"`
}

// ListingWithEnvelope is the message published for relevant listings.
type ListingWithEnvelope struct {
	Listing  Listing          `json:"listing"`
	Envelope DecisionEnvelope `json:"envelope"`
}

// FeedbackVote is one thumbs-up/down event. Append-only; a voter may
// vote more than once on the same listing and every vote counts.
type FeedbackVote struct {
	ListingID string    `json:"listing_id"`
	VoterID   string    `json:"voter_id"`
	Liked     bool      `json:"liked"`
	CreatedAt time.Time `json:"created_at"`
}

// ReferenceItem is a user-submitted exemplar used only as advisory
// text context for the classifier instruction channel.
type ReferenceItem struct {
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Keywords  string    `json:"keywords"`
	Valuation string    `json:"valuation"`
	ImageRef  string    `json:"image_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
