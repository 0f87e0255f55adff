package engine

import (
	"math"
	"sort"
	"strings"

	"lot-analyze-pipeline/models"
)

const (
	// maxDepreciation caps age-based equipment depreciation.
	maxDepreciation = 0.9
	// spotDebiasRatio triggers the collectible de-bias: a lot priced
	// above this multiple of its naive melt value is assumed to carry
	// mostly non-metal value.
	spotDebiasRatio = 5.0
	// spotDebiasWeightShare is the share of the estimated weight kept
	// as actual precious metal after de-biasing.
	spotDebiasWeightShare = 0.1
)

// scoreEquipment applies the TIV model: comparable price, age
// depreciation, condition multiplier and an operating-hours penalty.
func (e *Engine) scoreEquipment(listing *models.Listing, result *models.ClassifierResult, factor float64) models.DecisionEnvelope {
	comp := e.market.Lookup(result.Keywords)

	eq := result.Equipment
	if eq == nil {
		// Routed here by title vocabulary alone; score on neutral condition.
		eq = &models.EquipmentDetails{Condition: 5}
	}

	age := 0
	if eq.Year > 0 {
		age = e.now().Year() - eq.Year
		if age < 0 {
			age = 0
		}
	}

	depreciation := math.Min(maxDepreciation, float64(age)*e.cfg.DepreciationPerYear)
	valueAfterAge := comp.AveragePrice * (1 - depreciation)

	w := e.cfg.ConditionWeight
	conditionMultiplier := (float64(eq.Condition)/10.0)*w + (1 - w)

	hoursPenalty := float64(eq.OperatingHours) * e.cfg.HoursPenaltyRate * comp.AveragePrice

	value := valueAfterAge*conditionMultiplier - hoursPenalty
	value *= factor
	if value < float64(e.cfg.MinPrice) {
		value = float64(e.cfg.MinPrice)
	}

	profit, profitPct := e.profitAfterFees(value, listing.Price)

	return models.DecisionEnvelope{
		Category:        models.CategoryEquipment,
		EstimatedValue:  value,
		Assessment:      marginAssessment(profitPct, e.cfg.MinProfitMarginPct),
		PotentialProfit: profit,
		ProfitPct:       profitPct,
		FeedbackFactor:  factor,
		Liquidity:       e.market.LiquiditySnapshot(listing.ExternalID),
		Market:          comp,
		Keywords:        result.Keywords,
		IsRelevant:      profitPct > e.cfg.MinProfitMarginPct,
	}
}

// scoreSpotMetal applies the SPOT model: melt value from per-gram
// spot prices, with the de-bias heuristic for lots priced well above
// their naive melt value. The feedback factor is recorded but does not
// move melt value; melt is melt.
func (e *Engine) scoreSpotMetal(listing *models.Listing, result *models.ClassifierResult, factor float64) models.DecisionEnvelope {
	spotPerGram := e.cfg.SilverSpotPerGram
	if e.isGold(listing, result) {
		spotPerGram = e.cfg.GoldSpotPricePerGram
	}

	env := models.DecisionEnvelope{
		Category:       models.CategorySpotMetal,
		FeedbackFactor: factor,
		Liquidity:      e.market.LiquiditySnapshot(listing.ExternalID),
		Keywords:       result.Keywords,
	}

	weight := result.EstimatedWeightGrams
	if weight <= 0 || spotPerGram <= 0 {
		env.Assessment = "no weight estimate"
		return env
	}

	impliedSpot := weight * spotPerGram
	if float64(listing.Price) > spotDebiasRatio*impliedSpot {
		// Mostly collectible value; assume one tenth is actual metal.
		weight *= spotDebiasWeightShare
	}

	spotValue := weight * spotPerGram
	premiumPct := (float64(listing.Price) - spotValue) / spotValue * 100

	profit, _ := e.profitAfterFees(spotValue, listing.Price)

	env.EstimatedValue = spotValue
	env.PotentialProfit = profit
	env.PremiumPct = premiumPct
	env.Assessment = premiumAssessment(premiumPct, e.cfg.MinProfitMarginPct)
	// Relevant only on a discount strictly beyond the margin below spot.
	env.IsRelevant = premiumPct < -e.cfg.MinProfitMarginPct
	return env
}

// scoreCollectible applies the RAV model: comparable auction price
// discounted by rarity, condition, authenticity risk and boosted by
// brand prestige.
func (e *Engine) scoreCollectible(listing *models.Listing, result *models.ClassifierResult, factor float64) models.DecisionEnvelope {
	comp := e.market.Lookup(result.Keywords)

	condition := 5
	authenticityRisk := 50
	if col := result.Collectible; col != nil {
		condition = col.Condition
		authenticityRisk = col.AuthenticityRisk
	}

	rarityFactor := float64(result.RarityScore) / 100.0
	conditionFactor := float64(condition) / 10.0
	authenticityPenalty := 1 - float64(authenticityRisk)/100.0
	prestige := e.prestigeMultiplier(listing.Title)

	value := comp.AveragePrice * rarityFactor * conditionFactor * authenticityPenalty * prestige
	value *= factor

	profit, profitPct := e.profitAfterFees(value, listing.Price)

	// Risk gates: too common or too likely fake is never relevant.
	gated := result.RarityScore < e.cfg.MinRarityScore || authenticityRisk > e.cfg.MaxAuthenticityRisk

	assessment := marginAssessment(profitPct, e.cfg.MinProfitMarginPct)
	if gated {
		assessment = "risk gated"
	}

	return models.DecisionEnvelope{
		Category:        models.CategoryCollectible,
		EstimatedValue:  value,
		Assessment:      assessment,
		PotentialProfit: profit,
		ProfitPct:       profitPct,
		FeedbackFactor:  factor,
		Liquidity:       e.market.LiquiditySnapshot(listing.ExternalID),
		Market:          comp,
		Keywords:        result.Keywords,
		IsRelevant:      !gated && profitPct > e.cfg.MinProfitMarginPct,
	}
}

// profitAfterFees computes potential profit net of the transaction fee
// on the purchase price, plus the margin percentage.
func (e *Engine) profitAfterFees(value float64, price int) (profit, profitPct float64) {
	profit = value - float64(price) - float64(price)*e.cfg.TransactionFeePct/100.0
	if price > 0 {
		profitPct = profit / float64(price) * 100.0
	}
	return profit, profitPct
}

// prestigeMultiplier returns the first matching brand multiplier found
// in the title, else 1.0. Brands are scanned in sorted order so the
// match is deterministic.
func (e *Engine) prestigeMultiplier(title string) float64 {
	lower := strings.ToLower(title)

	brands := make([]string, 0, len(e.cfg.BrandMultipliers))
	for brand := range e.cfg.BrandMultipliers {
		brands = append(brands, brand)
	}
	sort.Strings(brands)

	for _, brand := range brands {
		if strings.Contains(lower, brand) {
			return e.cfg.BrandMultipliers[brand]
		}
	}
	return 1.0
}

func (e *Engine) isGold(listing *models.Listing, result *models.ClassifierResult) bool {
	if matchesVocab(listing.Title, goldVocab) {
		return true
	}
	return matchesVocab(strings.Join(result.Keywords, " "), goldVocab)
}

func marginAssessment(profitPct, minMargin float64) string {
	switch {
	case profitPct > minMargin:
		return "undervalued"
	case profitPct > 0:
		return "fair"
	default:
		return "overpriced"
	}
}

func premiumAssessment(premiumPct, minMargin float64) string {
	switch {
	case premiumPct < -minMargin:
		return "discount"
	case premiumPct < 0:
		return "below spot"
	default:
		return "premium"
	}
}
