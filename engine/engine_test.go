package engine

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"lot-analyze-pipeline/config"
	"lot-analyze-pipeline/database"
	"lot-analyze-pipeline/models"
	"lot-analyze-pipeline/services"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// fakeMarket returns fixed comparables so scoring is exact.
type fakeMarket struct {
	avg    float64
	rarity int
	depth  int
}

func (m *fakeMarket) Lookup(keywords []string) models.MarketComparison {
	return models.MarketComparison{AveragePrice: m.avg, RarityScore: m.rarity, MarketDepth: m.depth}
}

func (m *fakeMarket) LiquiditySnapshot(listingID string) models.LiquiditySnapshot {
	return models.LiquiditySnapshot{DaysListed: 10, Status: models.LiquidityNormal}
}

// panicMarket simulates a scoring-stage failure.
type panicMarket struct{ fakeMarket }

func (m *panicMarket) Lookup(keywords []string) models.MarketComparison {
	panic("market feed unavailable")
}

// fakeClassifier returns a canned classification.
type fakeClassifier struct {
	result *models.ClassifierResult
	err    error
	called bool
}

func (c *fakeClassifier) Classify(imageData []byte, prompt, instruction string) (*models.ClassifierResult, error) {
	c.called = true
	return c.result, c.err
}

func (c *fakeClassifier) IdentifyQuery(imageData []byte) (string, error) { return "", nil }
func (c *fakeClassifier) SourceName() string                            { return "fake" }

func testConfig() *config.Config {
	return &config.Config{
		MinPrice:             1000,
		TransactionFeePct:    10,
		MinProfitMarginPct:   20,
		DepreciationPerYear:  0.05,
		ConditionWeight:      0.7,
		HoursPenaltyRate:     0.00005,
		MinRarityScore:       30,
		MaxAuthenticityRisk:  70,
		BrandMultipliers:     map[string]float64{"rolex": 2.5, "omega": 1.8},
		FeedbackMagnitude:    0.1,
		GoldSpotPricePerGram: 2850,
		SilverSpotPerGram:    36,
	}
}

func newTestEngine(t *testing.T, classifier *fakeClassifier, market services.MarketDataProvider) (*Engine, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := database.NewDatabaseFromConn(conn)
	cfg := testConfig()

	e := &Engine{
		classifier: classifier,
		market:     market,
		feedback:   services.NewFeedbackService(db, cfg.FeedbackMagnitude),
		contexts:   services.NewContextBuilder(db),
		cfg:        cfg,
		now:        func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) },
	}
	return e, mock, conn
}

func expectTally(mock sqlmock.Sqlmock, likes, dislikes int) {
	mock.ExpectQuery("FROM feedback_votes").
		WillReturnRows(sqlmock.NewRows([]string{"likes", "dislikes"}).AddRow(likes, dislikes))
}

func TestEvaluateEquipmentUndervalued(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory: true,
		Keywords:            []string{"генератор", "honda"},
		RarityScore:         20,
		Equipment: &models.EquipmentDetails{
			Manufacturer: "Honda",
			Model:        "EU70is",
			Year:         2021,
			Condition:    10,
		},
	}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 200000, rarity: 40, depth: 10})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{
		ExternalID: "EQ1",
		Title:      "Генератор Honda EU70is",
		Price:      100000,
		Origin:     models.OriginReal,
	}
	env := e.Evaluate(listing, []byte("image"), "")

	if env.Category != models.CategoryEquipment {
		t.Fatalf("Category = %q, want %q", env.Category, models.CategoryEquipment)
	}
	// 5 years of age at 5%/year depreciates 200000 to 150000; condition
	// 10 keeps the full value and there is no hours penalty.
	if math.Abs(env.EstimatedValue-150000) > 1e-6 {
		t.Errorf("EstimatedValue = %v, want 150000", env.EstimatedValue)
	}
	if math.Abs(env.PotentialProfit-40000) > 1e-6 {
		t.Errorf("PotentialProfit = %v, want 40000", env.PotentialProfit)
	}
	if math.Abs(env.ProfitPct-40) > 1e-6 {
		t.Errorf("ProfitPct = %v, want 40", env.ProfitPct)
	}
	if !env.IsRelevant {
		t.Error("IsRelevant = false, want true for a 40% margin")
	}
	if env.Assessment != "undervalued" {
		t.Errorf("Assessment = %q, want %q", env.Assessment, "undervalued")
	}
	if env.SyntheticSource {
		t.Error("SyntheticSource = true for a real listing")
	}
}

func TestEvaluateEquipmentFeedbackShiftsValue(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory: true,
		Keywords:            []string{"генератор"},
		RarityScore:         20,
		Equipment:           &models.EquipmentDetails{Year: 2021, Condition: 10},
	}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 200000, rarity: 40, depth: 10})
	defer conn.Close()

	listing := &models.Listing{ExternalID: "EQ2", Title: "Генератор", Price: 100000, Origin: models.OriginReal}

	expectTally(mock, 0, 0)
	neutral := e.Evaluate(listing, []byte("image"), "")

	expectTally(mock, 10, 0)
	boosted := e.Evaluate(listing, []byte("image"), "")

	if math.Abs(neutral.FeedbackFactor-1.0) > 1e-9 {
		t.Errorf("neutral FeedbackFactor = %v, want 1.0", neutral.FeedbackFactor)
	}
	if math.Abs(boosted.FeedbackFactor-1.1) > 1e-9 {
		t.Errorf("boosted FeedbackFactor = %v, want 1.1", boosted.FeedbackFactor)
	}
	if math.Abs(boosted.EstimatedValue-neutral.EstimatedValue*1.1) > 1e-6 {
		t.Errorf("boosted EstimatedValue = %v, want %v", boosted.EstimatedValue, neutral.EstimatedValue*1.1)
	}
}

func TestEvaluateSpotMetalDiscount(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory:  true,
		Keywords:             []string{"срібло", "лом"},
		RarityScore:          10,
		EstimatedWeightGrams: 500,
	}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 10000, rarity: 30, depth: 5})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{
		ExternalID: "SP1",
		Title:      "Лом срібла 500 грам",
		Price:      12500,
		Origin:     models.OriginReal,
	}
	env := e.Evaluate(listing, []byte("image"), "")

	if env.Category != models.CategorySpotMetal {
		t.Fatalf("Category = %q, want %q", env.Category, models.CategorySpotMetal)
	}
	// 500 g of silver at 36/g melts to 18000.
	if math.Abs(env.EstimatedValue-18000) > 1e-6 {
		t.Errorf("EstimatedValue = %v, want 18000", env.EstimatedValue)
	}
	wantPremium := (12500.0 - 18000.0) / 18000.0 * 100.0
	if math.Abs(env.PremiumPct-wantPremium) > 1e-6 {
		t.Errorf("PremiumPct = %v, want %v", env.PremiumPct, wantPremium)
	}
	if !env.IsRelevant {
		t.Error("IsRelevant = false, want true for a 30% discount to spot")
	}
	if env.Assessment != "discount" {
		t.Errorf("Assessment = %q, want %q", env.Assessment, "discount")
	}
}

func TestEvaluateSpotMetalDebias(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory:  true,
		Keywords:             []string{"золото", "ланцюжок"},
		RarityScore:          10,
		EstimatedWeightGrams: 10,
	}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 10000, rarity: 30, depth: 5})
	defer conn.Close()
	expectTally(mock, 0, 0)

	// Priced far above the naive melt value of 28500, so only a tenth
	// of the weight is treated as actual metal.
	listing := &models.Listing{
		ExternalID: "SP2",
		Title:      "Золотий ланцюжок",
		Price:      200000,
		Origin:     models.OriginReal,
	}
	env := e.Evaluate(listing, []byte("image"), "")

	if env.Category != models.CategorySpotMetal {
		t.Fatalf("Category = %q, want %q", env.Category, models.CategorySpotMetal)
	}
	if math.Abs(env.EstimatedValue-2850) > 1e-6 {
		t.Errorf("EstimatedValue = %v, want 2850 after de-bias", env.EstimatedValue)
	}
	if env.IsRelevant {
		t.Error("IsRelevant = true for a lot priced far above spot")
	}
	if env.Assessment != "premium" {
		t.Errorf("Assessment = %q, want %q", env.Assessment, "premium")
	}
}

func TestEvaluateSpotMetalNoWeight(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory: true,
		Keywords:            []string{"лом"},
		RarityScore:         10,
	}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 10000, rarity: 30, depth: 5})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{ExternalID: "SP3", Title: "Лом срібла", Price: 5000, Origin: models.OriginReal}
	env := e.Evaluate(listing, []byte("image"), "")

	if env.Category != models.CategorySpotMetal {
		t.Fatalf("Category = %q, want %q", env.Category, models.CategorySpotMetal)
	}
	if env.Assessment != "no weight estimate" {
		t.Errorf("Assessment = %q, want %q", env.Assessment, "no weight estimate")
	}
	if env.IsRelevant {
		t.Error("IsRelevant = true without a weight estimate")
	}
	if env.EstimatedValue != 0 {
		t.Errorf("EstimatedValue = %v, want 0", env.EstimatedValue)
	}
}

func TestEvaluateCollectibleWithPrestige(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory: true,
		Keywords:            []string{"годинник", "rolex"},
		RarityScore:         80,
		Collectible: &models.CollectibleDetails{
			Brand:            "Rolex",
			Condition:        8,
			AuthenticityRisk: 10,
		},
	}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 100000, rarity: 80, depth: 3})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{
		ExternalID: "CO1",
		Title:      "Годинник Rolex Submariner",
		Price:      50000,
		Origin:     models.OriginReal,
	}
	env := e.Evaluate(listing, []byte("image"), "")

	if env.Category != models.CategoryCollectible {
		t.Fatalf("Category = %q, want %q", env.Category, models.CategoryCollectible)
	}
	// 100000 * 0.8 rarity * 0.8 condition * 0.9 authenticity * 2.5 prestige.
	if math.Abs(env.EstimatedValue-144000) > 1e-6 {
		t.Errorf("EstimatedValue = %v, want 144000", env.EstimatedValue)
	}
	if !env.IsRelevant {
		t.Error("IsRelevant = false, want true")
	}
}

func TestEvaluateCollectibleRiskGated(t *testing.T) {
	tests := []struct {
		name   string
		rarity int
		risk   int
	}{
		{"rarity below minimum", 20, 10},
		{"authenticity risk above maximum", 80, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &fakeClassifier{result: &models.ClassifierResult{
				IsPlausibleCategory: true,
				Keywords:            []string{"статуетка"},
				RarityScore:         tt.rarity,
				Collectible: &models.CollectibleDetails{
					Condition:        9,
					AuthenticityRisk: tt.risk,
				},
			}}
			e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 500000, rarity: 50, depth: 3})
			defer conn.Close()
			expectTally(mock, 0, 0)

			listing := &models.Listing{ExternalID: "CO2", Title: "Статуетка бронза", Price: 2000, Origin: models.OriginReal}
			env := e.Evaluate(listing, []byte("image"), "")

			if env.IsRelevant {
				t.Error("IsRelevant = true for a gated collectible")
			}
			if env.Assessment != "risk gated" {
				t.Errorf("Assessment = %q, want %q", env.Assessment, "risk gated")
			}
		})
	}
}

func TestEvaluateEquipmentVocabWinsOverScrap(t *testing.T) {
	// Weight estimate present, but the equipment vocabulary match in
	// the title takes precedence.
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory:  true,
		Keywords:             []string{"генератор"},
		RarityScore:          20,
		EstimatedWeightGrams: 30000,
	}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 20000, rarity: 40, depth: 10})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{ExternalID: "EQ3", Title: "Генератор на лом", Price: 3000, Origin: models.OriginReal}
	env := e.Evaluate(listing, []byte("image"), "")

	if env.Category != models.CategoryEquipment {
		t.Errorf("Category = %q, want %q", env.Category, models.CategoryEquipment)
	}
}

func TestEvaluateRejected(t *testing.T) {
	// The title matches equipment vocabulary, but an implausible
	// classification wins over every scoring route.
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory: false,
		Keywords:            []string{"квартира"},
	}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 10000, rarity: 40, depth: 10})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{ExternalID: "RJ1", Title: "Генератор (фото квартири)", Price: 1000000, Origin: models.OriginReal}
	env := e.Evaluate(listing, []byte("image"), "")

	if env.Category != models.CategoryRejected {
		t.Errorf("Category = %q, want %q", env.Category, models.CategoryRejected)
	}
	if env.IsRelevant {
		t.Error("IsRelevant = true for a rejected listing")
	}
	if env.Assessment != "implausible category" {
		t.Errorf("Assessment = %q, want %q", env.Assessment, "implausible category")
	}
}

func TestEvaluatePanicBecomesErrorEnvelope(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{
		IsPlausibleCategory: true,
		Keywords:            []string{"генератор"},
		RarityScore:         20,
		Equipment:           &models.EquipmentDetails{Year: 2020, Condition: 5},
	}}
	e, mock, conn := newTestEngine(t, classifier, &panicMarket{})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{ExternalID: "ER1", Title: "Генератор", Price: 5000, Origin: models.OriginReal}
	env := e.Evaluate(listing, []byte("image"), "")

	if env.Category != models.CategoryError {
		t.Errorf("Category = %q, want %q", env.Category, models.CategoryError)
	}
	if env.IsRelevant {
		t.Error("IsRelevant = true for an error envelope")
	}
}

func TestEvaluateWithoutImageUsesNeutralDefaults(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{IsPlausibleCategory: true}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 20000, rarity: 40, depth: 10})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{ExternalID: "NI1", Title: "Бензопила Stihl MS 180", Price: 5000, Origin: models.OriginReal}
	env := e.Evaluate(listing, nil, "")

	if classifier.called {
		t.Error("classifier was called without image data")
	}
	if env.Category != models.CategoryEquipment {
		t.Errorf("Category = %q, want %q from title vocabulary", env.Category, models.CategoryEquipment)
	}
}

func TestEvaluateOversizedImageSkipsVision(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{IsPlausibleCategory: true}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 20000, rarity: 40, depth: 10})
	defer conn.Close()
	expectTally(mock, 0, 0)

	oversized := make([]byte, 4<<20+1)
	listing := &models.Listing{ExternalID: "NI2", Title: "Компресор", Price: 5000, Origin: models.OriginReal}
	e.Evaluate(listing, oversized, "")

	if classifier.called {
		t.Error("classifier was called with an oversized image")
	}
}

func TestEvaluateSyntheticTagPropagates(t *testing.T) {
	classifier := &fakeClassifier{result: &models.ClassifierResult{IsPlausibleCategory: true}}
	e, mock, conn := newTestEngine(t, classifier, &fakeMarket{avg: 20000, rarity: 40, depth: 10})
	defer conn.Close()
	expectTally(mock, 0, 0)

	listing := &models.Listing{
		ExternalID: "SYN-abc12345",
		Title:      "генератор (приклад)",
		Price:      15000,
		Origin:     models.OriginSynthetic,
	}
	env := e.Evaluate(listing, nil, "")

	if !env.SyntheticSource {
		t.Error("SyntheticSource = false for a synthetic listing")
	}
}
