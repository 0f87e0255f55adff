package engine

import (
	"fmt"
	"log"
	"strings"
	"time"

	"lot-analyze-pipeline/config"
	"lot-analyze-pipeline/gemini"
	"lot-analyze-pipeline/llm"
	"lot-analyze-pipeline/models"
	"lot-analyze-pipeline/services"
)

// Engine is the valuation core: it classifies one listing, routes it
// to a scoring model and produces a decision envelope. It holds no
// state of its own; all entities belong to the persistence layer.
type Engine struct {
	classifier llm.Classifier
	market     services.MarketDataProvider
	feedback   *services.FeedbackService
	contexts   *services.ContextBuilder
	cfg        *config.Config

	// now is swappable so age computations are testable.
	now func() time.Time
}

// New wires the engine from its collaborators. Everything is passed
// explicitly; the engine never reaches for ambient globals.
func New(classifier llm.Classifier, market services.MarketDataProvider,
	feedback *services.FeedbackService, contexts *services.ContextBuilder,
	cfg *config.Config) *Engine {
	return &Engine{
		classifier: classifier,
		market:     market,
		feedback:   feedback,
		contexts:   contexts,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Evaluate produces the decision envelope for one listing. Any failure
// while scoring is contained here: the batch never aborts because of a
// single listing, it gets a non-relevant error envelope instead.
func (e *Engine) Evaluate(listing *models.Listing, imageData []byte, ownerID string) models.DecisionEnvelope {
	return e.evaluate(listing, imageData, ownerID, false)
}

// EvaluateLesson is Evaluate with the disputed-listing snippets added
// to the classifier instruction. Used for operator-initiated searches,
// where past misjudgements are worth surfacing to the model.
func (e *Engine) EvaluateLesson(listing *models.Listing, imageData []byte, ownerID string) models.DecisionEnvelope {
	return e.evaluate(listing, imageData, ownerID, true)
}

func (e *Engine) evaluate(listing *models.Listing, imageData []byte, ownerID string, lesson bool) (env models.DecisionEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Scoring panic for listing %s: %v", listing.ExternalID, r)
			env = e.errorEnvelope(listing, fmt.Sprintf("panic: %v", r))
		}
	}()

	result := e.classify(listing, imageData, ownerID, lesson)

	factor, err := e.feedback.Factor(listing.ExternalID)
	if err != nil {
		log.Printf("Feedback lookup failed for %s, using neutral factor: %v", listing.ExternalID, err)
		factor = 1.0
	}

	// Dispatch order is fixed: rejection, equipment, spot metal,
	// collectible. First match wins.
	switch {
	case !result.IsPlausibleCategory:
		env = e.rejectedEnvelope(listing, result)
	case matchesVocab(listing.Title, equipmentVocab) || result.Equipment != nil:
		env = e.scoreEquipment(listing, result, factor)
	case matchesVocab(listing.Title, scrapVocab) || result.EstimatedWeightGrams > 0:
		env = e.scoreSpotMetal(listing, result, factor)
	default:
		env = e.scoreCollectible(listing, result, factor)
	}

	env.SyntheticSource = listing.Origin == models.OriginSynthetic
	return env
}

// classify calls the vision provider. Oversized payloads skip vision
// entirely, and an unavailable classifier degrades to neutral defaults
// so scoring can still proceed on title evidence.
func (e *Engine) classify(listing *models.Listing, imageData []byte, ownerID string, lesson bool) *models.ClassifierResult {
	if len(imageData) == 0 || len(imageData) > gemini.MaxImageBytes {
		if len(imageData) > gemini.MaxImageBytes {
			log.Printf("Image for %s exceeds %d bytes, skipping vision classification", listing.ExternalID, gemini.MaxImageBytes)
		}
		return neutralResult(listing.Title)
	}

	ctx := e.contexts.BuildForOwner(ownerID)
	if lesson {
		ctx = e.contexts.BuildForLesson(ownerID)
	}
	instruction := ctx.Render()
	prompt := fmt.Sprintf("Listing title: %s. Listed price: %d UAH.", listing.Title, listing.Price)

	result, err := e.classifier.Classify(imageData, prompt, instruction)
	if err != nil {
		log.Printf("Classifier error for %s: %v", listing.ExternalID, err)
		return neutralResult(listing.Title)
	}
	if result == nil {
		// No result after retries means insufficient data, not failure.
		return neutralResult(listing.Title)
	}
	if len(result.Keywords) == 0 {
		result.Keywords = titleKeywords(listing.Title)
	}
	return result
}

// neutralResult stands in when the classifier produced nothing.
func neutralResult(title string) *models.ClassifierResult {
	return &models.ClassifierResult{
		IsPlausibleCategory: true,
		Keywords:            titleKeywords(title),
		RarityScore:         50,
	}
}

func titleKeywords(title string) []string {
	fields := strings.Fields(title)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return fields
}

func (e *Engine) rejectedEnvelope(listing *models.Listing, result *models.ClassifierResult) models.DecisionEnvelope {
	return models.DecisionEnvelope{
		Category:       models.CategoryRejected,
		Assessment:     "implausible category",
		FeedbackFactor: 1.0,
		Keywords:       result.Keywords,
		Liquidity:      e.market.LiquiditySnapshot(listing.ExternalID),
		IsRelevant:     false,
	}
}

func (e *Engine) errorEnvelope(listing *models.Listing, reason string) models.DecisionEnvelope {
	return models.DecisionEnvelope{
		Category:        models.CategoryError,
		Assessment:      "analysis error: " + reason,
		FeedbackFactor:  1.0,
		IsRelevant:      false,
		SyntheticSource: listing.Origin == models.OriginSynthetic,
	}
}
