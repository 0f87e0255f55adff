package llm

import "lot-analyze-pipeline/models"

// Classifier abstracts the vision provider used by the valuation engine.
// Implementations must be concurrency-safe if used across goroutines.
type Classifier interface {
	// Classify takes raw image bytes, a listing prompt and an advisory
	// instruction string, and returns the parsed structured result.
	// A (nil, nil) return means the provider could not produce a result
	// after retries; callers treat that as insufficient data, not failure.
	Classify(imageData []byte, prompt, instruction string) (*models.ClassifierResult, error)
	// IdentifyQuery takes raw image bytes and returns a short marketplace
	// search query describing the pictured item.
	IdentifyQuery(imageData []byte) (string, error)
	// SourceName returns a short provider label to persist in the database (e.g., "Gemini").
	SourceName() string
}
