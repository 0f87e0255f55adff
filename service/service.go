package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"lot-analyze-pipeline/config"
	"lot-analyze-pipeline/database"
	"lot-analyze-pipeline/engine"
	"lot-analyze-pipeline/llm"
	"lot-analyze-pipeline/metrics"
	"lot-analyze-pipeline/models"
	"lot-analyze-pipeline/olx"
	"lot-analyze-pipeline/rabbitmq"
)

// ErrQueueBusy is returned when a queue run is requested while a
// previous run is still in flight.
var ErrQueueBusy = errors.New("queue run already in progress")

// Service is the polling scheduler. It drives the fetch-evaluate-
// persist-publish cycle and serves ad-hoc photo searches. One cycle is
// strictly sequential; only the per-term fetches inside the fetcher
// run concurrently.
type Service struct {
	config     *config.Config
	db         *database.Database
	engine     *engine.Engine
	classifier llm.Classifier
	fetcher    *olx.Fetcher
	publisher  *rabbitmq.Publisher
	stopChan   chan bool

	mu            sync.Mutex
	lastCycleAt   time.Time
	lastCycleSize int
	queueRunning  bool
}

// NewService wires the scheduler from its collaborators.
func NewService(cfg *config.Config, db *database.Database, eng *engine.Engine,
	classifier llm.Classifier, fetcher *olx.Fetcher, publisher *rabbitmq.Publisher) *Service {
	return &Service{
		config:     cfg,
		db:         db,
		engine:     eng,
		classifier: classifier,
		fetcher:    fetcher,
		publisher:  publisher,
		stopChan:   make(chan bool),
	}
}

// Start launches the polling loop. The first cycle runs immediately.
func (s *Service) Start() {
	log.Println("Starting lot analysis scheduler...")

	go func() {
		s.runCycle()

		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runCycle()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop stops the polling loop and closes the publisher.
func (s *Service) Stop() {
	log.Println("Stopping lot analysis scheduler...")

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Printf("Failed to close RabbitMQ publisher: %v", err)
		}
	}

	close(s.stopChan)
}

// Status reports the scheduler state for the operator surface.
func (s *Service) Status() (lastCycleAt time.Time, lastCycleSize int, publisherUp bool) {
	s.mu.Lock()
	lastCycleAt = s.lastCycleAt
	lastCycleSize = s.lastCycleSize
	s.mu.Unlock()

	if s.publisher != nil {
		publisherUp = s.publisher.IsConnected()
	}
	return lastCycleAt, lastCycleSize, publisherUp
}

// runCycle performs one poll: fetch candidates for every configured
// search term, evaluate the unseen ones and publish the relevant ones.
func (s *Service) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.PollInterval)
	defer cancel()

	processed, err := s.db.GetProcessedIDs()
	if err != nil {
		log.Printf("Failed to load processed listing IDs, skipping cycle: %v", err)
		return
	}

	candidates := s.fetcher.FetchCandidates(ctx, s.config.SearchTerms(), processed)
	log.Printf("Poll cycle: %d candidates to evaluate", len(candidates))

	count := 0
	for i := range candidates {
		if s.processListing(ctx, &candidates[i], "") {
			count++
		}
	}

	s.mu.Lock()
	s.lastCycleAt = time.Now()
	s.lastCycleSize = count
	s.mu.Unlock()
}

// processListing evaluates and persists one listing, then publishes it
// when relevant. Persistence happens before publish so a crash between
// the two drops a notification rather than duplicating analysis.
// Reports whether the listing was newly recorded.
func (s *Service) processListing(ctx context.Context, listing *models.Listing, ownerID string) bool {
	start := time.Now()

	var imageData []byte
	if listing.Origin == models.OriginReal {
		var err error
		imageData, err = s.fetcher.FetchImage(ctx, listing.ImageURL)
		if err != nil {
			log.Printf("Image fetch failed for %s, scoring without vision: %v", listing.ExternalID, err)
			imageData = nil
		}
	}

	envelope := s.engine.Evaluate(listing, imageData, ownerID)
	metrics.EvaluateDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.ListingsProcessedTotal.WithLabelValues(envelope.Category).Inc()
	if envelope.SyntheticSource {
		metrics.SyntheticListingsTotal.Inc()
	}

	inserted, err := s.db.SaveListing(listing, &envelope)
	if err != nil {
		log.Printf("Failed to persist listing %s: %v", listing.ExternalID, err)
		return false
	}
	if !inserted {
		// Another cycle won the race on this ID; nothing to publish.
		return false
	}

	if envelope.IsRelevant {
		metrics.ListingsRelevantTotal.Inc()
		s.publishListing(listing, &envelope)
	}
	return true
}

// publishListing pushes a relevant listing downstream. A publish
// failure is logged and swallowed; the listing stays recorded as
// processed and is never re-evaluated.
func (s *Service) publishListing(listing *models.Listing, envelope *models.DecisionEnvelope) {
	if s.publisher == nil {
		return
	}

	msg := &models.ListingWithEnvelope{Listing: *listing, Envelope: *envelope}
	if err := s.publisher.PublishListing(msg); err != nil {
		metrics.PublishErrorsTotal.Inc()
		log.Printf("Failed to publish listing %s: %v", listing.ExternalID, err)
		return
	}

	log.Printf("Published relevant listing %s (%s, value %.0f)",
		listing.ExternalID, envelope.Category, envelope.EstimatedValue)
	time.Sleep(s.config.PublishDelay)
}

// SearchResult is the outcome of one ad-hoc photo search.
type SearchResult struct {
	Query    string                       `json:"query"`
	Cached   bool                         `json:"cached"`
	Listings []models.ListingWithEnvelope `json:"listings"`
}

// AdHocSearch serves an operator-uploaded photo: dedup by content
// hash, derive a search query from the image, then run the regular
// fetch-evaluate-persist path for that single query. A photo that was
// already searched is answered from the cache marker without another
// classifier call.
func (s *Service) AdHocSearch(ctx context.Context, imageData []byte, ownerID string) (*SearchResult, error) {
	sum := sha256.Sum256(imageData)
	photoHash := hex.EncodeToString(sum[:])

	cached, err := s.db.IsPhotoCached(photoHash)
	if err != nil {
		return nil, fmt.Errorf("photo cache lookup failed: %w", err)
	}
	if cached {
		return &SearchResult{Cached: true}, nil
	}

	query, err := s.classifier.IdentifyQuery(imageData)
	if err != nil {
		return nil, fmt.Errorf("query identification failed: %w", err)
	}
	if query == "" {
		return nil, errors.New("could not derive a search query from the photo")
	}

	result := &SearchResult{Query: query}

	processed, err := s.db.GetProcessedIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to load processed listing IDs: %w", err)
	}

	candidates := s.fetcher.FetchCandidates(ctx, []string{query}, processed)
	for i := range candidates {
		listing := &candidates[i]

		start := time.Now()
		var listingImage []byte
		if listing.Origin == models.OriginReal {
			listingImage, _ = s.fetcher.FetchImage(ctx, listing.ImageURL)
		}
		envelope := s.engine.EvaluateLesson(listing, listingImage, ownerID)
		metrics.EvaluateDurationSeconds.Observe(time.Since(start).Seconds())
		metrics.ListingsProcessedTotal.WithLabelValues(envelope.Category).Inc()

		if _, err := s.db.SaveListing(listing, &envelope); err != nil {
			log.Printf("Failed to persist ad-hoc listing %s: %v", listing.ExternalID, err)
		}
		if envelope.IsRelevant {
			metrics.ListingsRelevantTotal.Inc()
		}

		result.Listings = append(result.Listings, models.ListingWithEnvelope{
			Listing:  *listing,
			Envelope: envelope,
		})
	}

	if err := s.db.SavePhotoCache(photoHash, query); err != nil {
		log.Printf("Failed to record photo cache entry: %v", err)
	}
	return result, nil
}

// RunQueue drains the deferred search queue. Each queued query runs
// through the regular evaluate-persist-publish path; the queue row is
// deleted only after its search completed, so a crash mid-run leaves
// the remainder queued. Concurrent runs are rejected.
func (s *Service) RunQueue(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.queueRunning {
		s.mu.Unlock()
		return 0, ErrQueueBusy
	}
	s.queueRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.queueRunning = false
		s.mu.Unlock()
	}()

	queued, err := s.db.GetQueuedSearches()
	if err != nil {
		return 0, fmt.Errorf("failed to load search queue: %w", err)
	}

	done := 0
	for _, item := range queued {
		if item.SearchQuery == "" {
			log.Printf("Queued search %d has no query, dropping", item.ID)
			if err := s.db.DeleteQueuedSearch(item.ID); err != nil {
				log.Printf("Failed to delete queued search %d: %v", item.ID, err)
			}
			continue
		}

		processed, err := s.db.GetProcessedIDs()
		if err != nil {
			return done, fmt.Errorf("failed to load processed listing IDs: %w", err)
		}

		candidates := s.fetcher.FetchCandidates(ctx, []string{item.SearchQuery}, processed)
		for i := range candidates {
			s.processListing(ctx, &candidates[i], "")
		}

		if err := s.db.DeleteQueuedSearch(item.ID); err != nil {
			log.Printf("Failed to delete queued search %d: %v", item.ID, err)
			continue
		}
		done++
	}
	return done, nil
}
