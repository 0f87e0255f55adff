package services

import (
	"fmt"
	"log"

	"lot-analyze-pipeline/database"
	"lot-analyze-pipeline/models"
)

// FeedbackService derives the bounded correction multiplier from the
// like/dislike tally of a listing and keeps the persisted envelope in
// step with new votes.
type FeedbackService struct {
	db        *database.Database
	magnitude float64
}

// NewFeedbackService creates a feedback service with correction
// magnitude k; factors stay within [1-k, 1+k].
func NewFeedbackService(db *database.Database, magnitude float64) *FeedbackService {
	return &FeedbackService{db: db, magnitude: magnitude}
}

// FactorFromTally computes 1 + k*(likes-dislikes)/(likes+dislikes).
// No votes means a neutral 1.0. This is a linear, symmetric, bounded
// nudge, not a learning model.
func FactorFromTally(likes, dislikes int, magnitude float64) float64 {
	total := likes + dislikes
	if total == 0 {
		return 1.0
	}
	score := float64(likes-dislikes) / float64(total)
	return 1.0 + score*magnitude
}

// Factor recomputes the correction factor for a listing from the full
// vote set. It is intentionally not cached so that new votes affect
// any in-flight recomputation immediately.
func (s *FeedbackService) Factor(listingID string) (float64, error) {
	likes, dislikes, err := s.db.GetVoteTally(listingID)
	if err != nil {
		return 1.0, err
	}
	return FactorFromTally(likes, dislikes, s.magnitude), nil
}

// RecordVote appends the vote, recomputes the factor and writes it
// back into the stored envelope. The whole step completes before the
// caller acknowledges the interaction.
func (s *FeedbackService) RecordVote(vote *models.FeedbackVote) (float64, error) {
	if err := s.db.SaveVote(vote); err != nil {
		return 1.0, err
	}

	factor, err := s.Factor(vote.ListingID)
	if err != nil {
		return 1.0, fmt.Errorf("vote stored but factor recompute failed: %w", err)
	}

	if err := s.db.UpdateFeedbackFactor(vote.ListingID, factor); err != nil {
		return factor, fmt.Errorf("vote stored but envelope update failed: %w", err)
	}

	log.Printf("Vote recorded for %s (liked=%t), factor now %.3f", vote.ListingID, vote.Liked, factor)
	return factor, nil
}
