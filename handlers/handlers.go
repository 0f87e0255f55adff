package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"lot-analyze-pipeline/database"
	"lot-analyze-pipeline/metrics"
	"lot-analyze-pipeline/models"
	"lot-analyze-pipeline/service"
	"lot-analyze-pipeline/services"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes caps ad-hoc photo uploads well above the vision
// limit; oversized images still score, just without vision.
const maxUploadBytes = 16 << 20

// Handlers represents the HTTP handlers
type Handlers struct {
	db       *database.Database
	feedback *services.FeedbackService
	svc      *service.Service
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *database.Database, feedback *services.FeedbackService, svc *service.Service) *Handlers {
	return &Handlers{db: db, feedback: feedback, svc: svc}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "lot-analyze-pipeline",
	})
}

// GetStatus returns the scheduler and publisher state
func (h *Handlers) GetStatus(c *gin.Context) {
	lastCycleAt, lastCycleSize, publisherUp := h.svc.Status()

	resp := gin.H{
		"service":             "lot-analyze-pipeline",
		"last_cycle_size":     lastCycleSize,
		"publisher_connected": publisherUp,
	}
	if !lastCycleAt.IsZero() {
		resp["last_cycle_at"] = lastCycleAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// GetStats returns aggregate pipeline statistics
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.db.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get pipeline stats",
		})
		return
	}

	resp := gin.H{
		"total_processed": stats.TotalProcessed,
		"total_relevant":  stats.TotalRelevant,
		"total_synthetic": stats.TotalSynthetic,
		"total_votes":     stats.TotalVotes,
		"total_likes":     stats.TotalLikes,
		"queue_depth":     stats.QueueDepth,
	}
	// The average only covers voted-on listings; unvoted rows have no
	// stored factor and the aggregate is absent until the first vote.
	if stats.AvgFeedbackFactor.Valid {
		resp["avg_feedback_factor"] = stats.AvgFeedbackFactor.Float64
	}
	c.JSON(http.StatusOK, resp)
}

// GetListing returns one evaluated listing with its decision envelope
func (h *Handlers) GetListing(c *gin.Context) {
	record, err := h.db.GetListing(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Listing not found",
		})
		return
	}

	resp := gin.H{
		"listing":     record.Listing,
		"envelope":    record.Envelope,
		"is_relevant": record.IsRelevant,
		"created_at":  record.CreatedAt.Format(time.RFC3339),
	}
	if record.FeedbackFactor.Valid {
		resp["feedback_factor"] = record.FeedbackFactor.Float64
	}
	c.JSON(http.StatusOK, resp)
}

// PostVote records a like/dislike vote for a listing. The vote is
// stored and the correction factor recomputed before the response is
// written, so an acknowledged vote is never lost.
func (h *Handlers) PostVote(c *gin.Context) {
	var req struct {
		VoterID string `json:"voter_id" binding:"required"`
		Liked   *bool  `json:"liked" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "voter_id and liked are required",
		})
		return
	}

	listingID := c.Param("id")
	if _, err := h.db.GetListing(listingID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Listing not found",
		})
		return
	}

	factor, err := h.feedback.RecordVote(&models.FeedbackVote{
		ListingID: listingID,
		VoterID:   req.VoterID,
		Liked:     *req.Liked,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to record vote",
		})
		return
	}

	direction := "dislike"
	if *req.Liked {
		direction = "like"
	}
	metrics.FeedbackVotesTotal.WithLabelValues(direction).Inc()

	c.JSON(http.StatusOK, gin.H{
		"listing_id":      listingID,
		"feedback_factor": factor,
	})
}

// PostReference stores a user-submitted valuation exemplar
func (h *Handlers) PostReference(c *gin.Context) {
	var req struct {
		OwnerID   string `json:"owner_id" binding:"required"`
		Title     string `json:"title" binding:"required"`
		Keywords  string `json:"keywords"`
		Valuation string `json:"valuation"`
		ImageRef  string `json:"image_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "owner_id and title are required",
		})
		return
	}

	err := h.db.SaveReference(&models.ReferenceItem{
		OwnerID:   req.OwnerID,
		Title:     req.Title,
		Keywords:  req.Keywords,
		Valuation: req.Valuation,
		ImageRef:  req.ImageRef,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save reference",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "saved"})
}

// PostSearch runs an ad-hoc photo search: the uploaded image is
// deduplicated by content hash, turned into a search query and the
// matching listings are evaluated and returned.
func (h *Handlers) PostSearch(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "image file is required",
		})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil || len(imageData) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read image",
		})
		return
	}
	if len(imageData) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "Image too large",
		})
		return
	}

	result, err := h.svc.AdHocSearch(c.Request.Context(), imageData, c.PostForm("owner_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}
	if result.Cached {
		c.JSON(http.StatusOK, gin.H{
			"cached": true,
			"note":   "photo was already searched",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// PostQueue defers a search for a later queue run
func (h *Handlers) PostQueue(c *gin.Context) {
	var req struct {
		ImageRef    string `json:"image_ref"`
		SearchQuery string `json:"search_query" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "search_query is required",
		})
		return
	}

	if err := h.db.EnqueueSearch(req.ImageRef, req.SearchQuery); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue search",
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// PostQueueRun drains the deferred search queue
func (h *Handlers) PostQueueRun(c *gin.Context) {
	done, err := h.svc.RunQueue(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrQueueBusy) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Queue run already in progress",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     err.Error(),
			"processed": done,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": done})
}
