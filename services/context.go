package services

import (
	"fmt"
	"log"
	"strings"

	"lot-analyze-pipeline/database"
)

const (
	maxReferenceSnippets = 5
	maxDisputedSnippets  = 3
)

// InstructionContext is the advisory material fed to the classifier's
// instruction channel. Assembly is structured; text only appears at
// the Render boundary.
type InstructionContext struct {
	References []ReferenceSnippet
	Disputed   []DisputedSnippet
}

// ReferenceSnippet is one user-submitted exemplar.
type ReferenceSnippet struct {
	Title     string
	Keywords  string
	Valuation string
}

// DisputedSnippet is one listing with a contested vote split.
type DisputedSnippet struct {
	Title    string
	Likes    int
	Dislikes int
}

// IsEmpty reports whether there is nothing to render.
func (c *InstructionContext) IsEmpty() bool {
	return len(c.References) == 0 && len(c.Disputed) == 0
}

// Render flattens the context into the free-text instruction string.
// It never structurally influences the output schema.
func (c *InstructionContext) Render() string {
	if c.IsEmpty() {
		return ""
	}

	var b strings.Builder
	if len(c.References) > 0 {
		b.WriteString("Reference items submitted by the requesting user, newest first:\n")
		for i, ref := range c.References {
			fmt.Fprintf(&b, "%d. %s | keywords: %s | valuation: %s\n", i+1, ref.Title, ref.Keywords, ref.Valuation)
		}
	}
	if len(c.Disputed) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Listings with contested community feedback, most contested first:\n")
		for i, d := range c.Disputed {
			fmt.Fprintf(&b, "%d. %s (%d up / %d down)\n", i+1, d.Title, d.Likes, d.Dislikes)
		}
	}
	return b.String()
}

// ContextBuilder assembles instruction context from the stores.
type ContextBuilder struct {
	db *database.Database
}

func NewContextBuilder(db *database.Database) *ContextBuilder {
	return &ContextBuilder{db: db}
}

// BuildForOwner gathers up to 5 most-recent reference items for the
// requesting owner. Used for vision classification calls.
func (cb *ContextBuilder) BuildForOwner(ownerID string) *InstructionContext {
	ctx := &InstructionContext{}
	if ownerID == "" {
		return ctx
	}

	refs, err := cb.db.GetRecentReferences(ownerID, maxReferenceSnippets)
	if err != nil {
		// Advisory context only; classification proceeds without it.
		log.Printf("Failed to load references for %s: %v", ownerID, err)
		return ctx
	}
	for _, ref := range refs {
		ctx.References = append(ctx.References, ReferenceSnippet{
			Title:     ref.Title,
			Keywords:  ref.Keywords,
			Valuation: ref.Valuation,
		})
	}
	return ctx
}

// BuildForLesson extends the owner context with the 3 listings whose
// votes are most evenly split, weighted toward the most-voted ones.
// Scheduled polls never get the disputed block; only operator-driven
// ad-hoc searches do.
func (cb *ContextBuilder) BuildForLesson(ownerID string) *InstructionContext {
	ctx := cb.BuildForOwner(ownerID)

	disputed, err := cb.db.GetMostDisputedListings(maxDisputedSnippets)
	if err != nil {
		log.Printf("Failed to load disputed listings: %v", err)
		return ctx
	}
	for _, d := range disputed {
		ctx.Disputed = append(ctx.Disputed, DisputedSnippet{
			Title:    d.Title,
			Likes:    d.Likes,
			Dislikes: d.Dislikes,
		})
	}
	return ctx
}
