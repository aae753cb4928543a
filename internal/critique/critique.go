// Package critique implements the critique generator (C6): it turns a
// ranked candidate's aggregated feedback into a Critique the next
// iteration's refinement call can act on.
package critique

import (
	"fmt"
	"strings"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/rank"
)

// Dimension is the refinement axis a Critique targets.
type Dimension string

const (
	DimensionWhat Dimension = "what"
	DimensionHow  Dimension = "how"
)

// Critique is the structured feedback a survivor carries into the next
// iteration's refinement call.
type Critique struct {
	Dimension      Dimension `json:"dimension"`
	Critique       string    `json:"critique"`
	Recommendation string    `json:"recommendation"`
	Reason         string    `json:"reason"`
}

// Generate builds a Critique for one survivor. dimension is the
// orchestrator's schedule entry for the *next* iteration, not anything
// derived from the ranker's output. Returns nil when the candidate has no
// feedback to act on, in which case refinement falls back to a plain
// dimension-focused expansion.
func Generate(feedback *rank.AggregatedFeedback, improvementSuggestion string, dimension Dimension) *Critique {
	if feedback == nil {
		return nil
	}
	if len(feedback.Strengths) == 0 && len(feedback.Weaknesses) == 0 && improvementSuggestion == "" {
		return nil
	}

	c := &Critique{Dimension: dimension}

	if len(feedback.Weaknesses) > 0 {
		c.Critique = strings.Join(feedback.Weaknesses, "; ")
	} else {
		c.Critique = fmt.Sprintf("no specific weaknesses surfaced on the %s axis", dimension)
	}

	c.Recommendation = improvementSuggestion
	if c.Recommendation == "" {
		c.Recommendation = fmt.Sprintf("continue refining the %s prompt toward the judged strengths", dimension)
	}

	if len(feedback.Strengths) > 0 {
		c.Reason = fmt.Sprintf("preserved strengths: %s", strings.Join(feedback.Strengths, "; "))
	} else {
		c.Reason = "no strengths observed to preserve"
	}

	return c
}

// GenerateForSurvivors builds a Critique per surviving candidate, keyed by
// candidate id, for the given next-iteration dimension. Candidates absent
// from rankings or with nil feedback get a nil entry.
func GenerateForSurvivors(rankings []rank.RankedCandidate, survivorIDs []string, nextDimension Dimension) map[string]*Critique {
	byID := make(map[string]rank.RankedCandidate, len(rankings))
	for _, rc := range rankings {
		byID[rc.CandidateID] = rc
	}

	out := make(map[string]*Critique, len(survivorIDs))
	for _, id := range survivorIDs {
		rc, ok := byID[id]
		if !ok {
			out[id] = nil
			continue
		}
		out[id] = Generate(rc.AggregatedFeedback, rc.ImprovementSuggestion, nextDimension)
	}
	return out
}
