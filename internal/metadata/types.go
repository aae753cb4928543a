// Package metadata implements the metadata tracker (C7): atomic,
// crash-safe persistence of a session's evolving record to
// output_dir/<date>/<session_id>/metadata.json, plus a tokens.json side
// file for token-usage accounting.
package metadata

import "github.com/jflournoy/image-gen-pipe-v2-sub003/internal/critique"

// Status is a Candidate's lifecycle state.
type Status string

const (
	StatusAttempted Status = "attempted"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Rank mirrors collaborator.Rank for the on-disk comparison record, kept
// independent of the collaborator package so metadata has no dependency
// on provider-facing types.
type Rank struct {
	Alignment  float64 `json:"alignment"`
	Aesthetics float64 `json:"aesthetics"`
}

// ComparisonResult is one candidate's outcome in a single pairwise
// comparison: win, loss, or tie.
type ComparisonResult string

const (
	ResultWin  ComparisonResult = "win"
	ResultLoss ComparisonResult = "loss"
	ResultTie  ComparisonResult = "tie"
)

// ComparisonRecord is one row of a Candidate's comparisons list.
type ComparisonRecord struct {
	OpponentCandidateIndex int              `json:"opponent_candidate_index"`
	Result                 ComparisonResult `json:"result"`
	MyRanks                Rank             `json:"my_ranks"`
	OpponentRanks          Rank             `json:"opponent_ranks"`
	Timestamp              string           `json:"timestamp"`
}

// AggregatedFeedback is the on-disk shape of a candidate's ensemble
// feedback (spec §3's AggregatedFeedback entity).
type AggregatedFeedback struct {
	Strengths             []string `json:"strengths"`
	Weaknesses            []string `json:"weaknesses"`
	Ranks                 Rank     `json:"ranks"`
	Combined              float64  `json:"combined"`
	ImprovementSuggestion string   `json:"improvement_suggestion,omitempty"`
}

// Evaluation is the single-image scoring attached to a candidate once its
// image is generated and scored outside of pairwise comparison.
type Evaluation struct {
	AlignmentScore float64  `json:"alignment_score"`
	AestheticScore float64  `json:"aesthetic_score"`
	Strengths      []string `json:"strengths,omitempty"`
	Weaknesses     []string `json:"weaknesses,omitempty"`
	Analysis       string   `json:"analysis,omitempty"`
}

// Candidate is one row per (iteration, candidate_index), per spec §3.
type Candidate struct {
	CandidateIndex        int                  `json:"candidate_index"`
	ParentCandidateIndex  *int                 `json:"parent_candidate_index"`
	DimensionRefined      string               `json:"dimension_refined"`
	Status                Status               `json:"status"`
	WhatPrompt            string               `json:"what_prompt"`
	HowPrompt             string               `json:"how_prompt"`
	CombinedPrompt        string               `json:"combined_prompt"`
	ImageRef              string               `json:"image_ref"`
	Evaluation            *Evaluation          `json:"evaluation"`
	TotalScore            *float64             `json:"total_score"`
	Survived              bool                 `json:"survived"`
	Comparisons           []ComparisonRecord   `json:"comparisons"`
	AggregatedFeedback    *AggregatedFeedback  `json:"aggregated_feedback"`
	Critique              *critique.Critique   `json:"critique"`
}

// Iteration holds every candidate produced at one beam-search step.
type Iteration struct {
	IterationIndex     int         `json:"iteration_index"`
	DimensionRefined   string      `json:"dimension_refined"`
	BestCandidateIndex *int        `json:"best_candidate_index"`
	BestScore          *float64    `json:"best_score"`
	Candidates         []Candidate `json:"candidates"`
}

// FinalWinner records the session's overall winning candidate.
type FinalWinner struct {
	Iteration      int      `json:"iteration"`
	CandidateIndex int      `json:"candidate_index"`
	TotalScore     *float64 `json:"total_score"`
}

// LineageEntry is one step of the winner's ancestry, root first.
type LineageEntry struct {
	Iteration      int `json:"iteration"`
	CandidateIndex int `json:"candidate_index"`
}

// SessionRecord is the top-level on-disk document (spec §3, §6).
type SessionRecord struct {
	SessionID   string         `json:"session_id"`
	Timestamp   string         `json:"timestamp"`
	UserPrompt  string         `json:"user_prompt"`
	Config      any            `json:"config"`
	Iterations  []Iteration    `json:"iterations"`
	FinalWinner *FinalWinner   `json:"final_winner"`
	Lineage     []LineageEntry `json:"lineage"`
}

// TokenRecord is one line item of token usage attributable to a single
// provider call.
type TokenRecord struct {
	Provider  string         `json:"provider"`
	Operation string         `json:"operation"`
	Tokens    int            `json:"tokens"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TokenTotals is the aggregate token count, overall and per operation.
type TokenTotals struct {
	TotalTokens  int            `json:"total_tokens"`
	PerOperation map[string]int `json:"per_operation"`
}

// CostTotals is the aggregate estimated cost, overall and per operation.
type CostTotals struct {
	Total       float64            `json:"total"`
	PerOperation map[string]float64 `json:"per_operation"`
}

// TokensDocument is the tokens.json side file (spec §6).
type TokensDocument struct {
	SessionID     string        `json:"session_id"`
	GeneratedAt   string        `json:"generated_at"`
	Totals        TokenTotals   `json:"totals"`
	EstimatedCost CostTotals    `json:"estimated_cost"`
	Records       []TokenRecord `json:"records"`
}
