// Package beam implements the beam-search orchestrator (C8, spec §4.7):
// the per-iteration state machine that expands surviving candidates along
// a scheduled refinement dimension, ranks the resulting generation, and
// carries survivors and their critiques into the next iteration.
package beam

import (
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/critique"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/metadata"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/rank"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/pkg/config"
)

// Collaborators bundles the external services one session's orchestrator
// drives. VoterFactory is called once per iteration so each ranking call
// gets its own comparison graph, per spec §5's "owned by exactly one
// ranking call" rule.
type Collaborators struct {
	TextModel      collaborator.TextModel
	ImageGenerator collaborator.ImageGenerator
	VoterFactory   func() *rank.EnsembleVoter
}

// candidateState is a survivor carried from one iteration into the next,
// or the synthetic root at t=0.
type candidateState struct {
	candidateIndex *int // nil only for the synthetic root
	whatPrompt     string
	howPrompt      string
	imageRef       string
	critique       *critique.Critique
}

// childResult is one expansion worker's outcome, reported back to the
// sequential merge step after the bounded-concurrency fan-out completes.
type childResult struct {
	candidateIndex int
	parentIdx      int // index into the parents slice this child was spawned from
	dimension      string
	whatPrompt     string
	howPrompt      string
	combinedPrompt string
	ok             bool
	imageRef       string
}

// Orchestrator runs one beam-search session against an already-initialized
// metadata tracker.
type Orchestrator struct {
	cfg     *config.SessionConfig
	collab  Collaborators
	tracker *metadata.Tracker
}

// New builds an Orchestrator for one session.
func New(cfg *config.SessionConfig, collab Collaborators, tracker *metadata.Tracker) *Orchestrator {
	return &Orchestrator{cfg: cfg, collab: collab, tracker: tracker}
}

// Result is what Run returns when the session completes: the final
// winner's iteration, candidate index, and total score (nil when the
// winner has no numeric score).
type Result struct {
	WinnerIteration int
	WinnerCandidate int
	WinnerScore     *float64
}
