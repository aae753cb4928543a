// Package rank implements the pairwise ranker (C3), ensemble voter (C4),
// and ranking engine (C5) of spec §4.3–§4.4: pairwise image comparison via
// a vision-language collaborator, debiased and ensembled into a per-pair
// verdict, and composed into a total order over a candidate set using
// either an all-pairs or tournament-with-transitivity strategy.
package rank

import "github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"

// Candidate is one image under ranking consideration.
type Candidate struct {
	ID       string
	ImageRef string
}

// Comparison is a single pairwise verdict plus the combined scores the core
// computes from it (lower combined is better).
type Comparison struct {
	Verdict   *collaborator.Verdict
	CombinedA float64
	CombinedB float64
}

// AggregateVerdict is the result of compare_ensemble: n sequential
// debiased comparisons folded into one verdict (spec §4.3).
type AggregateVerdict struct {
	Choice                collaborator.Choice
	Confidence            float64
	RankA                 collaborator.Rank
	RankB                 collaborator.Rank
	CombinedA             float64
	CombinedB             float64
	WinnerStrengths       []string
	LoserWeaknesses       []string
	ImprovementSuggestion string
}

// AggregatedFeedback is the per-candidate feedback folded across every
// comparison it took part in during one ranking call. AlignmentSum,
// AestheticsSum, and Observations accumulate the alignment/aesthetics
// ranks the candidate received in each comparison it was party to; the
// engine divides by Observations to get the per-factor means spec §3's
// AggregatedFeedback.ranks describes.
type AggregatedFeedback struct {
	Strengths     []string
	Weaknesses    []string
	AlignmentSum  float64
	AestheticsSum float64
	Observations  int
}

// MeanRanks returns the per-factor arithmetic means and the resulting
// combined score (alignmentWeight·alignment + (1-alignmentWeight)·
// aesthetics). Returns the zero value when the candidate was never
// compared (e.g. a known_comparisons-only run).
func (f *AggregatedFeedback) MeanRanks(alignmentWeight float64) (alignment, aesthetics, combined float64) {
	if f == nil || f.Observations == 0 {
		return 0, 0, 0
	}
	alignment = f.AlignmentSum / float64(f.Observations)
	aesthetics = f.AestheticsSum / float64(f.Observations)
	combined = alignmentWeight*alignment + (1-alignmentWeight)*aesthetics
	return alignment, aesthetics, combined
}

// RankedCandidate is one row of a ranking engine's output.
type RankedCandidate struct {
	CandidateID           string
	Rank                  int // 1-based, dense
	WinCount              int
	AggregatedFeedback    *AggregatedFeedback
	ImprovementSuggestion string
}

// ErrorRecord is logged into a RankingResult when graceful_degradation
// absorbs a comparison failure (spec §4.4).
type ErrorRecord struct {
	Type       string
	CandidateA string
	CandidateB string
	Message    string
}

// RankingResult is the output of one Rank call.
type RankingResult struct {
	Rankings []RankedCandidate
	Errors   []ErrorRecord
}

// ProgressEvent is fired after every comparison, real or inferred (spec
// §4.4's on_progress contract).
type ProgressEvent struct {
	Type       string
	Completed  int
	Total      int
	CandidateA string
	CandidateB string
	Winner     string // candidate id (a tie is credited to CandidateA); empty when the comparison failed
	Inferred   bool
	Err        error
	// Verdict is the ensemble's aggregate verdict for this pair, nil when
	// the pair's result was inferred from the comparison graph instead of
	// called. Callers that need a per-opponent comparison record (e.g. the
	// metadata tracker) read ranks off this field.
	Verdict *AggregateVerdict
}

// Strategy selects which ranking algorithm Rank uses.
type Strategy string

const (
	StrategyAllPairs   Strategy = "all_pairs"
	StrategyTournament Strategy = "tournament"
	StrategyAuto       Strategy = "auto"
)

// autoAllPairsThreshold is the N at or below which StrategyAuto behaves as
// all-pairs (spec §4.4).
const autoAllPairsThreshold = 8

// Options configures a single Rank call.
type Options struct {
	KnownComparisons    [][2]string // winner, loser pairs seeded into the graph up front
	EnsembleSize        int
	Strategy            Strategy
	GracefulDegradation bool
	OnProgress          func(ProgressEvent)
	AlignmentWeight     float64
}

func (o Options) usesAllPairs(n int) bool {
	return o.Strategy == StrategyAllPairs || (o.Strategy == StrategyAuto && n <= autoAllPairsThreshold)
}
