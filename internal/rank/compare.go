package rank

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
)

// PairwiseRanker wraps a VisionComparator collaborator with the core's
// combined-score computation and order-debiasing (spec §4.3, C3).
type PairwiseRanker struct {
	comparator      collaborator.VisionComparator
	alignmentWeight float64
	rng             *rand.Rand
}

// NewPairwiseRanker builds a PairwiseRanker. rng may be nil, in which case
// a source with the fixed seed 1 is used.
func NewPairwiseRanker(comparator collaborator.VisionComparator, alignmentWeight float64, rng *rand.Rand) *PairwiseRanker {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &PairwiseRanker{comparator: comparator, alignmentWeight: alignmentWeight, rng: rng}
}

func (r *PairwiseRanker) combined(rk collaborator.Rank) float64 {
	return r.alignmentWeight*rk.Alignment + (1-r.alignmentWeight)*rk.Aesthetics
}

// Compare delegates to the vision collaborator and computes each side's
// combined score. Lower combined is better.
func (r *PairwiseRanker) Compare(ctx context.Context, aRef, bRef, prompt string) (*Comparison, error) {
	verdict, err := r.comparator.Compare(ctx, aRef, bRef, prompt)
	if err != nil {
		return nil, err
	}
	if err := validateVerdict(verdict); err != nil {
		return nil, err
	}
	return &Comparison{
		Verdict:   verdict,
		CombinedA: r.combined(verdict.RankA),
		CombinedB: r.combined(verdict.RankB),
	}, nil
}

// validateVerdict rejects only structurally malformed verdicts; choice vs.
// rank orientation disagreements are otherwise trusted as the
// collaborator's call (spec §4.3).
func validateVerdict(v *collaborator.Verdict) error {
	switch v.Choice {
	case collaborator.ChoiceA, collaborator.ChoiceB, collaborator.ChoiceTie:
	default:
		return fmt.Errorf("rank: malformed verdict: invalid choice %q", v.Choice)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("rank: malformed verdict: confidence %.3f out of [0,1]", v.Confidence)
	}
	return nil
}

// CompareDebiased flips the operand order with probability 0.5 before
// calling the collaborator, then un-flips the result so the caller always
// sees A/B in the orientation it asked for (spec §4.3).
func (r *PairwiseRanker) CompareDebiased(ctx context.Context, aRef, bRef, prompt string) (*Comparison, error) {
	flipped := r.rng.Float64() < 0.5
	if !flipped {
		return r.Compare(ctx, aRef, bRef, prompt)
	}

	cmp, err := r.Compare(ctx, bRef, aRef, prompt)
	if err != nil {
		return nil, err
	}
	return unflip(cmp), nil
}

func unflip(cmp *Comparison) *Comparison {
	v := *cmp.Verdict
	v.Choice = invertChoice(v.Choice)
	v.RankA, v.RankB = v.RankB, v.RankA
	return &Comparison{
		Verdict:   &v,
		CombinedA: cmp.CombinedB,
		CombinedB: cmp.CombinedA,
	}
}

func invertChoice(c collaborator.Choice) collaborator.Choice {
	switch c {
	case collaborator.ChoiceA:
		return collaborator.ChoiceB
	case collaborator.ChoiceB:
		return collaborator.ChoiceA
	default:
		return collaborator.ChoiceTie
	}
}
