package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/critique"
)

// Tracker owns one session's SessionRecord and persists it atomically to
// disk on every mutation (spec §4.6). It is the sole writer of its
// session's metadata.json; callers (the beam-search orchestrator) must
// not mutate the returned SessionRecord directly.
type Tracker struct {
	mu     sync.Mutex
	dir    string
	record SessionRecord
}

// Initialize creates the session directory and writes the initial,
// empty SessionRecord skeleton atomically.
func Initialize(outputDir, sessionID, userPrompt string, config any, now time.Time) (*Tracker, error) {
	dir := filepath.Join(outputDir, now.Format("2006-01-02"), sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	t := &Tracker{
		dir: dir,
		record: SessionRecord{
			SessionID:  sessionID,
			Timestamp:  now.Format(time.RFC3339),
			UserPrompt: userPrompt,
			Config:     config,
			Iterations: []Iteration{},
		},
	}
	if err := t.persistLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

// Dir returns the session's on-disk directory.
func (t *Tracker) Dir() string {
	return t.dir
}

// RecordAttempt inserts (or looks up) the Iteration for iterationIndex and
// appends a Candidate with status "attempted", all result fields null.
// This must be called before any generation/ranking work starts for the
// candidate, so a crash mid-attempt still leaves the attempt visible.
// The returned candidateIndex is the candidate's position within its
// iteration.
func (t *Tracker) RecordAttempt(iterationIndex int, parentCandidateIndex *int, dimensionRefined, whatPrompt, howPrompt, combinedPrompt string, crit *critique.Critique) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	iter := t.findOrCreateIterationLocked(iterationIndex, dimensionRefined)
	candidateIndex := len(iter.Candidates)
	iter.Candidates = append(iter.Candidates, Candidate{
		CandidateIndex:       candidateIndex,
		ParentCandidateIndex: parentCandidateIndex,
		DimensionRefined:     dimensionRefined,
		Status:               StatusAttempted,
		WhatPrompt:           whatPrompt,
		HowPrompt:            howPrompt,
		CombinedPrompt:       combinedPrompt,
		Comparisons:          []ComparisonRecord{},
		Critique:             crit,
	})
	t.putIterationLocked(iterationIndex, iter)

	if err := t.persistLocked(); err != nil {
		return 0, err
	}
	return candidateIndex, nil
}

// UpdateAttemptWithResults marks a candidate completed with its generation
// results.
func (t *Tracker) UpdateAttemptWithResults(iterationIndex, candidateIndex int, imageRef string, eval *Evaluation, totalScore *float64, survived bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.candidateLocked(iterationIndex, candidateIndex)
	if err != nil {
		return err
	}
	c.Status = StatusCompleted
	c.ImageRef = imageRef
	c.Evaluation = eval
	c.TotalScore = totalScore
	c.Survived = survived

	return t.persistLocked()
}

// MarkAttemptFailed marks a candidate failed. A single child's failure
// never aborts the iteration (spec §4.7); the orchestrator simply records
// it and moves on.
func (t *Tracker) MarkAttemptFailed(iterationIndex, candidateIndex int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.candidateLocked(iterationIndex, candidateIndex)
	if err != nil {
		return err
	}
	c.Status = StatusFailed

	return t.persistLocked()
}

// EnrichCandidateWithRankingData writes the ranking engine's output into
// an existing candidate and recomputes the iteration's best candidate.
func (t *Tracker) EnrichCandidateWithRankingData(iterationIndex, candidateIndex int, comparisons []ComparisonRecord, feedback *AggregatedFeedback, crit *critique.Critique) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.candidateLocked(iterationIndex, candidateIndex)
	if err != nil {
		return err
	}
	c.Comparisons = comparisons
	c.AggregatedFeedback = feedback
	if crit != nil {
		c.Critique = crit
	}

	t.recomputeBestLocked(iterationIndex)

	return t.persistLocked()
}

// MarkSurvived flips a completed candidate's survived flag once the
// beam-search orchestrator has selected its iteration's top keep_top
// (spec §4.7 step 5), after the ranking engine has already run.
func (t *Tracker) MarkSurvived(iterationIndex, candidateIndex int, survived bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.candidateLocked(iterationIndex, candidateIndex)
	if err != nil {
		return err
	}
	c.Survived = survived

	return t.persistLocked()
}

// MarkFinalWinner records the session's overall winner and materializes
// its lineage by walking parent_candidate_index back to the root,
// root-first.
func (t *Tracker) MarkFinalWinner(iterationIndex, candidateIndex int, totalScore *float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record.FinalWinner = &FinalWinner{
		Iteration:      iterationIndex,
		CandidateIndex: candidateIndex,
		TotalScore:     totalScore,
	}

	var lineage []LineageEntry
	curIter, curIdx := iterationIndex, candidateIndex
	for {
		c, err := t.candidateLocked(curIter, curIdx)
		if err != nil {
			return err
		}
		lineage = append([]LineageEntry{{Iteration: curIter, CandidateIndex: curIdx}}, lineage...)
		if c.ParentCandidateIndex == nil {
			break
		}
		curIdx = *c.ParentCandidateIndex
		curIter--
	}
	t.record.Lineage = lineage

	return t.persistLocked()
}

// PersistTokens writes the tokens.json side file alongside metadata.json.
func (t *Tracker) PersistTokens(totals TokenTotals, cost CostTotals, records []TokenRecord, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc := TokensDocument{
		SessionID:     t.record.SessionID,
		GeneratedAt:   now.Format(time.RFC3339),
		Totals:        totals,
		EstimatedCost: cost,
		Records:       records,
	}
	return writeAtomic(filepath.Join(t.dir, "tokens.json"), doc)
}

func (t *Tracker) findOrCreateIterationLocked(iterationIndex int, dimensionRefined string) Iteration {
	for _, it := range t.record.Iterations {
		if it.IterationIndex == iterationIndex {
			return it
		}
	}
	return Iteration{IterationIndex: iterationIndex, DimensionRefined: dimensionRefined, Candidates: []Candidate{}}
}

func (t *Tracker) putIterationLocked(iterationIndex int, iter Iteration) {
	for i, it := range t.record.Iterations {
		if it.IterationIndex == iterationIndex {
			t.record.Iterations[i] = iter
			return
		}
	}
	t.record.Iterations = append(t.record.Iterations, iter)
}

// candidateLocked returns a pointer into the in-memory record so callers
// can mutate it directly before persisting.
func (t *Tracker) candidateLocked(iterationIndex, candidateIndex int) (*Candidate, error) {
	for i := range t.record.Iterations {
		if t.record.Iterations[i].IterationIndex != iterationIndex {
			continue
		}
		cands := t.record.Iterations[i].Candidates
		if candidateIndex < 0 || candidateIndex >= len(cands) {
			return nil, fmt.Errorf("metadata: candidate %d not found in iteration %d", candidateIndex, iterationIndex)
		}
		return &t.record.Iterations[i].Candidates[candidateIndex], nil
	}
	return nil, fmt.Errorf("metadata: iteration %d not found", iterationIndex)
}

// recomputeBestLocked applies spec §4.6's tie-break rule: prefer
// candidates with a numeric total_score (higher wins); if none have one,
// prefer the lowest combined rank; ties broken by candidate_index.
func (t *Tracker) recomputeBestLocked(iterationIndex int) {
	var iter *Iteration
	for i := range t.record.Iterations {
		if t.record.Iterations[i].IterationIndex == iterationIndex {
			iter = &t.record.Iterations[i]
			break
		}
	}
	if iter == nil {
		return
	}

	var bestIdx *int
	var bestScore *float64
	haveScored := false
	var bestCombined float64

	for i := range iter.Candidates {
		c := &iter.Candidates[i]
		if c.TotalScore != nil {
			if !haveScored || *c.TotalScore > *bestScore {
				idx := c.CandidateIndex
				bestIdx = &idx
				score := *c.TotalScore
				bestScore = &score
				haveScored = true
			}
			continue
		}
		if haveScored || c.AggregatedFeedback == nil {
			continue
		}
		combined := c.AggregatedFeedback.Combined
		if bestIdx == nil || combined < bestCombined {
			idx := c.CandidateIndex
			bestIdx = &idx
			bestCombined = combined
		}
	}

	iter.BestCandidateIndex = bestIdx
	iter.BestScore = bestScore
}

func (t *Tracker) persistLocked() error {
	return writeAtomic(filepath.Join(t.dir, "metadata.json"), t.record)
}

// writeAtomic marshals v to indented JSON and writes it to path via a
// temp file in the same directory followed by a rename, so readers never
// observe a partially written document.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", filepath.Base(path), err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file into %s: %w", filepath.Base(path), err)
	}
	return nil
}
