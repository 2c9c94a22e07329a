// Package refine post-processes search results: overlap deduplication,
// context expansion, and recency boosting. All steps operate on copies
// of the result list; stored chunks are never modified.
package refine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/semidx/semidx/internal/search"
)

// Options control which refinement steps run.
type Options struct {
	// Deduplicate drops results whose line range overlaps a
	// higher-scored result from the same file.
	Deduplicate bool

	// OverlapThreshold is the overlap fraction of the smaller range at
	// or above which two results count as duplicates.
	OverlapThreshold float64

	// ExpandContext widens each result's content with surrounding
	// lines read from the source file.
	ExpandContext bool

	// ContextLinesBefore and ContextLinesAfter bound the expansion.
	ContextLinesBefore int
	ContextLinesAfter  int

	// RecencyWeight scales the recency boost. Zero disables it.
	RecencyWeight float64
}

// DefaultOptions returns the standard refinement configuration.
func DefaultOptions() Options {
	return Options{
		Deduplicate:        true,
		OverlapThreshold:   0.5,
		ContextLinesBefore: 3,
		ContextLinesAfter:  3,
		RecencyWeight:      0.1,
	}
}

// Refiner applies the configured refinement steps in a fixed order:
// deduplicate, boost recency, expand context.
type Refiner struct {
	root string
	opts Options
}

// NewRefiner creates a refiner. root is the project root used to
// resolve chunk paths for context expansion.
func NewRefiner(root string, opts Options) *Refiner {
	return &Refiner{root: root, opts: opts}
}

// Refine runs the enabled steps and returns a new slice.
func (r *Refiner) Refine(results []*search.Result) []*search.Result {
	if r.opts.Deduplicate {
		results = Deduplicate(results, r.opts.OverlapThreshold)
	}
	if r.opts.RecencyWeight > 0 {
		results = BoostRecency(results, r.opts.RecencyWeight)
	}
	if r.opts.ExpandContext {
		results = ExpandContext(results, r.root, r.opts.ContextLinesBefore, r.opts.ContextLinesAfter)
	}
	return results
}

// Deduplicate removes same-file results whose line ranges overlap an
// already-kept result by at least threshold, measured as a fraction of
// the smaller range. The higher-scored result survives; since input is
// score-ordered, earlier entries win. Survivor order is preserved.
func Deduplicate(results []*search.Result, threshold float64) []*search.Result {
	if len(results) < 2 || threshold <= 0 {
		return results
	}

	kept := make([]*search.Result, 0, len(results))
	for _, candidate := range results {
		duplicate := false
		for _, existing := range kept {
			if existing.Chunk.Path != candidate.Chunk.Path {
				continue
			}
			if overlapFraction(existing.Chunk.StartLine, existing.Chunk.EndLine,
				candidate.Chunk.StartLine, candidate.Chunk.EndLine) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	return kept
}

// overlapFraction returns the shared line count divided by the length
// of the shorter range. Non-overlapping ranges yield 0.
func overlapFraction(aStart, aEnd, bStart, bEnd int) float64 {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	if hi < lo {
		return 0
	}

	overlap := hi - lo + 1
	lenA := aEnd - aStart + 1
	lenB := bEnd - bStart + 1

	shorter := lenA
	if lenB < shorter {
		shorter = lenB
	}
	if shorter <= 0 {
		return 0
	}
	return float64(overlap) / float64(shorter)
}

// BoostRecency adds weight scaled by each result's min-max normalized
// index time, caps scores at 1.0, and re-sorts. When all results share
// the same index time the boost is skipped entirely so a uniform batch
// keeps its relevance ordering.
func BoostRecency(results []*search.Result, weight float64) []*search.Result {
	if len(results) < 2 || weight <= 0 {
		return results
	}

	minT := results[0].Chunk.IndexedAt
	maxT := minT
	for _, r := range results[1:] {
		t := r.Chunk.IndexedAt
		if t.Before(minT) {
			minT = t
		}
		if t.After(maxT) {
			maxT = t
		}
	}
	if !maxT.After(minT) {
		return results
	}

	span := maxT.Sub(minT).Seconds()
	boosted := make([]*search.Result, len(results))
	for i, r := range results {
		clone := *r
		norm := r.Chunk.IndexedAt.Sub(minT).Seconds() / span
		clone.Score += weight * norm
		if clone.Score > 1.0 {
			clone.Score = 1.0
		}
		boosted[i] = &clone
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})
	return boosted
}

// ExpandContext re-reads each result's source file and widens its
// content by the configured number of lines, clamped to the file. The
// expansion only affects what is displayed; failures leave the result
// untouched.
func ExpandContext(results []*search.Result, root string, before, after int) []*search.Result {
	if before <= 0 && after <= 0 {
		return results
	}

	expanded := make([]*search.Result, len(results))
	for i, r := range results {
		expanded[i] = expandOne(r, root, before, after)
	}
	return expanded
}

func expandOne(r *search.Result, root string, before, after int) *search.Result {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(r.Chunk.Path)))
	if err != nil {
		return r
	}

	lines := strings.Split(string(data), "\n")
	lineCount := len(lines)
	if lineCount > 0 && lines[lineCount-1] == "" {
		lineCount--
	}

	start := r.Chunk.StartLine - before
	if start < 1 {
		start = 1
	}
	end := r.Chunk.EndLine + after
	if end > lineCount {
		end = lineCount
	}
	if start > end {
		return r
	}

	chunk := *r.Chunk
	chunk.Content = strings.Join(lines[start-1:end], "\n")
	chunk.StartLine = start
	chunk.EndLine = end

	clone := *r
	clone.Chunk = &chunk
	return &clone
}
