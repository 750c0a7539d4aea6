package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/imkarma/steward/internal/gate"
)

// FanOutReview dispatches one review per perspective concurrently,
// bounded by maxWorkers, and merges the results into a single review.
// Perspectives are independent read-only analyses of the same document,
// so they parallelize safely; the merge is a barrier — the quality gate
// never sees a partial set.
func (d *Dispatcher) FanOutReview(ctx context.Context, capability string, prompts map[string]string, maxWorkers int) (gate.Review, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		reviews  []gate.Review
		firstErr error
	)
	sem := make(chan struct{}, maxWorkers)

	for perspective, prompt := range prompts {
		wg.Add(1)
		go func(perspective, prompt string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			payload, err := d.Dispatch(ctx, capability, KindReview, prompt)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("perspective %s: %w", perspective, err)
				}
				return
			}
			// Reviews are read-only analyses; a reviewer that replies
			// with anything but a scored review fails its perspective.
			if payload.Status != StatusOK || payload.Review == nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("perspective %s: reviewer replied %s instead of a review", perspective, payload.Status)
				}
				return
			}
			reviews = append(reviews, *payload.Review)
		}(perspective, prompt)
	}
	wg.Wait()

	if firstErr != nil {
		return gate.Review{}, firstErr
	}
	return MergeReviews(reviews), nil
}

// MergeReviews folds perspective reviews into one: each rubric dimension
// takes its minimum across perspectives, and issues and prior-item
// classifications are unioned. A single unsalvageable verdict carries.
func MergeReviews(reviews []gate.Review) gate.Review {
	if len(reviews) == 0 {
		return gate.Review{}
	}

	merged := reviews[0]
	for _, r := range reviews[1:] {
		merged.Scores.Consistency = min(merged.Scores.Consistency, r.Scores.Consistency)
		merged.Scores.Completeness = min(merged.Scores.Completeness, r.Scores.Completeness)
		merged.Scores.Compliance = min(merged.Scores.Compliance, r.Scores.Compliance)
		merged.Scores.Feasibility = min(merged.Scores.Feasibility, r.Scores.Feasibility)
		merged.Issues = append(merged.Issues, r.Issues...)
		merged.PriorItems = append(merged.PriorItems, r.PriorItems...)
		merged.Unsalvageable = merged.Unsalvageable || r.Unsalvageable
	}
	return merged
}
