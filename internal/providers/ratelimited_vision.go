package providers

import (
	"context"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/pkg/security"
)

// RateLimitedVisionComparator wraps a collaborator.VisionComparator with a
// politeness limiter so a beam of many candidates doesn't hammer the
// vision-model API faster than its documented quota. The ensemble voter
// calls Compare sequentially per vote, which is exactly the call pattern
// pkg/security.RateLimiter.Wait is built to throttle.
type RateLimitedVisionComparator struct {
	inner   collaborator.VisionComparator
	limiter *security.RateLimiter
}

// NewRateLimitedVisionComparator wraps inner behind a token-bucket limiter
// of requestsPerSecond with the given burst.
func NewRateLimitedVisionComparator(inner collaborator.VisionComparator, requestsPerSecond float64, burst int) *RateLimitedVisionComparator {
	return &RateLimitedVisionComparator{
		inner:   inner,
		limiter: security.NewRateLimiter(requestsPerSecond, burst),
	}
}

// Compare implements collaborator.VisionComparator, blocking on the
// limiter before delegating.
func (r *RateLimitedVisionComparator) Compare(ctx context.Context, aRef, bRef, prompt string) (*collaborator.Verdict, error) {
	if err := r.limiter.Wait(ctx, "vision_comparator"); err != nil {
		return nil, err
	}
	return r.inner.Compare(ctx, aRef, bRef, prompt)
}
