package executor

import "context"

// Operator is one node of a Volcano-style pull-iterator tree (§4.4): Open
// once, Next repeatedly until io.EOF-shaped exhaustion (signalled by a nil,
// empty Batch alongside a nil error), then Close exactly once. Operators
// compose by holding their child Operator(s) and calling Open/Next/Close on
// them in turn — the same "open once, step repeatedly, close once" shape
// the teacher's pkg/scheduler.Scheduler uses for a single service's
// lifecycle, generalized here to an operator tree.
type Operator interface {
	// Open prepares the operator to produce rows. It must be called
	// exactly once before the first Next.
	Open(ctx context.Context) error

	// Next returns the next batch of rows, or a nil Batch when exhausted.
	// Callers must stop calling Next once it returns a nil Batch with a
	// nil error.
	Next(ctx context.Context) (Batch, error)

	// Close releases any resources (scratch files, iterators). Safe to
	// call once after Open, even if Next was never called or errored.
	Close() error
}

// checkDeadline is consulted between batches by every operator that can
// run long (scans, joins, group, sort) so a context cancellation surfaces
// promptly instead of only at the next blocking I/O.
func checkDeadline(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
