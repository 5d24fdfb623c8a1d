package ingest

import "context"

// PrimaryContext runs fn on an execution context with resource-loading
// affinity and returns once fn has completed. The pipeline hops onto it
// once, after resolution and before persistence.
type PrimaryContext interface {
	Run(ctx context.Context, fn func())
}

type inline struct{}

func (inline) Run(_ context.Context, fn func()) { fn() }

// Inline runs fn on the calling goroutine. Servers have no affinity
// constraint, so this is the default.
var Inline PrimaryContext = inline{}
