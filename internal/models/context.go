package models

import (
	"context"
)

type pipelineContextKey struct{}

// PipelineContext carries identifiers of the running mint pipeline so that
// downstream writers (ledger mirror, logs) can tag their output without
// widening every interface.
type PipelineContext struct {
	PipelineId string
	Signature  string
	Chain      string
	AssetType  AssetType
}

// WithPipelineContext attaches pipeline identifiers to a context.
func WithPipelineContext(ctx context.Context, pc *PipelineContext) context.Context {
	return context.WithValue(ctx, pipelineContextKey{}, pc)
}

// GetPipelineContext retrieves pipeline identifiers from context, or nil if absent.
func GetPipelineContext(ctx context.Context) *PipelineContext {
	pc, _ := ctx.Value(pipelineContextKey{}).(*PipelineContext)
	return pc
}
