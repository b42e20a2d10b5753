package render

import (
	"context"
	"sync/atomic"
	"time"

	"storyart/internal/logging"
)

// CancelFlag is the cooperative cancellation handle for batch calls. The
// service exposes no hard abort, so an in-flight call always finishes; the
// flag only stops new work from being dispatched.
type CancelFlag struct {
	flag atomic.Bool
}

// NewCancelFlag returns an unset flag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{}
}

// Set requests cancellation.
func (f *CancelFlag) Set() {
	if f != nil {
		f.flag.Store(true)
	}
}

// IsSet reports whether cancellation was requested.
func (f *CancelFlag) IsSet() bool {
	return f != nil && f.flag.Load()
}

// Progress is delivered to the batch callback after every item.
type Progress struct {
	Index              int
	Total              int
	Label              string
	EstimatedRemaining time.Duration
}

// ItemResult pairs one request with its outcome.
type ItemResult struct {
	Label  string
	Result Result
	Err    error
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Items     []ItemResult
	Succeeded int
	Failed    int
	Cancelled bool
}

// GenerateBatch renders the requests in order, polling the cancel flag
// between items. Per-item failures are collected, never fatal; the only
// error return is a dead context.
func (c *Client) GenerateBatch(ctx context.Context, reqs []Request, cancel *CancelFlag, onProgress func(Progress)) (BatchResult, error) {
	batch := BatchResult{Items: make([]ItemResult, 0, len(reqs))}

	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		if cancel.IsSet() {
			batch.Cancelled = true
			c.logger.Info("batch cancelled; skipping remaining items",
				logging.Int("completed", i),
				logging.Int("total", len(reqs)),
			)
			break
		}

		result, err := c.Generate(ctx, req)
		item := ItemResult{Label: req.Label, Result: result, Err: err}
		if err != nil {
			batch.Failed++
		} else {
			batch.Succeeded++
		}
		batch.Items = append(batch.Items, item)

		if onProgress != nil {
			onProgress(Progress{
				Index:              i + 1,
				Total:              len(reqs),
				Label:              req.Label,
				EstimatedRemaining: c.EstimateRemaining(len(reqs) - i - 1),
			})
		}
	}
	return batch, nil
}
