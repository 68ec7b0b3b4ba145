package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/instantcocoa/verdict/eval"
	"github.com/instantcocoa/verdict/pkg/cache"
)

// progressTTL keeps stale progress keys from outliving their run.
const progressTTL = 24 * time.Hour

// ProgressUpdate is the payload published for each progress event.
type ProgressUpdate struct {
	RunID   string  `json:"run_id"`
	Phase   string  `json:"phase"`
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// RedisProgressPublisher mirrors run progress into Redis so external
// consumers (dashboards, pollers) can observe a run without tailing
// its logs. Publish failures are logged and dropped.
type RedisProgressPublisher struct {
	client *cache.Client
	runID  string
	logger *slog.Logger
}

// NewRedisProgressPublisher creates a publisher for the given run.
func NewRedisProgressPublisher(client *cache.Client, runID string, logger *slog.Logger) *RedisProgressPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisProgressPublisher{
		client: client,
		runID:  runID,
		logger: logger.With("component", "progress"),
	}
}

// Func returns a ProgressFunc that writes each update to the run's
// progress key.
func (p *RedisProgressPublisher) Func() eval.ProgressFunc {
	return func(phase eval.Phase, current, total int, percent float64) {
		update := ProgressUpdate{
			RunID:   p.runID,
			Phase:   string(phase),
			Current: current,
			Total:   total,
			Percent: percent,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := p.client.Set(ctx, "progress:"+p.runID, update, progressTTL); err != nil {
			p.logger.Warn("failed to publish progress", "run_id", p.runID, "error", err)
		}
	}
}
