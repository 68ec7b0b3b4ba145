package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/instantcocoa/verdict/pkg/metrics"
)

const (
	defaultConcurrency        = 4
	defaultCheckpointInterval = 32

	// testModeLimit caps the number of fetched items in test mode.
	testModeLimit = 16
)

// Options configures a batch evaluation run.
type Options struct {
	// Endpoints are model API base URLs, assigned to items round-robin
	// by global index.
	Endpoints []string

	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
	Timeout     time.Duration

	// Concurrency bounds the worker pool used by both phases.
	Concurrency int

	// BadcaseThreshold marks any item scoring below it as a badcase,
	// in addition to the strategy's own verdict.
	BadcaseThreshold float64

	// Checkpoint, when set, persists completed items for resume.
	Checkpoint         *Checkpoint
	CheckpointInterval int
	Resume             bool

	// TestMode caps the fetch phase at a small fixed number of items.
	TestMode bool

	Progress ProgressFunc
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Orchestrator drives the two-phase batch pipeline: fetch model outputs
// for every expanded item, then score them with a single strategy.
type Orchestrator struct {
	caller   Caller
	strategy Strategy
	opts     Options
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator for the given caller and
// scoring strategy.
func NewOrchestrator(caller Caller, strategy Strategy, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = defaultCheckpointInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		caller:   caller,
		strategy: strategy,
		opts:     opts,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Run evaluates all items and returns the full result set sorted by
// global index, plus the badcase subset. Per-item failures are recorded
// in-band; only setup errors abort the run.
func (o *Orchestrator) Run(ctx context.Context, items []Item) (results, badcases []*Result, err error) {
	if o.strategy == nil {
		return nil, nil, fmt.Errorf("no scoring strategy configured")
	}

	tracer := otel.Tracer("verdict/eval")
	ctx, span := tracer.Start(ctx, "eval.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("items.total", len(items)))

	results, processed := o.restoreCheckpoint()
	pending := o.selectPending(items, processed)

	if len(pending) > 0 && len(o.opts.Endpoints) == 0 {
		return nil, nil, fmt.Errorf("no model endpoints configured")
	}
	if o.opts.TestMode && len(pending) > testModeLimit {
		pending = pending[:testModeLimit]
	}

	o.logger.Info("starting fetch phase",
		"total", len(items),
		"checkpointed", len(processed),
		"pending", len(pending),
		"concurrency", o.opts.Concurrency,
	)

	results = append(results, o.fetchAll(ctx, pending)...)

	sort.Slice(results, func(i, j int) bool {
		return results[i].GlobalIndex < results[j].GlobalIndex
	})

	o.scoreAll(ctx, results)

	for _, r := range results {
		if r.IsBadcase {
			badcases = append(badcases, r)
		}
	}

	o.logger.Info("evaluation complete", "results", len(results), "badcases", len(badcases))
	return results, badcases, nil
}

// restoreCheckpoint loads previously completed results and returns them
// deduplicated by global index, along with the set of indices that must
// not be re-fetched.
func (o *Orchestrator) restoreCheckpoint() ([]*Result, map[int]bool) {
	processed := make(map[int]bool)
	if o.opts.Checkpoint == nil || !o.opts.Resume {
		return nil, processed
	}

	loaded, err := o.opts.Checkpoint.Load()
	if err != nil {
		o.logger.Warn("failed to load checkpoint, starting fresh", "error", err)
		return nil, processed
	}

	var results []*Result
	for _, r := range loaded {
		// The log may hold duplicates from overlapping partial runs;
		// presence of the index is what marks an item processed.
		if processed[r.GlobalIndex] {
			continue
		}
		processed[r.GlobalIndex] = true
		results = append(results, r)
	}

	if len(results) > 0 {
		o.logger.Info("resuming from checkpoint", "restored", len(results))
	}
	return results, processed
}

func (o *Orchestrator) selectPending(items []Item, processed map[int]bool) []Item {
	var pending []Item
	for _, item := range items {
		if !processed[item.GlobalIndex] {
			pending = append(pending, item)
		}
	}
	return pending
}

// fetchAll runs phase 1: a bounded worker pool dispatches every pending
// item to the Model Caller, buffering new results for periodic
// checkpointing and reporting progress in the [0,60] band.
func (o *Orchestrator) fetchAll(ctx context.Context, pending []Item) []*Result {
	if len(pending) == 0 {
		return nil
	}

	tracer := otel.Tracer("verdict/eval")
	ctx, span := tracer.Start(ctx, "eval.fetch")
	defer span.End()

	jobs := make(chan Item)
	out := make(chan *Result)

	var wg sync.WaitGroup
	for w := 0; w < o.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				out <- o.fetchItem(ctx, item)
			}
		}()
	}

	go func() {
		for _, item := range pending {
			jobs <- item
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	var fetched []*Result
	var flushBuf []*Result
	completed := 0
	total := len(pending)

	for res := range out {
		fetched = append(fetched, res)
		flushBuf = append(flushBuf, res)
		completed++

		if o.opts.Progress != nil && ((completed-1)%10 == 0 || completed == total) {
			o.opts.Progress(PhaseFetch, completed, total, Percent(PhaseFetch, completed, total))
		}

		if o.opts.Checkpoint != nil && len(flushBuf) >= o.opts.CheckpointInterval {
			o.opts.Checkpoint.Append(flushBuf)
			flushBuf = flushBuf[:0]
		}
	}

	if o.opts.Checkpoint != nil && len(flushBuf) > 0 {
		o.opts.Checkpoint.Append(flushBuf)
	}

	return fetched
}

func (o *Orchestrator) fetchItem(ctx context.Context, item Item) *Result {
	// Strip the target turn: the model sees only the prompt-side history.
	prompt := item.Messages
	if len(prompt) > 0 {
		prompt = prompt[:len(prompt)-1]
	}

	endpoint := o.opts.Endpoints[item.GlobalIndex%len(o.opts.Endpoints)]

	start := time.Now()
	output, err := o.caller.Generate(ctx, GenerateRequest{
		Endpoint:    endpoint,
		Messages:    prompt,
		Model:       o.opts.Model,
		Temperature: o.opts.Temperature,
		TopP:        o.opts.TopP,
		MaxTokens:   o.opts.MaxTokens,
		Timeout:     o.opts.Timeout,
	})
	elapsed := time.Since(start)

	res := &Result{
		GlobalIndex:   item.GlobalIndex,
		OriginalIndex: item.OriginalIndex,
		ExpandedIndex: item.ExpandedIndex,
		Messages:      prompt,
		Reference:     item.Reference,
		InferenceSecs: elapsed.Seconds(),
	}

	if err != nil {
		res.Error = err.Error()
		o.logger.Warn("model call failed", "index", item.GlobalIndex, "endpoint", endpoint, "error", err)
		if o.opts.Metrics != nil {
			o.opts.Metrics.ItemFetched(o.opts.Model, "error", elapsed)
		}
		return res
	}

	res.ModelOutput = output
	if o.opts.Metrics != nil {
		o.opts.Metrics.ItemFetched(o.opts.Model, "success", elapsed)
	}
	return res
}

// scoreAll runs phase 2 over the merged result set, scoring only items
// that lack a score or carry a fetch error. Already-scored results pass
// through untouched.
func (o *Orchestrator) scoreAll(ctx context.Context, results []*Result) {
	var unscored []*Result
	for _, r := range results {
		if !r.Scored() {
			unscored = append(unscored, r)
		}
	}
	if len(unscored) == 0 {
		o.logger.Info("all results already scored")
		return
	}

	tracer := otel.Tracer("verdict/eval")
	ctx, span := tracer.Start(ctx, "eval.score")
	defer span.End()
	span.SetAttributes(attribute.Int("items.unscored", len(unscored)))

	o.logger.Info("starting score phase", "unscored", len(unscored))

	jobs := make(chan *Result)
	done := make(chan struct{})

	var wg sync.WaitGroup
	for w := 0; w < o.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				o.scoreItem(ctx, r)
				done <- struct{}{}
			}
		}()
	}

	go func() {
		for _, r := range unscored {
			jobs <- r
		}
		close(jobs)
		wg.Wait()
		close(done)
	}()

	scored := 0
	total := len(unscored)
	for range done {
		scored++
		if o.opts.Progress != nil && ((scored-1)%10 == 0 || scored == total) {
			o.opts.Progress(PhaseScore, scored, total, Percent(PhaseScore, scored, total))
		}
	}
}

// scoreItem applies the strategy to a single result. Scoring never
// propagates a failure: a strategy error or panic converts the item
// into a forced badcase. The badcase OR-rule (strategy verdict or score
// below threshold) is applied unconditionally afterward.
func (o *Orchestrator) scoreItem(ctx context.Context, r *Result) {
	sr, err := o.safeScore(ctx, r)
	if err != nil {
		o.logger.Warn("scoring failed", "index", r.GlobalIndex, "error", err)
		zero := 0.0
		r.Score = &zero
		r.Error = err.Error()
		r.IsBadcase = true
		if o.opts.Metrics != nil {
			o.opts.Metrics.ItemScored("error", true)
		}
		return
	}

	score := sr.Score
	r.Score = &score
	r.IsBadcase = sr.IsBadcase
	r.Details = sr.Details

	if r.IsBadcase || score < o.opts.BadcaseThreshold {
		r.IsBadcase = true
	}
	// An item that never produced output stays a badcase no matter what
	// the strategy made of the empty text.
	if r.Error != "" {
		r.IsBadcase = true
	}

	if o.opts.Metrics != nil {
		o.opts.Metrics.ItemScored("success", r.IsBadcase)
	}
}

func (o *Orchestrator) safeScore(ctx context.Context, r *Result) (sr ScoreResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scoring strategy panicked: %v", p)
		}
	}()
	return o.strategy(ctx, r.Messages, r.ModelOutput, r.Reference)
}
