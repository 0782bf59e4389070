// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"metatree.io/metatree/internal/sync2"
)

var mon = monkit.Package()

// State is the lifecycle state of a pipeline run.
type State string

const (
	// StatePending means the run has not started yet.
	StatePending State = "pending"
	// StateRunning means items are being processed.
	StateRunning State = "running"
	// StateCompleted means the provider was exhausted and all items
	// drained, item errors included.
	StateCompleted State = "completed"
	// StateFailed means the run itself failed: the provider could not
	// enumerate work or the configuration was invalid.
	StateFailed State = "failed"
)

// DefaultJobs is the worker pool size used when none is configured.
const DefaultJobs = 4

// Summary is the per-run report: item counts by outcome and the final
// state.
type Summary struct {
	State   State
	Counts  map[Outcome]int
	Results []Result
}

// Items returns the total number of processed items.
func (summary *Summary) Items() int {
	total := 0
	for _, count := range summary.Counts {
		total += count
	}
	return total
}

// AllErrored reports whether every processed item errored. Runs with no
// items did not "all error".
func (summary *Summary) AllErrored() bool {
	total := summary.Items()
	return total > 0 && summary.Counts[OutcomeError] == total
}

// Run executes one pipeline: a provider feeding a processor chain with
// bounded parallelism.
type Run struct {
	log        *zap.Logger
	provider   Provider
	processors []Processor
	jobs       int

	// serialize guards stages that are not safe for concurrent
	// invocation.
	serialize []sync.Mutex

	stopOnce sync.Once
	stopped  chan struct{}

	mu      sync.Mutex
	state   State
	counts  map[Outcome]int
	results []Result
}

// NewRun creates a pipeline run. The processor chain order is the
// per-item execution order.
func NewRun(log *zap.Logger, provider Provider, processors []Processor, jobs int) (*Run, error) {
	if provider == nil {
		return nil, ErrConfiguration.New("missing provider")
	}
	if len(processors) == 0 {
		return nil, ErrConfiguration.New("missing processors")
	}
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	return &Run{
		log:        log,
		provider:   provider,
		processors: processors,
		jobs:       jobs,
		serialize:  make([]sync.Mutex, len(processors)),
		stopped:    make(chan struct{}),
		state:      StatePending,
		counts:     map[Outcome]int{},
	}, nil
}

// State returns the current run state.
func (run *Run) State() State {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.state
}

// Stop requests a cooperative stop: no new items are scheduled, items
// already in flight drain normally.
func (run *Run) Stop() {
	run.stopOnce.Do(func() { close(run.stopped) })
}

// Execute runs the pipeline to completion and returns the summary.
// A single item's failure never fails the run; only provider faults do.
func (run *Run) Execute(ctx context.Context) (_ *Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	run.setState(StateRunning)

	// provider cancellation is tied to both the caller's context and
	// the stop request
	providerCtx, cancelProvider := context.WithCancel(ctx)
	defer cancelProvider()

	go func() {
		select {
		case <-run.stopped:
			cancelProvider()
		case <-providerCtx.Done():
		}
	}()

	// the bounded queue gives the provider backpressure: enumeration
	// suspends while all workers are busy and the queue is full
	queue := make(chan *Item, 2*run.jobs)
	providerDone := make(chan error, 1)
	go func() {
		defer close(queue)
		providerDone <- run.provider.Provide(providerCtx, queue)
	}()

	limiter := sync2.NewLimiter(run.jobs)
scheduling:
	for item := range queue {
		select {
		case <-run.stopped:
			break scheduling
		default:
		}
		item := item
		if !limiter.Go(ctx, func() { run.processItem(ctx, item) }) {
			break
		}
	}
	limiter.Wait()

	providerErr := <-providerDone

	summary := run.summarize()

	stopRequested := false
	select {
	case <-run.stopped:
		stopRequested = true
	default:
	}

	// a stop request forgives only the cancellation it caused; a real
	// provider fault still fails the run
	if providerErr != nil && !(stopRequested && errors.Is(providerErr, context.Canceled)) {
		run.setState(StateFailed)
		summary.State = StateFailed
		return summary, Error.Wrap(providerErr)
	}

	run.setState(StateCompleted)
	summary.State = StateCompleted

	run.log.Info("pipeline run finished",
		zap.String("provider", run.provider.Name()),
		zap.Int("items", summary.Items()),
		zap.Int("ok", summary.Counts[OutcomeOK]),
		zap.Int("notneeded", summary.Counts[OutcomeNotNeeded]),
		zap.Int("impossible", summary.Counts[OutcomeImpossible]),
		zap.Int("errors", summary.Counts[OutcomeError]),
		zap.Bool("stopped", stopRequested))

	return summary, nil
}

// processItem pushes one item through the full processor chain. Stage
// order within an item is strict; ordering across items is unspecified.
func (run *Run) processItem(ctx context.Context, item *Item) {
	outcome := OutcomeNotNeeded
	var failure error

	for i, processor := range run.processors {
		if !processor.Concurrent() {
			run.serialize[i].Lock()
		}
		stageOutcome, err := processor.Process(ctx, item)
		if !processor.Concurrent() {
			run.serialize[i].Unlock()
		}

		if err != nil {
			run.log.Warn("pipeline stage failed",
				zap.String("stage", processor.Name()),
				zap.String("path", item.Entry.Path),
				zap.Error(err))
			outcome, failure = OutcomeError, err
			break
		}

		outcome = stageOutcome
		if stageOutcome == OutcomeNotNeeded || stageOutcome == OutcomeImpossible {
			break
		}
	}

	result := Result{Path: item.Entry.Path, Outcome: outcome}
	if failure != nil {
		result.Error = failure.Error()
	}

	run.mu.Lock()
	run.counts[outcome]++
	run.results = append(run.results, result)
	run.mu.Unlock()
}

func (run *Run) setState(state State) {
	run.mu.Lock()
	run.state = state
	run.mu.Unlock()
}

func (run *Run) summarize() *Summary {
	run.mu.Lock()
	defer run.mu.Unlock()

	counts := make(map[Outcome]int, len(run.counts))
	for outcome, count := range run.counts {
		counts[outcome] = count
	}
	return &Summary{
		Counts:  counts,
		Results: append([]Result(nil), run.results...),
	}
}
