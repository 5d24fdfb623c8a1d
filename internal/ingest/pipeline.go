package ingest

import (
	"context"
	"log/slog"
	"sync"

	"smsgate/internal/domain"
	"smsgate/internal/metrics"
)

const defaultWorkers = 4

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Queue       domain.EventQueue
	Coordinator *Coordinator
	Settings    func() Settings // read once per event
	Workers     int             // max events processed in parallel (default 4)
	Logger      *slog.Logger
}

// Pipeline consumes the event queue with bounded concurrency.
type Pipeline struct {
	queue       domain.EventQueue
	coordinator *Coordinator
	settings    func() Settings
	workers     int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewPipeline creates a Pipeline reading from cfg.Queue.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		queue:       cfg.Queue,
		coordinator: cfg.Coordinator,
		settings:    cfg.Settings,
		workers:     cfg.Workers,
		logger:      cfg.Logger,
	}
}

// Run dispatches events until the queue is closed or ctx ends. On ctx end
// the events already buffered are still dispatched. Dispatched events run
// to completion regardless of ctx; use Wait to drain them.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("ingest pipeline started", "workers", p.workers)

	sem := make(chan struct{}, p.workers)
	inbound := p.queue.Subscribe()
	work := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			n := p.drainBuffered(work, sem, inbound)
			p.logger.Info("ingest pipeline stopping", "drained", n)
			return
		case evt, ok := <-inbound:
			if !ok {
				p.logger.Info("event queue closed, ingest pipeline stopping")
				return
			}
			p.dispatch(work, sem, evt)
		}
	}
}

func (p *Pipeline) drainBuffered(ctx context.Context, sem chan struct{}, inbound <-chan domain.InboundEvent) int {
	n := 0
	for {
		select {
		case evt, ok := <-inbound:
			if !ok {
				return n
			}
			p.dispatch(ctx, sem, evt)
			n++
		default:
			return n
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context, sem chan struct{}, evt domain.InboundEvent) {
	sem <- struct{}{}
	p.wg.Add(1)
	metrics.InFlight.Inc()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("event processing panic", "event_id", evt.ID, "panic", r)
			}
			metrics.InFlight.Dec()
			p.wg.Done()
			<-sem
		}()
		out := p.coordinator.Process(ctx, evt, p.settings().Clone())
		if !out.State.Terminal() {
			p.logger.Error("event ended in a non-terminal state", "event_id", evt.ID, "state", out.State)
		}
	}()
}

// Wait blocks until every dispatched event reached a terminal state.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
