package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/toncenter/ton-indexer/ton-classify-go/models"
	"github.com/toncenter/ton-indexer/ton-classify-go/repository"
)

// Result is the outcome of classifying one trace. A failed trace carries no
// actions.
type Result struct {
	TraceId models.HashType
	Success bool
	Actions []models.Action
}

// Processor wraps the engine with per-trace policy: the tick_tock
// short-circuit, block tree flattening and failure isolation.
type Processor struct {
	engine Engine
	logger *logrus.Logger
}

func NewProcessor(engine Engine, logger *logrus.Logger) *Processor {
	return &Processor{engine: engine, logger: logger}
}

// Classify classifies one trace. Engine errors are absorbed at the trace
// boundary: the trace is reported failed and sibling traces of the same
// batch are unaffected.
func (p *Processor) Classify(ctx context.Context, repo repository.InterfaceRepository, trace *models.Trace) Result {
	if len(trace.Transactions) == 1 && trace.Transactions[0].Descr == models.DescrTickTock && len(trace.Edges) == 0 {
		return Result{TraceId: trace.TraceId, Success: true}
	}
	actions, err := p.Delegate(ctx, repo, trace)
	if err != nil {
		p.logger.WithError(err).WithField("trace", trace.TraceId).Error("Marking trace as failed")
		return Result{TraceId: trace.TraceId, Success: false}
	}
	return Result{TraceId: trace.TraceId, Success: true, Actions: actions}
}

// Delegate runs the engine and flattens the block tree into actions: the
// synthetic root is skipped, as is any call_contract block whose trigger
// message has no on-chain recipient. This is also the entry point of the
// real-time path, which applies no tick_tock short-circuit.
func (p *Processor) Delegate(ctx context.Context, repo repository.InterfaceRepository, trace *models.Trace) ([]models.Action, error) {
	root, err := p.engine.ProcessTrace(ctx, repo, trace)
	if err != nil {
		return nil, err
	}
	var actions []models.Action
	for _, block := range root.Bfs() {
		if block.Type == BlockRoot {
			continue
		}
		if block.Type == BlockCallContract {
			msg := block.TriggerMessage()
			if msg == nil || msg.Destination == nil {
				continue
			}
		}
		actions = append(actions, BlockToAction(block, trace.TraceId))
	}
	return actions, nil
}

// ClassifyAll classifies every trace of a batch concurrently. Completion
// order across traces is unspecified; the returned slice is positionally
// aligned with the input.
func (p *Processor) ClassifyAll(ctx context.Context, repo repository.InterfaceRepository, traces []*models.Trace) []Result {
	results := make([]Result, len(traces))
	var wg sync.WaitGroup
	for i, trace := range traces {
		wg.Add(1)
		go func(i int, trace *models.Trace) {
			defer wg.Done()
			results[i] = p.Classify(ctx, repo, trace)
		}(i, trace)
	}
	wg.Wait()
	return results
}
