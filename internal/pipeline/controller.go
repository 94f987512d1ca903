package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
	"github.com/chatmesh/gateway/internal/plugins"
)

// maxStageTransitions bounds the number of stage-to-stage transitions a
// single query may make. The controller does not check jump targets for
// cycles, so this bound is what turns a cycle of jumps into an error
// instead of a hung goroutine; the built-in stages only jump forward and
// never come close to it.
const maxStageTransitions = 256

// Controller runs a query through a fixed, ordered stage graph, emitting
// stage.before/stage.after around each stage and honoring PreventDefault,
// Jump, Interrupt and YieldStream directives.
type Controller struct {
	stages []Stage
	byName map[string]int
	host   *plugins.Host
	logger *slog.Logger
}

// New builds a Controller over stages, executed in the given order.
func New(stages []Stage, host *plugins.Host, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]int, len(stages))
	for i, s := range stages {
		byName[s.Name()] = i
	}
	return &Controller{
		stages: stages,
		byName: byName,
		host:   host,
		logger: logger.With("component", "pipeline"),
	}
}

// Initialize runs every stage's one-time setup against pipelineConfig.
func (c *Controller) Initialize(pipelineConfig any) error {
	for _, s := range c.stages {
		if err := s.Initialize(pipelineConfig); err != nil {
			return perrors.NewConfig(fmt.Sprintf("stage %q failed to initialize", s.Name()), err)
		}
	}
	return nil
}

// Run traverses the stage graph for q starting at the first stage. Any
// unexpected error escapes to here, is logged, surfaces as
// unhandled_exception, and ends the query (spec's error propagation policy:
// stages translate expected errors into replies or Interrupt themselves).
func (c *Controller) Run(ctx context.Context, q *model.Query) error {
	err := c.runFrom(ctx, q, 0)
	if err != nil && c.host != nil {
		c.host.Emit(ctx, model.NewEvent(model.EventUnhandledException, map[string]any{
			"query_id": q.ID,
			"error":    err.Error(),
		}))
	}
	return err
}

func (c *Controller) runFrom(ctx context.Context, q *model.Query, start int) error {
	idx := start
	transitions := 0

	for idx < len(c.stages) {
		if transitions > maxStageTransitions {
			return perrors.NewInternal("exceeded maximum stage transitions, likely a misconfigured cycle", nil)
		}
		transitions++

		stage := c.stages[idx]
		result, err := c.runStage(ctx, stage, q)
		if err != nil {
			return err
		}

		switch result.Kind {
		case ResultContinue:
			idx++
		case ResultInterrupt:
			return nil
		case ResultJump:
			target, ok := c.byName[result.Target]
			if !ok {
				return perrors.NewInternal(fmt.Sprintf("stage %q jumped to unknown stage %q", stage.Name(), result.Target), nil)
			}
			idx = target
		case ResultYieldStream:
			if err := c.drainStream(ctx, q, idx+1, result.Stream); err != nil {
				return err
			}
			return nil
		default:
			return perrors.NewInternal(fmt.Sprintf("stage %q returned an unknown result kind", stage.Name()), nil)
		}
	}
	return nil
}

// drainStream feeds each partial result from a YieldStream through the
// stages remaining after the yielding stage, one at a time, as if each were
// the query's full result (e.g. a streaming LLM delta becomes one partial
// reply sent down the reply-wrapping/send-reply stages).
func (c *Controller) drainStream(ctx context.Context, q *model.Query, tailStart int, stream <-chan model.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-stream:
			if !ok {
				return nil
			}
			q.AppendReply(msg)
			if tailStart < len(c.stages) {
				if err := c.runFrom(ctx, q, tailStart); err != nil {
					return err
				}
			}
		}
	}
}

// runStage emits stage.before, runs the stage unless a plugin prevented the
// default, and emits stage.after.
func (c *Controller) runStage(ctx context.Context, stage Stage, q *model.Query) (StageResult, error) {
	before := model.NewEvent(model.EventStageBefore, map[string]any{
		"stage":    stage.Name(),
		"query_id": q.ID,
	})
	if c.host != nil {
		c.host.Emit(ctx, before)
	}

	var result StageResult
	var err error
	if before.IsDefaultPrevented() {
		result = c.resultFromReturns(before)
	} else {
		result, err = stage.Process(ctx, q)
		if err != nil {
			return StageResult{}, err
		}
	}

	after := model.NewEvent(model.EventStageAfter, map[string]any{
		"stage":    stage.Name(),
		"query_id": q.ID,
	})
	if c.host != nil {
		c.host.Emit(ctx, after)
	}
	return result, nil
}

// resultFromReturns lets a plugin that prevented the default also choose the
// directive explicitly (via evt.AddReturn("result", pipeline.Continue())),
// defaulting to Continue.
func (c *Controller) resultFromReturns(evt *model.Event) StageResult {
	for _, v := range evt.Returns("result") {
		if r, ok := v.(StageResult); ok {
			return r
		}
	}
	return Continue()
}
