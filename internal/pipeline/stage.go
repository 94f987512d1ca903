// Package pipeline implements the fixed, ordered stage graph every Query
// traverses: normalize, access policy, session acquire, command/chat
// dispatch, reply. Each step is a named, replaceable Stage; the controller
// wraps every stage boundary with stage.before/stage.after events.
package pipeline

import (
	"context"

	"github.com/chatmesh/gateway/internal/model"
)

// ResultKind tags which StageResult variant is in play.
type ResultKind int

const (
	// ResultContinue proceeds to the next stage in declared order.
	ResultContinue ResultKind = iota
	// ResultJump skips to a named stage, earlier or later in the order. The
	// controller accepts any registered stage name and does not restrict
	// backward jumps; only maxStageTransitions bounds a resulting cycle.
	ResultJump
	// ResultInterrupt stops traversal entirely.
	ResultInterrupt
	// ResultYieldStream means the stage is producing a stream of partial
	// results; the controller feeds each one through the remaining stages.
	ResultYieldStream
)

// StageResult is the tagged variant a Stage returns from Process.
type StageResult struct {
	Kind   ResultKind
	Target string // stage name, set when Kind == ResultJump

	// Stream yields partial results when Kind == ResultYieldStream. Each
	// item is run through the remaining stages as if it were the query's
	// full result, the way a streaming LLM delta produces one partial
	// reply after another.
	Stream <-chan model.Message
}

// Continue is shorthand for StageResult{Kind: ResultContinue}.
func Continue() StageResult { return StageResult{Kind: ResultContinue} }

// Jump skips forward or backward to a named stage.
func Jump(target string) StageResult { return StageResult{Kind: ResultJump, Target: target} }

// Interrupt halts traversal; no further stages run for this query.
func Interrupt() StageResult { return StageResult{Kind: ResultInterrupt} }

// YieldStream wraps a channel of partial results for the controller to drain
// through the remaining stages.
func YieldStream(ch <-chan model.Message) StageResult {
	return StageResult{Kind: ResultYieldStream, Stream: ch}
}

// Stage is a named unit of pipeline work.
type Stage interface {
	// Name identifies the stage for Jump targets and stage.before/after
	// event payloads.
	Name() string

	// Initialize runs once at boot with the frozen pipeline config.
	Initialize(pipelineConfig any) error

	// Process transforms query and returns a control directive.
	Process(ctx context.Context, q *model.Query) (StageResult, error)
}

// StageFunc adapts a plain function to the Stage interface for stages with
// no initialization step.
type StageFunc struct {
	name string
	fn   func(ctx context.Context, q *model.Query) (StageResult, error)
}

// NewStageFunc builds a Stage from a bare process function.
func NewStageFunc(name string, fn func(ctx context.Context, q *model.Query) (StageResult, error)) *StageFunc {
	return &StageFunc{name: name, fn: fn}
}

func (s *StageFunc) Name() string { return s.name }

func (s *StageFunc) Initialize(pipelineConfig any) error { return nil }

func (s *StageFunc) Process(ctx context.Context, q *model.Query) (StageResult, error) {
	return s.fn(ctx, q)
}
