package model

import (
	"context"
	"sync/atomic"
	"time"
)

var queryIDCounter int64

// NextQueryID returns a fresh, monotonically increasing, process-local query
// id.
func NextQueryID() int64 {
	return atomic.AddInt64(&queryIDCounter, 1)
}

// AdapterHandle is the minimal capability a Query needs from the platform
// adapter that produced it: the ability to send the reply back. The full
// MessagePlatformAdapter capability lives in internal/channels; Query only
// needs to remember which one to call back into.
type AdapterHandle interface {
	ChannelType() ChannelType
	ReplyMessage(ctx context.Context, evt *MessageEvent, chain MessageChain, quoteOrigin bool) error
}

// MessageEvent is the original typed platform event, retained on the Query
// for quoting/reply context.
type MessageEvent struct {
	Channel   ChannelType
	ChannelID string // platform-specific destination id (Discord channel, Telegram chat, Slack channel)
	RawID     string // platform-specific message id, used for quoting
	Timestamp time.Time
}

// Query is one inbound message in flight through the pipeline.
type Query struct {
	ID int64

	Launcher Launcher
	SenderID string

	MessageChain MessageChain
	MessageEvent *MessageEvent
	Adapter      AdapterHandle

	Session      *Session
	Conversation *Conversation

	// PipelineConfig is an immutable snapshot frozen at dispatch time.
	PipelineConfig any

	// Accumulators filled during traversal.
	PromptMessages   []Message
	UserMessage      *Message
	RespMessages     []Message    // list of assistant replies
	RespMessageChain MessageChain // post-format
	UseFuncs         []string

	// RespWrapped counts how many leading entries of RespMessages the
	// Response Wrapper stage has already rendered into a sent chain, so a
	// stage re-entered once per streamed YieldStream item wraps only the
	// newest delta while a single command-dispatch pass wraps every
	// accumulated CommandReturn at once.
	RespWrapped int

	// SemaphoreRelease releases the session permit acquired for this
	// query's lifetime; set by the session-acquire stage and called once,
	// in a defer, by the app's query dispatch (runQuery) after the
	// controller's Run returns.
	SemaphoreRelease func()

	CreatedAt time.Time
}

// NewQuery builds a Query with a fresh id and timestamp.
func NewQuery(launcher Launcher, senderID string, evt *MessageEvent, chain MessageChain, adapter AdapterHandle) *Query {
	return &Query{
		ID:           NextQueryID(),
		Launcher:     launcher,
		SenderID:     senderID,
		MessageChain: chain,
		MessageEvent: evt,
		Adapter:      adapter,
		CreatedAt:    time.Now(),
	}
}

// AppendReply appends an assistant reply to RespMessages. Once a stage
// appends here, downstream stages may only transform or append -- never
// delete earlier entries; nothing in the gateway, PreventDefault included,
// removes an entry once appended.
func (q *Query) AppendReply(msg Message) {
	q.RespMessages = append(q.RespMessages, msg)
}
