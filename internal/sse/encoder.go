// Package sse implements the Protocol-A streaming grammar as a single
// shared state machine every provider adapter drives, instead of letting
// each adapter hand-roll its own event framing. Any adapter can drive it
// from whatever shape its own upstream streams in.
package sse

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// BlockKind identifies what a content block index is currently holding.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockThinking BlockKind = "thinking"
	BlockToolUse  BlockKind = "tool_use"
)

// BlockState tracks one content_block's streaming lifecycle.
type BlockState struct {
	Index       int
	Kind        BlockKind
	StartSent   bool
	StopSent    bool
	ToolCallID  string
	ToolName    string
	Arguments   string // accumulated JSON text sent so far, for delta diffing
}

// State is the full per-response streaming state. One State is created per
// upstream response and threaded through every chunk the adapter emits.
type State struct {
	MessageStartSent bool
	MessageID        string
	Model            string
	InputTokens      int
	blocks           map[int]*BlockState
	nextIndex        int
	// openIndex tracks which content kind (text/thinking) is "currently
	// open" when the adapter doesn't carry explicit indices of its own —
	// most upstreams only ever have one open text/thinking block at a time.
	openIndex map[BlockKind]int

	// toolIndex maps an upstream's own small-integer tool-call index (the
	// OpenAI chat-completions delta.tool_calls[].index convention) to the
	// block it was assigned here, since that index is only stable within
	// a single stream.
	toolIndex map[int]*BlockState
}

func NewState(model string) *State {
	return &State{
		Model:     model,
		blocks:    map[int]*BlockState{},
		openIndex: map[BlockKind]int{},
		toolIndex: map[int]*BlockState{},
	}
}

// ToolBlockByUpstreamIndex looks up a previously-registered tool block by
// the upstream's own delta index.
func (s *State) ToolBlockByUpstreamIndex(upstreamIndex int) (*BlockState, bool) {
	b, ok := s.toolIndex[upstreamIndex]
	return b, ok
}

// RegisterToolBlockIndex associates an upstream delta index with a block,
// so later deltas for the same tool call can be found again.
func (s *State) RegisterToolBlockIndex(upstreamIndex int, b *BlockState) {
	s.toolIndex[upstreamIndex] = b
}

// Event is one rendered SSE frame: "event: TYPE\ndata: JSON\n\n".
type Event []byte

func formatEvent(eventType string, data any) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload)), nil
}

// EnsureMessageStart lazily emits message_start on the first real delta:
// no message_start is sent until the upstream actually produces content.
func (s *State) EnsureMessageStart() (Event, error) {
	if s.MessageStartSent {
		return nil, nil
	}
	s.MessageStartSent = true
	s.MessageID = "msg_" + uuid.NewString()

	data := map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            s.MessageID,
			"type":          "message",
			"role":          "assistant",
			"model":         s.Model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage": map[string]any{
				"input_tokens":  s.InputTokens,
				"output_tokens": 0,
			},
		},
	}

	return formatEvent("message_start", data)
}

// OpenTextLike starts (or reuses) the single currently-open block of the
// given kind ("text" or "thinking") and returns any content_block_start
// event that needs emitting first.
func (s *State) OpenTextLike(kind BlockKind) (*BlockState, Event, error) {
	if idx, ok := s.openIndex[kind]; ok {
		if b, ok := s.blocks[idx]; ok && !b.StopSent {
			return b, nil, nil
		}
	}

	// Closing a thinking block before opening text is the one ordering
	// rule that isn't "just open a new index": a thinking block must be
	// stopped before any text block starts, per the auto-close rule.
	var closeThinking Event
	if kind == BlockText {
		if idx, ok := s.openIndex[BlockThinking]; ok {
			if b, ok := s.blocks[idx]; ok && !b.StopSent {
				ev, err := s.closeBlock(b)
				if err != nil {
					return nil, nil, err
				}
				closeThinking = ev
			}
		}
	}

	idx := s.nextIndex
	s.nextIndex++
	b := &BlockState{Index: idx, Kind: kind}
	s.blocks[idx] = b
	s.openIndex[kind] = idx

	startEv, err := s.startBlockEvent(b, map[string]any{"type": string(kind), string(kind): ""})
	if err != nil {
		return nil, nil, err
	}

	if closeThinking != nil {
		return b, append(append(Event{}, closeThinking...), startEv...), nil
	}

	return b, startEv, nil
}

func (s *State) startBlockEvent(b *BlockState, block map[string]any) (Event, error) {
	b.StartSent = true
	return formatEvent("content_block_start", map[string]any{
		"type":          "content_block_start",
		"index":         b.Index,
		"content_block": block,
	})
}

// TextDelta emits a content_block_delta carrying a text_delta or
// thinking_delta payload for the given block.
func (s *State) TextDelta(b *BlockState, text string) (Event, error) {
	field := "text_delta"
	key := "text"
	if b.Kind == BlockThinking {
		field = "thinking_delta"
		key = "thinking"
	}

	return formatEvent("content_block_delta", map[string]any{
		"type":  "content_block_delta",
		"index": b.Index,
		"delta": map[string]any{"type": field, key: text},
	})
}

// OpenToolUse starts a new tool_use content block. Each tool call always
// gets its own index; unlike text/thinking there is no reuse.
func (s *State) OpenToolUse(toolCallID, toolName string) (*BlockState, Event, error) {
	idx := s.nextIndex
	s.nextIndex++

	b := &BlockState{Index: idx, Kind: BlockToolUse, ToolCallID: toolCallID, ToolName: toolName}
	s.blocks[idx] = b

	ev, err := s.startBlockEvent(b, map[string]any{
		"type":  "tool_use",
		"id":    toolCallID,
		"name":  toolName,
		"input": map[string]any{},
	})
	return b, ev, err
}

// ToolArgumentsDelta computes and emits the incremental input_json_delta
// between what's already been sent for this block and the full argument
// string accumulated so far, via a prefix diff.
func (s *State) ToolArgumentsDelta(b *BlockState, fullArguments string) (Event, error) {
	delta := calculateArgumentsDelta(b.Arguments, fullArguments)
	b.Arguments = fullArguments

	if delta == "" {
		return nil, nil
	}

	return formatEvent("content_block_delta", map[string]any{
		"type":  "content_block_delta",
		"index": b.Index,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": delta},
	})
}

func calculateArgumentsDelta(previous, current string) string {
	if len(current) <= len(previous) {
		return ""
	}
	if previous != "" && current[:len(previous)] != previous {
		// upstream resent a non-prefix-compatible payload; treat the whole
		// thing as new rather than desyncing the stream.
		return current
	}
	return current[len(previous):]
}

func (s *State) closeBlock(b *BlockState) (Event, error) {
	if b.StopSent {
		return nil, nil
	}
	b.StopSent = true
	return formatEvent("content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": b.Index,
	})
}

// CloseBlock is the exported form adapters call once they know a specific
// block (e.g. one tool call) is finished.
func (s *State) CloseBlock(b *BlockState) (Event, error) {
	return s.closeBlock(b)
}

// Finish closes every still-open block in index order, then emits
// message_delta and message_stop. stopReason is Protocol-A vocabulary
// (end_turn, max_tokens, tool_use, stop_sequence).
func (s *State) Finish(stopReason string, outputTokens int) ([]Event, error) {
	var events []Event

	if !s.MessageStartSent {
		ev, err := s.EnsureMessageStart()
		if err != nil {
			return nil, err
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	for i := 0; i < s.nextIndex; i++ {
		b, ok := s.blocks[i]
		if !ok || b.StopSent {
			continue
		}
		ev, err := s.closeBlock(b)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	deltaEv, err := formatEvent("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": outputTokens},
	})
	if err != nil {
		return nil, err
	}
	events = append(events, deltaEv)

	stopEv, err := formatEvent("message_stop", map[string]any{"type": "message_stop"})
	if err != nil {
		return nil, err
	}
	events = append(events, stopEv)

	return events, nil
}

// EmitError terminates the stream gracefully after an upstream failure:
// it closes any still-open content block, opens a new text block
// carrying the error message, closes it, and emits message_delta +
// message_stop so the grammar is always left balanced. If message_start was
// never sent, it is emitted first so the synthetic block has somewhere to
// live.
func (s *State) EmitError(message string) ([]Event, error) {
	var events []Event

	startEv, err := s.EnsureMessageStart()
	if err != nil {
		return nil, err
	}
	if startEv != nil {
		events = append(events, startEv)
	}

	for i := 0; i < s.nextIndex; i++ {
		b, ok := s.blocks[i]
		if !ok || b.StopSent {
			continue
		}
		ev, err := s.closeBlock(b)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	idx := s.nextIndex
	s.nextIndex++
	b := &BlockState{Index: idx, Kind: BlockText}
	s.blocks[idx] = b

	startBlockEv, err := s.startBlockEvent(b, map[string]any{"type": "text", "text": ""})
	if err != nil {
		return nil, err
	}
	events = append(events, startBlockEv)

	deltaEv, err := s.TextDelta(b, message)
	if err != nil {
		return nil, err
	}
	if deltaEv != nil {
		events = append(events, deltaEv)
	}

	stopEv, err := s.closeBlock(b)
	if err != nil {
		return nil, err
	}
	if stopEv != nil {
		events = append(events, stopEv)
	}

	finishEvents, err := s.Finish("end_turn", 0)
	if err != nil {
		return nil, err
	}
	events = append(events, finishEvents...)

	return events, nil
}

// ConvertToolCallID translates tool-call identifiers between Protocol-A's
// "toolu_*" convention and the OpenAI-family "call_*" convention.
func ConvertToolCallID(id string, toProtocolA bool) string {
	const (
		protocolAPrefix = "toolu_"
		openAIPrefix    = "call_"
	)

	if toProtocolA {
		if len(id) >= len(openAIPrefix) && id[:len(openAIPrefix)] == openAIPrefix {
			return protocolAPrefix + id[len(openAIPrefix):]
		}
		if len(id) >= len(protocolAPrefix) && id[:len(protocolAPrefix)] == protocolAPrefix {
			return id
		}
		return protocolAPrefix + id
	}

	if len(id) >= len(protocolAPrefix) && id[:len(protocolAPrefix)] == protocolAPrefix {
		return openAIPrefix + id[len(protocolAPrefix):]
	}
	if len(id) >= len(openAIPrefix) && id[:len(openAIPrefix)] == openAIPrefix {
		return id
	}
	return openAIPrefix + id
}
