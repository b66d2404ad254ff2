package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_TextThenFinish_GrammarBalanced(t *testing.T) {
	s := NewState("gpt-5")

	startEv, err := s.EnsureMessageStart()
	require.NoError(t, err)
	require.NotNil(t, startEv)

	block, blockStartEv, err := s.OpenTextLike(BlockText)
	require.NoError(t, err)
	require.NotNil(t, blockStartEv)

	deltaEv, err := s.TextDelta(block, "hi")
	require.NoError(t, err)
	require.NotNil(t, deltaEv)

	finishEvents, err := s.Finish("end_turn", 2)
	require.NoError(t, err)
	require.Len(t, finishEvents, 3, "content_block_stop, message_delta, message_stop")

	assert.Contains(t, string(finishEvents[0]), "content_block_stop")
	assert.Contains(t, string(finishEvents[1]), "message_delta")
	assert.Contains(t, string(finishEvents[2]), "message_stop")
}

func TestState_EmitError_AfterMessageStart_ClosesOpenBlockAndTerminates(t *testing.T) {
	s := NewState("gpt-5")

	_, err := s.EnsureMessageStart()
	require.NoError(t, err)

	block, _, err := s.OpenTextLike(BlockText)
	require.NoError(t, err)
	_, err = s.TextDelta(block, "partial")
	require.NoError(t, err)

	events, err := s.EmitError("[glm Error] upstream closed the connection")
	require.NoError(t, err)
	require.NotEmpty(t, events)

	joined := make([]string, len(events))
	for i, ev := range events {
		joined[i] = string(ev)
	}
	full := strings.Join(joined, "")

	assert.Contains(t, full, "content_block_stop") // closes the original text block
	assert.Contains(t, full, "[glm Error] upstream closed the connection")
	assert.Contains(t, full, "message_delta")
	assert.Contains(t, full, "message_stop")

	// no block left open
	for _, b := range s.blocks {
		assert.True(t, b.StopSent)
	}
}

func TestState_EmitError_BeforeMessageStart_StillTerminatesGrammar(t *testing.T) {
	s := NewState("gpt-5")

	events, err := s.EmitError("[codex Error] connection refused")
	require.NoError(t, err)

	full := ""
	for _, ev := range events {
		full += string(ev)
	}

	assert.Contains(t, full, "message_start")
	assert.Contains(t, full, "[codex Error] connection refused")
	assert.Contains(t, full, "message_stop")
}
