package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifier_Uniqueness(t *testing.T) {
	a, err := GenerateVerifier()
	require.NoError(t, err)
	b, err := GenerateVerifier()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestChallengeS256_Deterministic(t *testing.T) {
	verifier := "fixed-test-verifier-value-0123456789"
	assert.Equal(t, ChallengeS256(verifier), ChallengeS256(verifier))
	assert.NotEqual(t, verifier, ChallengeS256(verifier))
}

func TestPendingTable_StartComplete(t *testing.T) {
	table := NewPendingTable()

	flow, err := table.Start("google", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, flow.Verifier)
	assert.NotEmpty(t, flow.State)

	completed, err := table.Complete(flow.State)
	require.NoError(t, err)
	assert.Equal(t, flow.Verifier, completed.Verifier)

	_, err = table.Complete(flow.State)
	assert.Error(t, err, "a state token must only be redeemable once")
}

func TestPendingTable_UnknownState(t *testing.T) {
	table := NewPendingTable()
	_, err := table.Complete("never-issued")
	assert.Error(t, err)
}
