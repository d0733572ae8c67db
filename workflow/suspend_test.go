package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuspendRaisesSuspendError(t *testing.T) {
	state := State{}
	value, err := Suspend(context.Background(), state, "approval", "approve?")
	require.Nil(t, value)
	require.Error(t, err)

	suspendErr, ok := AsSuspendError(err)
	require.True(t, ok)
	assert.Equal(t, "approve?", suspendErr.Payload)
	assert.True(t, IsSuspendError(err))
}

func TestSuspendConsumesResumeValue(t *testing.T) {
	state := State{stateKeyResumeValue: "yes"}

	value, err := Suspend(context.Background(), state, "approval", "approve?")
	require.NoError(t, err)
	assert.Equal(t, "yes", value)

	// The resume value is consumed; the used map keeps re-execution of
	// the same call site deterministic.
	_, exists := state[stateKeyResumeValue]
	assert.False(t, exists)

	again, err := Suspend(context.Background(), state, "approval", "approve?")
	require.NoError(t, err)
	assert.Equal(t, "yes", again)
}

func TestSuspendDifferentKeySuspendsAgain(t *testing.T) {
	state := State{stateKeyResumeValue: "yes"}

	_, err := Suspend(context.Background(), state, "first", "q1")
	require.NoError(t, err)

	_, err = Suspend(context.Background(), state, "second", "q2")
	require.Error(t, err)
	assert.True(t, IsSuspendError(err))
}

func TestResumeValueTyped(t *testing.T) {
	state := State{stateKeyResumeValue: "typed"}
	value, ok := ResumeValue[string](state)
	require.True(t, ok)
	assert.Equal(t, "typed", value)

	_, ok = ResumeValue[string](state)
	assert.False(t, ok)

	state = State{stateKeyResumeValue: 42}
	_, ok = ResumeValue[string](state)
	assert.False(t, ok)
}

func TestResumeCommandBuilder(t *testing.T) {
	cmd := NewResumeCommand().WithValue(true).WithToken("tok")
	assert.Equal(t, true, cmd.Value)
	assert.Equal(t, "tok", cmd.Token)
}
