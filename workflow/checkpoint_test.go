package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/model"
)

func TestCheckpointClone(t *testing.T) {
	original := &Checkpoint{
		ThreadID: "t",
		Seq:      3,
		StepID:   "step",
		Status:   StatusSuspended,
		State:    State{"k": "v"},
		Suspend:  &SuspendRequest{Token: "tok", StepID: "step"},
	}
	clone := original.Clone()
	clone.State["k"] = "changed"
	clone.Suspend.Token = "other"

	assert.Equal(t, "v", original.State["k"])
	assert.Equal(t, "tok", original.Suspend.Token)
}

func TestCheckpointCodecRestoresMessageTypes(t *testing.T) {
	checkpoint := &Checkpoint{
		ThreadID: "t",
		Seq:      1,
		StepID:   "chat",
		Status:   StatusRunning,
		State: State{
			StateKeyMessages: []model.Message{
				model.NewUserMessage("hi"),
				model.NewAssistantMessage("hello"),
			},
			StateKeyUserInput: "hi",
		},
		CreatedAt: time.Now().UTC(),
	}

	data, err := EncodeCheckpoint(checkpoint)
	require.NoError(t, err)

	decoded, err := DecodeCheckpoint(data)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.ThreadID, decoded.ThreadID)
	assert.Equal(t, checkpoint.Seq, decoded.Seq)
	assert.Equal(t, checkpoint.Status, decoded.Status)

	// JSON erases the slice's element type; the decoder restores it so
	// MessageReducer keeps appending after a reload.
	msgs, ok := decoded.State[StateKeyMessages].([]model.Message)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)

	merged := MessageReducer(msgs, []model.Message{model.NewUserMessage("more")})
	assert.Len(t, merged.([]model.Message), 3)
}
