package workflow

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-flow-go/model"
)

func TestStateClone(t *testing.T) {
	original := State{"a": 1, "b": "two"}
	clone := original.Clone()
	clone["a"] = 42
	assert.Equal(t, 1, original["a"])
	assert.Equal(t, "two", clone["b"])
}

func TestSchemaApplyUpdate(t *testing.T) {
	schema := MessagesStateSchema()
	state := schema.Initialize()

	state = schema.ApplyUpdate(state, State{
		StateKeyMessages:  []model.Message{model.NewUserMessage("hi")},
		StateKeyUserInput: "hi",
	})
	state = schema.ApplyUpdate(state, State{
		StateKeyMessages:  []model.Message{model.NewAssistantMessage("hello")},
		StateKeyUserInput: "",
		StateKeyMetadata:  map[string]any{"channel": "chat"},
	})

	msgs, ok := state[StateKeyMessages].([]model.Message)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "", state[StateKeyUserInput])
	assert.Equal(t, map[string]any{"channel": "chat"}, state[StateKeyMetadata])
}

func TestSchemaApplyUpdateUnknownKeyOverwrites(t *testing.T) {
	schema := NewStateSchema()
	state := schema.ApplyUpdate(State{"x": 1}, State{"x": 2})
	assert.Equal(t, 2, state["x"])
}

func TestSchemaValidate(t *testing.T) {
	schema := NewStateSchema()
	schema.AddField("name", StateField{
		Type:     reflect.TypeOf(""),
		Required: true,
	})

	require.Error(t, schema.Validate(State{}))
	require.Error(t, schema.Validate(State{"name": 7}))
	require.NoError(t, schema.Validate(State{"name": "ok"}))
}

func TestReducers(t *testing.T) {
	tests := []struct {
		name     string
		reducer  StateReducer
		existing any
		update   any
		want     any
	}{
		{"default overwrites", DefaultReducer, 1, 2, 2},
		{"append any", AppendReducer, []any{1}, []any{2}, []any{1, 2}},
		{"append nil existing", AppendReducer, nil, []any{1}, []any{1}},
		{"string slice", StringSliceReducer, []string{"a"}, []string{"b"}, []string{"a", "b"}},
		{"merge maps", MergeReducer,
			map[string]any{"a": 1}, map[string]any{"b": 2},
			map[string]any{"a": 1, "b": 2}},
		{"merge overwrites key", MergeReducer,
			map[string]any{"a": 1}, map[string]any{"a": 9},
			map[string]any{"a": 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reducer(tt.existing, tt.update))
		})
	}
}

func TestMessageReducer(t *testing.T) {
	existing := []model.Message{model.NewUserMessage("q")}
	update := []model.Message{model.NewAssistantMessage("a")}
	merged, ok := MessageReducer(existing, update).([]model.Message)
	require.True(t, ok)
	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[1].Content)
}
