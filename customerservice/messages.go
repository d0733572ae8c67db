package customerservice

import (
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

// AssistantSince returns the assistant messages appended after cursor
// and the new cursor position. Presentation layers use it to render only
// what is new since the previous result.
func AssistantSince(state workflow.State, cursor int) ([]model.Message, int) {
	msgs, _ := state[workflow.StateKeyMessages].([]model.Message)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(msgs) {
		cursor = len(msgs)
	}
	var fresh []model.Message
	for _, msg := range msgs[cursor:] {
		if msg.Role == model.RoleAssistant {
			fresh = append(fresh, msg)
		}
	}
	return fresh, len(msgs)
}
