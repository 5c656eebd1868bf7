package app

import "github.com/jaakkos/cowork/internal/domain"

// TrimIntents drops the oldest intents beyond maxCount. Returns number trimmed.
func TrimIntents(state *domain.WorkspaceState, maxCount int) int {
	if state == nil || maxCount <= 0 || len(state.Intents) <= maxCount {
		return 0
	}
	excess := len(state.Intents) - maxCount
	state.Intents = append([]domain.Intent(nil), state.Intents[excess:]...)
	return excess
}
