package app

import (
	"fmt"
	"strings"

	"github.com/jaakkos/cowork/internal/domain"
)

// PostIntent appends an intent authored by agentID. A working intent also
// marks the agent working on target (or the description when target is empty).
func (s *WorkspaceService) PostIntent(agentID string, action domain.IntentAction, description, target string) (domain.Intent, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.Intent{}, fmt.Errorf("description is required")
	}
	var out domain.Intent
	err := s.Run("intent_post", func(state *domain.WorkspaceState) error {
		agent, err := s.requireAgent(state, agentID)
		if err != nil {
			return err
		}
		switch action {
		case domain.IntentWorking:
			agent.Status = domain.AgentWorking
			agent.CurrentTask = target
			if target == "" {
				agent.CurrentTask = Truncate(description, 80)
			}
		case domain.IntentBlocked:
			agent.Status = domain.AgentWaiting
		}
		out = s.appendIntent(state, domain.Intent{
			AgentID:     agentID,
			Action:      action,
			Description: description,
			Target:      target,
		})
		return nil
	})
	return out, err
}

// ReadIntents returns up to limit of the most recent intents, oldest first.
// limit <= 0 returns the whole log.
func (s *WorkspaceService) ReadIntents(limit int) []domain.Intent {
	var out []domain.Intent
	_ = s.Query(func(state *domain.WorkspaceState) error {
		src := state.Intents
		if limit > 0 && len(src) > limit {
			src = src[len(src)-limit:]
		}
		out = append([]domain.Intent{}, src...)
		return nil
	})
	return out
}

// appendIntent stamps in with the next id and time, appends it and trims the
// log to the configured cap. Must be called inside a mutation.
func (s *WorkspaceService) appendIntent(state *domain.WorkspaceState, in domain.Intent) domain.Intent {
	in.ID = state.NextIntentID
	state.NextIntentID++
	in.Timestamp = s.now()
	state.Intents = append(state.Intents, in)
	TrimIntents(state, s.policy.IntentMaxEntries())
	s.pending = append(s.pending, in)
	return in
}
