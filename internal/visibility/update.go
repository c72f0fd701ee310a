// Package visibility consumes the scoring process's visibility decisions for
// AI-originated tasks.
//
// A separate backend process scores AI-generated tasks and publishes an
// allowlist of ids that should be shown. This package defines the typed
// message schema and a websocket subscriber that turns the backend's
// broadcast into an explicit channel of Updates for the engine.
package visibility

// Update is one visibility decision snapshot from the scoring process.
type Update struct {
	// Type is "scoring_started" or "scoring_updated".
	Type string `json:"type"`

	// VisibleAITaskIDs is the allowlist of AI-originated task ids approved
	// for display. Manual tasks are never subject to the allowlist.
	VisibleAITaskIDs []string `json:"visible_ai_task_ids"`

	// HasCompletedScoring reports whether at least one full scoring pass
	// has finished. Until then no AI task is hidden.
	HasCompletedScoring bool `json:"has_completed_scoring"`

	// IsScoringInProgress reports whether a pass is currently running.
	IsScoringInProgress bool `json:"is_scoring_in_progress"`
}

// IDSet returns the allowlist as a set.
func (u Update) IDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(u.VisibleAITaskIDs))
	for _, id := range u.VisibleAITaskIDs {
		set[id] = struct{}{}
	}
	return set
}
