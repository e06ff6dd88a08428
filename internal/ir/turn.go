package ir

// FiredMoment is a moment that transitioned from unmet to met this turn.
type FiredMoment struct {
	ID        string         `json:"id"`
	Message   string         `json:"message,omitempty"`
	UIContext map[string]any `json:"ui_context,omitempty"`
	Card      *ActiveCard    `json:"card,omitempty"`
}

// TurnResult summarizes what a turn made possible.
type TurnResult struct {
	SubjectID           string        `json:"subject_id"`
	Turn                int64         `json:"turn"`
	ArtifactsGenerating []string      `json:"artifacts_generating"`
	MomentsFired        []FiredMoment `json:"moments_fired"`
	CardsVisible        []ActiveCard  `json:"cards_visible"`
	CardsCreated        []string      `json:"cards_created"`
	CardsDismissed      []string      `json:"cards_dismissed"`
}

// Feasibility answers whether an action can be offered right now.
type Feasibility struct {
	ActionID    string   `json:"action_id"`
	Feasible    bool     `json:"feasible"`
	Missing     []string `json:"missing"`
	Explanation string   `json:"explanation"`
}
