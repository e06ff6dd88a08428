package ir

// SubjectSnapshot is a subject's durable engine state: enough to resume
// detection, retries and card visibility after a restart.
type SubjectSnapshot struct {
	SubjectID string `json:"subject_id"`
	// Turn is the last processed turn number.
	Turn int64 `json:"turn"`

	Artifacts []Artifact     `json:"artifacts"`
	Attempts  map[string]int `json:"attempts"`
	// Cards holds event cards in creation order, dismissed ones included so
	// show_once and dismissal stay terminal across restarts.
	Cards []ActiveCard `json:"cards"`
	// Transitions is the previous turn's prerequisite result per moment.
	Transitions map[string]bool `json:"transitions"`
}
