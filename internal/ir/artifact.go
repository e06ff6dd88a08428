package ir

import (
	"fmt"
	"reflect"
	"time"

	"github.com/roach88/moments/internal/condition"
)

// ArtifactStatus is the lifecycle state of a generated artifact.
type ArtifactStatus string

const (
	// StatusPending: not yet attempted.
	StatusPending ArtifactStatus = "pending"
	// StatusGenerating: a background generation task is in flight.
	StatusGenerating ArtifactStatus = "generating"
	// StatusReady: content is present.
	StatusReady ArtifactStatus = "ready"
	// StatusError: the last attempt failed; Error holds the message.
	StatusError ArtifactStatus = "error"
)

// Valid reports whether s is one of the four lifecycle states.
func (s ArtifactStatus) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusReady, StatusError:
		return true
	}
	return false
}

// Artifact is one subject's instance of a generated document.
type Artifact struct {
	SubjectID  string         `json:"subject_id"`
	ArtifactID string         `json:"artifact_id"`
	Status     ArtifactStatus `json:"status"`
	Content    map[string]any `json:"content,omitempty"`
	Error      string         `json:"error,omitempty"`

	// MomentID is the moment whose firing (or retry) started the last attempt.
	MomentID string `json:"moment_id,omitempty"`
	// Attempt is the attempt number that produced the current state.
	Attempt int `json:"attempt"`

	UpdatedAt   time.Time `json:"updated_at"`
	CatalogHash string    `json:"catalog_hash,omitempty"`
}

// Exists reports whether the artifact has usable content.
// It is the explicit existence flag seen by ".exists" conditions.
func (a Artifact) Exists() bool {
	return a.Status == StatusReady
}

// View is the context representation of an artifact, exposed to conditions
// under "artifacts.<id>".
func (a Artifact) View() map[string]any {
	v := map[string]any{
		"exists": a.Exists(),
		"status": string(a.Status),
	}
	if a.Content != nil {
		v["content"] = a.Content
	}
	if a.Error != "" {
		v["error"] = a.Error
	}
	return v
}

// ContentError reports a ready artifact that fails structural validation.
type ContentError struct {
	ArtifactID string
	Field      string
	Message    string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("artifact %s: %s: %s", e.ArtifactID, e.Field, e.Message)
}

// ValidateContent checks generated content against the definition's
// structural rules. Returns all problems found.
func (d *ArtifactDefinition) ValidateContent(content map[string]any) []error {
	var errs []error
	for _, field := range d.Validation.NonEmpty {
		v, ok := condition.ResolvePath(content, field)
		if !ok || v == nil {
			errs = append(errs, &ContentError{ArtifactID: d.ID, Field: field, Message: "required field is missing"})
			continue
		}
		if emptyValue(v) {
			errs = append(errs, &ContentError{ArtifactID: d.ID, Field: field, Message: "required field has zero entries"})
		}
	}
	return errs
}

func emptyValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len() == 0
	}
	return false
}
