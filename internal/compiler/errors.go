package compiler

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Configuration error codes (E200-E299).
const (
	ErrParse              = "E200" // document could not be parsed
	ErrMissingID          = "E201" // definition without id
	ErrDuplicateID        = "E202" // id declared twice
	ErrInvalidExpression  = "E203" // condition expression failed to compile
	ErrUnknownArtifact    = "E204" // reference to an undeclared artifact
	ErrDependencyCycle    = "E205" // artifacts require each other
	ErrInvalidCard        = "E206" // bad card template or state card
	ErrUnsupportedVersion = "E207" // unknown document version
	ErrInvalidPlaceholder = "E208" // dynamic field without a context path
)

// ConfigError is a malformed catalog entry found at load time.
type ConfigError struct {
	Code    string    `json:"code"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
	Pos     token.Pos `json:"-"` // CUE position if available
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: [%s] %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ConfigErrors is every problem found in one document.
type ConfigErrors []*ConfigError

func (es ConfigErrors) Error() string {
	switch len(es) {
	case 0:
		return "no configuration errors"
	case 1:
		return es[0].Error()
	}
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d configuration errors:\n  %s", len(es), strings.Join(parts, "\n  "))
}

// IsConfigError reports whether err carries catalog configuration errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return true
	}
	var ces ConfigErrors
	return errors.As(err, &ces)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Code: ErrParse, Field: "cue", Message: err.Error()}
	}

	first := errs[0]
	ce := &ConfigError{Code: ErrParse, Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
