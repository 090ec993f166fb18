package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sgcx/compmap/competency"
)

// Workflow errors. Store implementations wrap these sentinels so the service
// and its callers can classify failures with errors.Is.
var (
	// ErrNotFound is returned when a referenced subprocess, map or unit is
	// absent.
	ErrNotFound = errors.New("not found")
	// ErrStateConflict is returned when an action is invoked from an illegal
	// precondition situation, or when a concurrent writer already advanced
	// the subprocess.
	ErrStateConflict = errors.New("state conflict")
	// ErrAccessDenied is returned when the actor lacks the role or unit
	// relationship the action requires.
	ErrAccessDenied = errors.New("access denied")
	// ErrNoMap is returned when an action requires the subprocess to have an
	// associated map and it has none.
	ErrNoMap = errors.New("subprocess has no map")
)

// ValidationError reports a business-rule violation together with the
// offending entities, e.g. activities without knowledge when disponibilizing
// a cadastro. It never accompanies a state change.
type ValidationError struct {
	Message      string
	Activities   []competency.Activity
	Competencies []competency.Competency
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Activities) > 0 {
		b.WriteString(": activities [")
		for i, act := range e.Activities {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(act.Description)
		}
		b.WriteString("]")
	}
	if len(e.Competencies) > 0 {
		b.WriteString(": competencies [")
		for i, comp := range e.Competencies {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(comp.Description)
		}
		b.WriteString("]")
	}
	return b.String()
}

func stateConflict(s *Subprocess, action string) error {
	return fmt.Errorf("subprocess %s in situation %s cannot %s: %w",
		s.ID, s.Situation, action, ErrStateConflict)
}
