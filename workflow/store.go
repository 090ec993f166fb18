package workflow

import (
	"context"

	"github.com/sgcx/compmap/competency"
)

// TransitionRecord carries everything one workflow transition persists. Store
// implementations must apply it atomically: the subprocess update, the
// movement append, the optional analysis append and clear, and the optional
// map effects all commit together or not at all.
type TransitionRecord struct {
	// Subprocess is the mutated subprocess. Version holds the value loaded
	// before mutation; the store compares it on write and fails with
	// ErrStateConflict when a concurrent writer advanced it. On success the
	// store advances Version in place.
	Subprocess *Subprocess

	// Movement is the single movement describing the transition.
	Movement Movement

	// Analysis, when non-nil, is appended alongside the movement.
	Analysis *Analysis

	// ClearAnalysesStage, when non-empty, deletes the subprocess's prior
	// analyses of that stage before the optional append. This is the one
	// sanctioned mutation of the otherwise append-only analysis log, used
	// when a stage restarts.
	ClearAnalysesStage AnalysisStage

	// MapSuggestions, when non-nil, replaces the suggestion text stored on
	// the subprocess's map. An empty string clears it.
	MapSuggestions *string

	// PromoteLiveMap marks the subprocess's map as the unit's live map,
	// demoting any previous one. Set by map-homologating transitions.
	PromoteLiveMap bool
}

// Store persists subprocesses and their audit trail.
type Store interface {
	// GetSubprocess returns the subprocess, or an error wrapping ErrNotFound.
	GetSubprocess(ctx context.Context, id string) (*Subprocess, error)

	// ActiveSubprocessForUnit returns the unit's subprocess whose process is
	// still open, or an error wrapping ErrNotFound.
	ActiveSubprocessForUnit(ctx context.Context, unitID string) (*Subprocess, error)

	// ApplyTransition atomically persists one transition.
	ApplyTransition(ctx context.Context, rec TransitionRecord) error

	// ListMovements returns the subprocess's movements, newest first.
	ListMovements(ctx context.Context, subprocessID string) ([]Movement, error)

	// ListAnalyses returns the subprocess's analyses, newest first.
	ListAnalyses(ctx context.Context, subprocessID string) ([]Analysis, error)
}

// MapAccessor reads map content for impact detection and completeness checks.
type MapAccessor interface {
	competency.SnapshotAccessor

	// LiveMapID returns the ID of the unit's live map, or an empty string
	// when the unit has none.
	LiveMapID(ctx context.Context, unitID string) (string, error)

	// ActivitiesWithoutKnowledge returns the map's activities that carry no
	// knowledge item.
	ActivitiesWithoutKnowledge(ctx context.Context, mapID string) ([]competency.Activity, error)

	// UnlinkedMapEntities returns the map's activities linked to no
	// competency and competencies linked to no activity.
	UnlinkedMapEntities(ctx context.Context, mapID string) ([]competency.Activity, []competency.Competency, error)
}

// AccessChecker is the yes/no authorization oracle consulted before every
// action. Implementations return nil to allow, or an error wrapping
// ErrAccessDenied.
type AccessChecker interface {
	Allowed(ctx context.Context, actor Actor, action string, s *Subprocess) error
}

// AllowAll is an AccessChecker that permits every action.
type AllowAll struct{}

// Allowed implements AccessChecker.
func (AllowAll) Allowed(context.Context, Actor, string, *Subprocess) error { return nil }
