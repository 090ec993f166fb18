// Package workflow implements the subprocess state machine that governs a
// unit's participation in a competency-mapping or map-revision process. Each
// public service operation validates the one precondition situation of its
// action, applies the effect, persists the subprocess together with its audit
// records in one transaction, and then signals collaborators best-effort.
package workflow

import "time"

// ProcessKind distinguishes a first mapping from a revision of an existing
// map.
type ProcessKind string

const (
	// ProcessMapping is a unit's first competency mapping.
	ProcessMapping ProcessKind = "mapping"
	// ProcessRevision revises a unit's live map against a cloned copy.
	ProcessRevision ProcessKind = "revision"
)

// Subprocess is one unit's participation instance in a mapping or revision
// process. It is created when the process starts for the unit and mutated
// only through Service operations.
type Subprocess struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// ProcessID references the owning process.
	ProcessID string `json:"process_id"`

	// ProcessKind is the kind of the owning process.
	ProcessKind ProcessKind `json:"process_kind"`

	// UnitID is the unit this subprocess belongs to.
	UnitID string `json:"unit_id"`

	// MapID references the map the subprocess works against. For revisions
	// this is the cloned working copy, not the live map.
	MapID string `json:"map_id,omitempty"`

	// Situation is the current workflow state.
	Situation Situation `json:"situation"`

	// Stage1DoneAt is when the cadastro stage ended (set on disponibilize,
	// cleared on devolution or reopen).
	Stage1DoneAt *time.Time `json:"stage1_done_at,omitempty"`

	// Stage2DoneAt is when the validation stage ended.
	Stage2DoneAt *time.Time `json:"stage2_done_at,omitempty"`

	// Suggestions is the unit's suggestion text presented instead of a
	// validation, kept on the subprocess for display.
	Suggestions string `json:"suggestions,omitempty"`

	// Version is the optimistic-concurrency counter. Every persisted
	// transition increments it; a stale writer fails with a state conflict.
	Version int64 `json:"version"`

	// CreatedAt is when the subprocess was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the subprocess was last transitioned.
	UpdatedAt time.Time `json:"updated_at"`
}

// Movement is an append-only audit record of a workflow transition between
// organizational units.
type Movement struct {
	ID                string    `json:"id"`
	SubprocessID      string    `json:"subprocess_id"`
	Description       string    `json:"description"`
	OriginUnitID      string    `json:"origin_unit_id"`
	DestinationUnitID string    `json:"destination_unit_id"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// AnalysisKind is the decision recorded by an analysis.
type AnalysisKind string

const (
	// AnalysisAccept records an acceptance by the superior unit.
	AnalysisAccept AnalysisKind = "accept"
	// AnalysisDevolve records a devolution back to the subordinate unit.
	AnalysisDevolve AnalysisKind = "devolve"
)

// AnalysisStage is the workflow stage an analysis belongs to. Restarting a
// stage bulk-clears that stage's prior analyses.
type AnalysisStage string

const (
	// StageCadastro covers cadastro and revision-cadastro decisions.
	StageCadastro AnalysisStage = "cadastro"
	// StageValidation covers map-validation decisions.
	StageValidation AnalysisStage = "validation"
)

// Analysis is an immutable audit record of an accept or devolve decision.
type Analysis struct {
	ID           string        `json:"id"`
	SubprocessID string        `json:"subprocess_id"`
	Kind         AnalysisKind  `json:"kind"`
	Stage        AnalysisStage `json:"stage"`
	Observations string        `json:"observations,omitempty"`
	ActorTitle   string        `json:"actor_title"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// Actor identifies who is performing a workflow action. UnitID is the unit
// the actor acts on behalf of; access decisions are delegated to the
// AccessChecker.
type Actor struct {
	Title  string `json:"title"`
	UnitID string `json:"unit_id,omitempty"`
}
