// Package competency provides the competency-map data model and the
// map-revision impact detector. A unit's map is a set of activities, each
// with knowledge items, plus competencies grouping those activities. When a
// unit revises its map the revision works on a copied map with fresh
// identifiers, so cross-version matching is done by normalized description,
// never by ID.
package competency

import (
	"context"
	"strings"
	"time"
)

// Map is a unit's set of activities and competencies at a point in time.
// At most one map is live (authoritative) per unit at a time.
type Map struct {
	ID          string     `json:"id"`
	UnitID      string     `json:"unit_id"`
	Live        bool       `json:"live"`
	Suggestions string     `json:"suggestions,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	HomologedAt *time.Time `json:"homologed_at,omitempty"`
}

// Activity is a unit of work description belonging to a map. Its description
// is unique within the owning map (case-insensitive, trimmed).
type Activity struct {
	ID          string      `json:"id"`
	MapID       string      `json:"map_id"`
	Description string      `json:"description"`
	Knowledge   []Knowledge `json:"knowledge,omitempty"`
}

// Knowledge is a skill or learning item belonging to exactly one activity.
// Its description is unique within the owning activity.
type Knowledge struct {
	ID          string `json:"id"`
	ActivityID  string `json:"activity_id"`
	Description string `json:"description"`
}

// Competency is a named grouping of one or more activities of the same map.
type Competency struct {
	ID          string   `json:"id"`
	MapID       string   `json:"map_id"`
	Description string   `json:"description"`
	ActivityIDs []string `json:"activity_ids,omitempty"`
}

// Snapshot is the read-only content of one map version, as loaded by a
// SnapshotAccessor. Nil slices are valid and mean "empty".
type Snapshot struct {
	MapID        string
	Activities   []Activity
	Competencies []Competency
}

// SnapshotAccessor loads map content for impact detection.
type SnapshotAccessor interface {
	// LoadActivitiesWithKnowledge returns every activity of the map with its
	// knowledge items populated.
	LoadActivitiesWithKnowledge(ctx context.Context, mapID string) ([]Activity, error)
	// LoadCompetencies returns every competency of the map with its linked
	// activity IDs populated.
	LoadCompetencies(ctx context.Context, mapID string) ([]Competency, error)
}

// LoadSnapshot assembles a Snapshot through the accessor.
func LoadSnapshot(ctx context.Context, acc SnapshotAccessor, mapID string) (Snapshot, error) {
	activities, err := acc.LoadActivitiesWithKnowledge(ctx, mapID)
	if err != nil {
		return Snapshot{}, err
	}
	competencies, err := acc.LoadCompetencies(ctx, mapID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{MapID: mapID, Activities: activities, Competencies: competencies}, nil
}

// NormalizeDescription is the matching key for activities across map
// versions: surrounding whitespace stripped, case folded.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
