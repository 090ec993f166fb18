package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sgcx/compmap/competency"
	"github.com/sgcx/compmap/workflow"
)

// SaveMap inserts a map with its activities, knowledge and competencies in
// one transaction. Descriptions must be unique within their owner: activity
// descriptions within the map (case-insensitive, trimmed), knowledge
// descriptions within their activity.
func (s *Store) SaveMap(ctx context.Context, m *competency.Map, activities []competency.Activity, competencies []competency.Competency) (err error) {
	if err := validateMapContent(activities); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO maps(id, unit_id, live, suggestions, created_at, updated_at, homologed_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UnitID, boolInt(m.Live), m.Suggestions,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		formatNullableTime(m.HomologedAt)); err != nil {
		return fmt.Errorf("insert map %s: %w", m.ID, err)
	}

	for _, act := range activities {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO activities(id, map_id, description) VALUES(?, ?, ?)`,
			act.ID, m.ID, act.Description); err != nil {
			return fmt.Errorf("insert activity %s: %w", act.ID, err)
		}
		for _, k := range act.Knowledge {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO knowledge(id, activity_id, description) VALUES(?, ?, ?)`,
				k.ID, act.ID, k.Description); err != nil {
				return fmt.Errorf("insert knowledge %s: %w", k.ID, err)
			}
		}
	}

	for _, comp := range competencies {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO competencies(id, map_id, description) VALUES(?, ?, ?)`,
			comp.ID, m.ID, comp.Description); err != nil {
			return fmt.Errorf("insert competency %s: %w", comp.ID, err)
		}
		for _, actID := range comp.ActivityIDs {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO competency_activities(competency_id, activity_id) VALUES(?, ?)`,
				comp.ID, actID); err != nil {
				return fmt.Errorf("link competency %s to activity %s: %w", comp.ID, actID, err)
			}
		}
	}

	return tx.Commit()
}

// GetMap returns the map row, or an error wrapping ErrNotFound.
func (s *Store) GetMap(ctx context.Context, mapID string) (*competency.Map, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, unit_id, live, suggestions, created_at, updated_at, homologed_at
		FROM maps WHERE id = ?`, mapID)

	var m competency.Map
	var live int
	var createdAt, updatedAt string
	var homologed sql.NullString
	err := row.Scan(&m.ID, &m.UnitID, &live, &m.Suggestions, &createdAt, &updatedAt, &homologed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("map %s: %w", mapID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	m.Live = live != 0
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if m.HomologedAt, err = parseNullableTime(homologed); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadActivitiesWithKnowledge implements competency.SnapshotAccessor.
func (s *Store) LoadActivitiesWithKnowledge(ctx context.Context, mapID string) ([]competency.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, map_id, description FROM activities
		WHERE map_id = ? ORDER BY id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("load activities of map %s: %w", mapID, err)
	}
	defer rows.Close()

	var activities []competency.Activity
	index := make(map[string]int)
	for rows.Next() {
		var act competency.Activity
		if err := rows.Scan(&act.ID, &act.MapID, &act.Description); err != nil {
			return nil, err
		}
		index[act.ID] = len(activities)
		activities = append(activities, act)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	krows, err := s.db.QueryContext(ctx, `
		SELECT k.id, k.activity_id, k.description
		FROM knowledge k JOIN activities a ON a.id = k.activity_id
		WHERE a.map_id = ? ORDER BY k.id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("load knowledge of map %s: %w", mapID, err)
	}
	defer krows.Close()

	for krows.Next() {
		var k competency.Knowledge
		if err := krows.Scan(&k.ID, &k.ActivityID, &k.Description); err != nil {
			return nil, err
		}
		if i, ok := index[k.ActivityID]; ok {
			activities[i].Knowledge = append(activities[i].Knowledge, k)
		}
	}
	return activities, krows.Err()
}

// LoadCompetencies implements competency.SnapshotAccessor.
func (s *Store) LoadCompetencies(ctx context.Context, mapID string) ([]competency.Competency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, map_id, description FROM competencies
		WHERE map_id = ? ORDER BY id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("load competencies of map %s: %w", mapID, err)
	}
	defer rows.Close()

	var competencies []competency.Competency
	index := make(map[string]int)
	for rows.Next() {
		var comp competency.Competency
		if err := rows.Scan(&comp.ID, &comp.MapID, &comp.Description); err != nil {
			return nil, err
		}
		index[comp.ID] = len(competencies)
		competencies = append(competencies, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lrows, err := s.db.QueryContext(ctx, `
		SELECT ca.competency_id, ca.activity_id
		FROM competency_activities ca JOIN competencies c ON c.id = ca.competency_id
		WHERE c.map_id = ? ORDER BY ca.activity_id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("load competency links of map %s: %w", mapID, err)
	}
	defer lrows.Close()

	for lrows.Next() {
		var compID, actID string
		if err := lrows.Scan(&compID, &actID); err != nil {
			return nil, err
		}
		if i, ok := index[compID]; ok {
			competencies[i].ActivityIDs = append(competencies[i].ActivityIDs, actID)
		}
	}
	return competencies, lrows.Err()
}

// LiveMapID implements workflow.MapAccessor.
func (s *Store) LiveMapID(ctx context.Context, unitID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM maps WHERE unit_id = ? AND live = 1`, unitID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("live map of unit %s: %w", unitID, err)
	}
	return id, nil
}

// ActivitiesWithoutKnowledge implements workflow.MapAccessor.
func (s *Store) ActivitiesWithoutKnowledge(ctx context.Context, mapID string) ([]competency.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.map_id, a.description FROM activities a
		WHERE a.map_id = ?
		  AND NOT EXISTS (SELECT 1 FROM knowledge k WHERE k.activity_id = a.id)
		ORDER BY a.id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("incomplete activities of map %s: %w", mapID, err)
	}
	defer rows.Close()

	var activities []competency.Activity
	for rows.Next() {
		var act competency.Activity
		if err := rows.Scan(&act.ID, &act.MapID, &act.Description); err != nil {
			return nil, err
		}
		activities = append(activities, act)
	}
	return activities, rows.Err()
}

// UnlinkedMapEntities implements workflow.MapAccessor.
func (s *Store) UnlinkedMapEntities(ctx context.Context, mapID string) ([]competency.Activity, []competency.Competency, error) {
	arows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.map_id, a.description FROM activities a
		WHERE a.map_id = ?
		  AND NOT EXISTS (SELECT 1 FROM competency_activities ca WHERE ca.activity_id = a.id)
		ORDER BY a.id`, mapID)
	if err != nil {
		return nil, nil, fmt.Errorf("unlinked activities of map %s: %w", mapID, err)
	}
	defer arows.Close()

	var activities []competency.Activity
	for arows.Next() {
		var act competency.Activity
		if err := arows.Scan(&act.ID, &act.MapID, &act.Description); err != nil {
			return nil, nil, err
		}
		activities = append(activities, act)
	}
	if err := arows.Err(); err != nil {
		return nil, nil, err
	}

	crows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.map_id, c.description FROM competencies c
		WHERE c.map_id = ?
		  AND NOT EXISTS (SELECT 1 FROM competency_activities ca WHERE ca.competency_id = c.id)
		ORDER BY c.id`, mapID)
	if err != nil {
		return nil, nil, fmt.Errorf("unlinked competencies of map %s: %w", mapID, err)
	}
	defer crows.Close()

	var competencies []competency.Competency
	for crows.Next() {
		var comp competency.Competency
		if err := crows.Scan(&comp.ID, &comp.MapID, &comp.Description); err != nil {
			return nil, nil, err
		}
		competencies = append(competencies, comp)
	}
	return activities, competencies, crows.Err()
}

// CopyMap clones a map under fresh identifiers, preserving content and
// competency links. Revisions work against the copy so the live map stays
// untouched until homologation.
func (s *Store) CopyMap(ctx context.Context, sourceMapID string, now time.Time) (string, error) {
	source, err := s.GetMap(ctx, sourceMapID)
	if err != nil {
		return "", err
	}
	activities, err := s.LoadActivitiesWithKnowledge(ctx, sourceMapID)
	if err != nil {
		return "", err
	}
	competencies, err := s.LoadCompetencies(ctx, sourceMapID)
	if err != nil {
		return "", err
	}

	copyID := uuid.NewString()
	actIDs := make(map[string]string, len(activities))
	copiedActs := make([]competency.Activity, 0, len(activities))
	for _, act := range activities {
		newAct := competency.Activity{
			ID:          uuid.NewString(),
			MapID:       copyID,
			Description: act.Description,
		}
		actIDs[act.ID] = newAct.ID
		for _, k := range act.Knowledge {
			newAct.Knowledge = append(newAct.Knowledge, competency.Knowledge{
				ID:          uuid.NewString(),
				ActivityID:  newAct.ID,
				Description: k.Description,
			})
		}
		copiedActs = append(copiedActs, newAct)
	}

	copiedComps := make([]competency.Competency, 0, len(competencies))
	for _, comp := range competencies {
		newComp := competency.Competency{
			ID:          uuid.NewString(),
			MapID:       copyID,
			Description: comp.Description,
		}
		for _, actID := range comp.ActivityIDs {
			if mapped, ok := actIDs[actID]; ok {
				newComp.ActivityIDs = append(newComp.ActivityIDs, mapped)
			}
		}
		copiedComps = append(copiedComps, newComp)
	}

	m := &competency.Map{
		ID:        copyID,
		UnitID:    source.UnitID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveMap(ctx, m, copiedActs, copiedComps); err != nil {
		return "", err
	}
	return copyID, nil
}

func promoteLiveMap(ctx context.Context, tx *sql.Tx, unitID, mapID, now string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE maps SET live = 0, updated_at = ? WHERE unit_id = ? AND live = 1`,
		now, unitID); err != nil {
		return fmt.Errorf("demote live map of unit %s: %w", unitID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE maps SET live = 1, homologed_at = ?, updated_at = ? WHERE id = ?`,
		now, now, mapID); err != nil {
		return fmt.Errorf("promote map %s: %w", mapID, err)
	}
	return nil
}

// validateMapContent enforces the description uniqueness invariants before
// any row is written.
func validateMapContent(activities []competency.Activity) error {
	seenActs := make(map[string]struct{}, len(activities))
	for _, act := range activities {
		key := competency.NormalizeDescription(act.Description)
		if _, dup := seenActs[key]; dup {
			return &workflow.ValidationError{
				Message:    "duplicate activity description in map",
				Activities: []competency.Activity{act},
			}
		}
		seenActs[key] = struct{}{}

		seenKnow := make(map[string]struct{}, len(act.Knowledge))
		for _, k := range act.Knowledge {
			kkey := competency.NormalizeDescription(k.Description)
			if _, dup := seenKnow[kkey]; dup {
				return &workflow.ValidationError{
					Message:    "duplicate knowledge description in activity",
					Activities: []competency.Activity{act},
				}
			}
			seenKnow[kkey] = struct{}{}
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
