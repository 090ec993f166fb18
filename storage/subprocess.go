package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sgcx/compmap/workflow"
)

// CreateSubprocess inserts a new subprocess row.
func (s *Store) CreateSubprocess(ctx context.Context, sp *workflow.Subprocess) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subprocesses(
			id, process_id, process_kind, unit_id, map_id, situation,
			stage1_done_at, stage2_done_at, suggestions, version, active,
			created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		sp.ID, sp.ProcessID, string(sp.ProcessKind), sp.UnitID, sp.MapID,
		string(sp.Situation), formatNullableTime(sp.Stage1DoneAt),
		formatNullableTime(sp.Stage2DoneAt), sp.Suggestions, sp.Version,
		formatTime(sp.CreatedAt), formatTime(sp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert subprocess %s: %w", sp.ID, err)
	}
	return nil
}

// GetSubprocess implements workflow.Store.
func (s *Store) GetSubprocess(ctx context.Context, id string) (*workflow.Subprocess, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, process_id, process_kind, unit_id, map_id, situation,
		       stage1_done_at, stage2_done_at, suggestions, version,
		       created_at, updated_at
		FROM subprocesses WHERE id = ?`, id)
	sp, err := scanSubprocess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subprocess %s: %w", id, workflow.ErrNotFound)
	}
	return sp, err
}

// ActiveSubprocessForUnit implements workflow.Store.
func (s *Store) ActiveSubprocessForUnit(ctx context.Context, unitID string) (*workflow.Subprocess, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, process_id, process_kind, unit_id, map_id, situation,
		       stage1_done_at, stage2_done_at, suggestions, version,
		       created_at, updated_at
		FROM subprocesses WHERE unit_id = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1`, unitID)
	sp, err := scanSubprocess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active subprocess for unit %s: %w", unitID, workflow.ErrNotFound)
	}
	return sp, err
}

// ApplyTransition implements workflow.Store. The subprocess update, movement
// append, optional analysis append/clear and map effects commit atomically.
// The subprocess row is updated with a compare-and-swap on its version: zero
// affected rows from a present row means a concurrent writer won.
func (s *Store) ApplyTransition(ctx context.Context, rec workflow.TransitionRecord) (err error) {
	sp := rec.Subprocess
	now := formatTime(rec.Movement.OccurredAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE subprocesses
		SET situation = ?, map_id = ?, stage1_done_at = ?, stage2_done_at = ?,
		    suggestions = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(sp.Situation), sp.MapID, formatNullableTime(sp.Stage1DoneAt),
		formatNullableTime(sp.Stage2DoneAt), sp.Suggestions, now,
		sp.ID, sp.Version)
	if err != nil {
		return fmt.Errorf("update subprocess %s: %w", sp.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM subprocesses WHERE id = ?`, sp.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			err = fmt.Errorf("subprocess %s: %w", sp.ID, workflow.ErrNotFound)
			return err
		}
		err = fmt.Errorf("subprocess %s at version %d: %w", sp.ID, sp.Version, workflow.ErrStateConflict)
		return err
	}

	if rec.ClearAnalysesStage != "" {
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM analyses WHERE subprocess_id = ? AND stage = ?`,
			sp.ID, string(rec.ClearAnalysesStage)); err != nil {
			return fmt.Errorf("clear %s analyses of subprocess %s: %w", rec.ClearAnalysesStage, sp.ID, err)
		}
	}

	mv := rec.Movement
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO movements(id, subprocess_id, description, origin_unit_id, destination_unit_id, occurred_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.SubprocessID, mv.Description, mv.OriginUnitID, mv.DestinationUnitID,
		formatTime(mv.OccurredAt)); err != nil {
		return fmt.Errorf("insert movement for subprocess %s: %w", sp.ID, err)
	}

	if rec.Analysis != nil {
		a := rec.Analysis
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO analyses(id, subprocess_id, kind, stage, observations, actor_title, occurred_at)
			VALUES(?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.SubprocessID, string(a.Kind), string(a.Stage), a.Observations,
			a.ActorTitle, formatTime(a.OccurredAt)); err != nil {
			return fmt.Errorf("insert analysis for subprocess %s: %w", sp.ID, err)
		}
	}

	if rec.MapSuggestions != nil && sp.MapID != "" {
		if _, err = tx.ExecContext(ctx,
			`UPDATE maps SET suggestions = ?, updated_at = ? WHERE id = ?`,
			*rec.MapSuggestions, now, sp.MapID); err != nil {
			return fmt.Errorf("update suggestions of map %s: %w", sp.MapID, err)
		}
	}

	if rec.PromoteLiveMap {
		if err = promoteLiveMap(ctx, tx, sp.UnitID, sp.MapID, now); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transition of subprocess %s: %w", sp.ID, err)
	}
	sp.Version++
	return nil
}

// ListMovements implements workflow.Store.
func (s *Store) ListMovements(ctx context.Context, subprocessID string) ([]workflow.Movement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subprocess_id, description, origin_unit_id, destination_unit_id, occurred_at
		FROM movements WHERE subprocess_id = ?
		ORDER BY occurred_at DESC, id DESC`, subprocessID)
	if err != nil {
		return nil, fmt.Errorf("list movements of subprocess %s: %w", subprocessID, err)
	}
	defer rows.Close()

	var movements []workflow.Movement
	for rows.Next() {
		var mv workflow.Movement
		var occurred string
		if err := rows.Scan(&mv.ID, &mv.SubprocessID, &mv.Description,
			&mv.OriginUnitID, &mv.DestinationUnitID, &occurred); err != nil {
			return nil, err
		}
		if mv.OccurredAt, err = parseTime(occurred); err != nil {
			return nil, err
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

// ListAnalyses implements workflow.Store.
func (s *Store) ListAnalyses(ctx context.Context, subprocessID string) ([]workflow.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subprocess_id, kind, stage, observations, actor_title, occurred_at
		FROM analyses WHERE subprocess_id = ?
		ORDER BY occurred_at DESC, id DESC`, subprocessID)
	if err != nil {
		return nil, fmt.Errorf("list analyses of subprocess %s: %w", subprocessID, err)
	}
	defer rows.Close()

	var analyses []workflow.Analysis
	for rows.Next() {
		var a workflow.Analysis
		var kind, stage, occurred string
		if err := rows.Scan(&a.ID, &a.SubprocessID, &kind, &stage,
			&a.Observations, &a.ActorTitle, &occurred); err != nil {
			return nil, err
		}
		a.Kind = workflow.AnalysisKind(kind)
		a.Stage = workflow.AnalysisStage(stage)
		if a.OccurredAt, err = parseTime(occurred); err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubprocess(row rowScanner) (*workflow.Subprocess, error) {
	var sp workflow.Subprocess
	var kind, situation, createdAt, updatedAt string
	var stage1, stage2 sql.NullString
	err := row.Scan(&sp.ID, &sp.ProcessID, &kind, &sp.UnitID, &sp.MapID,
		&situation, &stage1, &stage2, &sp.Suggestions, &sp.Version,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sp.ProcessKind = workflow.ProcessKind(kind)
	sp.Situation = workflow.Situation(situation)
	if sp.Stage1DoneAt, err = parseNullableTime(stage1); err != nil {
		return nil, err
	}
	if sp.Stage2DoneAt, err = parseNullableTime(stage2); err != nil {
		return nil, err
	}
	if sp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sp, nil
}
