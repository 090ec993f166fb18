package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgcx/compmap/competency"
	"github.com/sgcx/compmap/org"
	"github.com/sgcx/compmap/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "compmap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSubprocess(unitID string) *workflow.Subprocess {
	now := time.Now().UTC()
	return &workflow.Subprocess{
		ID:          uuid.NewString(),
		ProcessID:   uuid.NewString(),
		ProcessKind: workflow.ProcessMapping,
		UnitID:      unitID,
		MapID:       uuid.NewString(),
		Situation:   workflow.SituationCadastroInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testMovement(subprocessID string) workflow.Movement {
	return workflow.Movement{
		ID:                uuid.NewString(),
		SubprocessID:      subprocessID,
		Description:       "Cadastro disponibilized for analysis",
		OriginUnitID:      "sesel",
		DestinationUnitID: "cosis",
		OccurredAt:        time.Now().UTC(),
	}
}

func TestSubprocessRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sp := testSubprocess("sesel")
	require.NoError(t, store.CreateSubprocess(ctx, sp))

	t.Run("get", func(t *testing.T) {
		got, err := store.GetSubprocess(ctx, sp.ID)
		require.NoError(t, err)
		assert.Equal(t, sp.ID, got.ID)
		assert.Equal(t, workflow.SituationCadastroInProgress, got.Situation)
		assert.Equal(t, int64(0), got.Version)
		assert.Nil(t, got.Stage1DoneAt)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetSubprocess(ctx, "missing")
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})

	t.Run("active for unit", func(t *testing.T) {
		got, err := store.ActiveSubprocessForUnit(ctx, "sesel")
		require.NoError(t, err)
		assert.Equal(t, sp.ID, got.ID)

		_, err = store.ActiveSubprocessForUnit(ctx, "nobody")
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})
}

func TestApplyTransition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sp := testSubprocess("sesel")
	require.NoError(t, store.CreateSubprocess(ctx, sp))

	now := time.Now().UTC()
	sp.Situation = workflow.SituationCadastroDisponibilized
	sp.Stage1DoneAt = &now

	err := store.ApplyTransition(ctx, workflow.TransitionRecord{
		Subprocess: sp,
		Movement:   testMovement(sp.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sp.Version)

	got, err := store.GetSubprocess(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.SituationCadastroDisponibilized, got.Situation)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.Stage1DoneAt)

	movements, err := store.ListMovements(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "sesel", movements[0].OriginUnitID)
}

func TestApplyTransitionVersionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sp := testSubprocess("sesel")
	require.NoError(t, store.CreateSubprocess(ctx, sp))

	winner, err := store.GetSubprocess(ctx, sp.ID)
	require.NoError(t, err)
	loser, err := store.GetSubprocess(ctx, sp.ID)
	require.NoError(t, err)

	winner.Situation = workflow.SituationCadastroDisponibilized
	require.NoError(t, store.ApplyTransition(ctx, workflow.TransitionRecord{
		Subprocess: winner,
		Movement:   testMovement(sp.ID),
	}))

	loser.Situation = workflow.SituationCadastroDisponibilized
	err = store.ApplyTransition(ctx, workflow.TransitionRecord{
		Subprocess: loser,
		Movement:   testMovement(sp.ID),
	})
	require.ErrorIs(t, err, workflow.ErrStateConflict)

	// The losing transition left no partial records.
	movements, err := store.ListMovements(ctx, sp.ID)
	require.NoError(t, err)
	assert.Len(t, movements, 1)

	got, err := store.GetSubprocess(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestApplyTransitionUnknownSubprocess(t *testing.T) {
	store := newTestStore(t)

	sp := testSubprocess("sesel")
	err := store.ApplyTransition(context.Background(), workflow.TransitionRecord{
		Subprocess: sp,
		Movement:   testMovement(sp.ID),
	})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestApplyTransitionClearsStageAnalyses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sp := testSubprocess("sesel")
	require.NoError(t, store.CreateSubprocess(ctx, sp))

	now := time.Now().UTC()
	devolve := &workflow.Analysis{
		ID:           uuid.NewString(),
		SubprocessID: sp.ID,
		Kind:         workflow.AnalysisDevolve,
		Stage:        workflow.StageCadastro,
		Observations: "missing knowledge on item 2",
		ActorTitle:   "12345",
		OccurredAt:   now,
	}
	validation := &workflow.Analysis{
		ID:           uuid.NewString(),
		SubprocessID: sp.ID,
		Kind:         workflow.AnalysisAccept,
		Stage:        workflow.StageValidation,
		ActorTitle:   "12345",
		OccurredAt:   now,
	}
	require.NoError(t, store.ApplyTransition(ctx, workflow.TransitionRecord{
		Subprocess: sp, Movement: testMovement(sp.ID), Analysis: devolve,
	}))
	require.NoError(t, store.ApplyTransition(ctx, workflow.TransitionRecord{
		Subprocess: sp, Movement: testMovement(sp.ID), Analysis: validation,
	}))

	// Restarting the cadastro stage clears only that stage's analyses.
	require.NoError(t, store.ApplyTransition(ctx, workflow.TransitionRecord{
		Subprocess:         sp,
		Movement:           testMovement(sp.ID),
		ClearAnalysesStage: workflow.StageCadastro,
	}))

	analyses, err := store.ListAnalyses(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, workflow.StageValidation, analyses[0].Stage)
}

func buildMap(t *testing.T, store *Store, unitID string, live bool) (string, []competency.Activity, []competency.Competency) {
	t.Helper()
	now := time.Now().UTC()
	mapID := uuid.NewString()
	acts := []competency.Activity{
		{
			ID: uuid.NewString(), MapID: mapID, Description: "Atender Público",
			Knowledge: []competency.Knowledge{{ID: uuid.NewString(), Description: "C1"}},
		},
		{
			ID: uuid.NewString(), MapID: mapID, Description: "Gerir Contratos",
			Knowledge: []competency.Knowledge{{ID: uuid.NewString(), Description: "C2"}},
		},
	}
	acts[0].Knowledge[0].ActivityID = acts[0].ID
	acts[1].Knowledge[0].ActivityID = acts[1].ID
	comps := []competency.Competency{
		{
			ID: uuid.NewString(), MapID: mapID, Description: "Atendimento",
			ActivityIDs: []string{acts[0].ID, acts[1].ID},
		},
	}
	m := &competency.Map{ID: mapID, UnitID: unitID, Live: live, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.SaveMap(context.Background(), m, acts, comps))
	return mapID, acts, comps
}

func TestSaveAndLoadMap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mapID, acts, comps := buildMap(t, store, "sesel", true)

	loaded, err := store.LoadActivitiesWithKnowledge(ctx, mapID)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	descs := []string{loaded[0].Description, loaded[1].Description}
	assert.ElementsMatch(t, []string{"Atender Público", "Gerir Contratos"}, descs)
	for _, act := range loaded {
		assert.Len(t, act.Knowledge, 1)
	}

	loadedComps, err := store.LoadCompetencies(ctx, mapID)
	require.NoError(t, err)
	require.Len(t, loadedComps, 1)
	assert.Equal(t, comps[0].Description, loadedComps[0].Description)
	assert.ElementsMatch(t, []string{acts[0].ID, acts[1].ID}, loadedComps[0].ActivityIDs)

	live, err := store.LiveMapID(ctx, "sesel")
	require.NoError(t, err)
	assert.Equal(t, mapID, live)
}

func TestSaveMapRejectsDuplicateActivityDescriptions(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	mapID := uuid.NewString()
	m := &competency.Map{ID: mapID, UnitID: "sesel", CreatedAt: now, UpdatedAt: now}
	acts := []competency.Activity{
		{ID: uuid.NewString(), MapID: mapID, Description: "Atender Público"},
		{ID: uuid.NewString(), MapID: mapID, Description: "  atender público  "},
	}

	err := store.SaveMap(context.Background(), m, acts, nil)

	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestActivitiesWithoutKnowledge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mapID := uuid.NewString()
	m := &competency.Map{ID: mapID, UnitID: "sesel", CreatedAt: now, UpdatedAt: now}
	complete := competency.Activity{
		ID: uuid.NewString(), MapID: mapID, Description: "Completa",
		Knowledge: []competency.Knowledge{{ID: uuid.NewString(), Description: "C1"}},
	}
	complete.Knowledge[0].ActivityID = complete.ID
	incomplete := competency.Activity{ID: uuid.NewString(), MapID: mapID, Description: "Incompleta"}
	require.NoError(t, store.SaveMap(ctx, m, []competency.Activity{complete, incomplete}, nil))

	got, err := store.ActivitiesWithoutKnowledge(ctx, mapID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Incompleta", got[0].Description)
}

func TestUnlinkedMapEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mapID := uuid.NewString()
	m := &competency.Map{ID: mapID, UnitID: "sesel", CreatedAt: now, UpdatedAt: now}
	linked := competency.Activity{ID: uuid.NewString(), MapID: mapID, Description: "Vinculada"}
	loose := competency.Activity{ID: uuid.NewString(), MapID: mapID, Description: "Solta"}
	comps := []competency.Competency{
		{ID: uuid.NewString(), MapID: mapID, Description: "Com atividade", ActivityIDs: []string{linked.ID}},
		{ID: uuid.NewString(), MapID: mapID, Description: "Sem atividade"},
	}
	require.NoError(t, store.SaveMap(ctx, m, []competency.Activity{linked, loose}, comps))

	acts, unlinkedComps, err := store.UnlinkedMapEntities(ctx, mapID)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "Solta", acts[0].Description)
	require.Len(t, unlinkedComps, 1)
	assert.Equal(t, "Sem atividade", unlinkedComps[0].Description)
}

func TestPromoteLiveMapOnTransition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oldLive, _, _ := buildMap(t, store, "sesel", true)
	workingID, _, _ := buildMap(t, store, "sesel", false)

	sp := testSubprocess("sesel")
	sp.MapID = workingID
	require.NoError(t, store.CreateSubprocess(ctx, sp))

	sp.Situation = workflow.SituationMapHomologated
	require.NoError(t, store.ApplyTransition(ctx, workflow.TransitionRecord{
		Subprocess:     sp,
		Movement:       testMovement(sp.ID),
		PromoteLiveMap: true,
	}))

	live, err := store.LiveMapID(ctx, "sesel")
	require.NoError(t, err)
	assert.Equal(t, workingID, live)

	demoted, err := store.GetMap(ctx, oldLive)
	require.NoError(t, err)
	assert.False(t, demoted.Live)

	promoted, err := store.GetMap(ctx, workingID)
	require.NoError(t, err)
	assert.True(t, promoted.Live)
	assert.NotNil(t, promoted.HomologedAt)
}

func TestCopyMapPreservesContentUnderFreshIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sourceID, sourceActs, _ := buildMap(t, store, "sesel", true)

	copyID, err := store.CopyMap(ctx, sourceID, time.Now().UTC())
	require.NoError(t, err)
	require.NotEqual(t, sourceID, copyID)

	copied, err := store.LoadActivitiesWithKnowledge(ctx, copyID)
	require.NoError(t, err)
	require.Len(t, copied, len(sourceActs))

	sourceIDs := map[string]bool{}
	for _, act := range sourceActs {
		sourceIDs[act.ID] = true
	}
	var copiedDescs []string
	for _, act := range copied {
		assert.False(t, sourceIDs[act.ID], "copied activity reuses source ID")
		assert.Equal(t, copyID, act.MapID)
		copiedDescs = append(copiedDescs, act.Description)
	}
	assert.ElementsMatch(t, []string{"Atender Público", "Gerir Contratos"}, copiedDescs)

	comps, err := store.LoadCompetencies(ctx, copyID)
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Len(t, comps[0].ActivityIDs, 2)

	// The copy never becomes live implicitly.
	live, err := store.LiveMapID(ctx, "sesel")
	require.NoError(t, err)
	assert.Equal(t, sourceID, live)
}

func TestUnitDirectory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUnit(ctx, &org.Unit{ID: "sedoc", Sigil: "SEDOC", Name: "Central"}))
	require.NoError(t, store.SaveUnit(ctx, &org.Unit{ID: "sesel", Sigil: "SESEL", Name: "Leaf", SuperiorID: "sedoc"}))

	t.Run("superior lookup", func(t *testing.T) {
		superior, err := store.SuperiorOf(ctx, "sesel")
		require.NoError(t, err)
		assert.Equal(t, "SEDOC", superior.Sigil)
	})

	t.Run("top of hierarchy", func(t *testing.T) {
		_, err := store.SuperiorOf(ctx, "sedoc")
		assert.ErrorIs(t, err, org.ErrNoSuperior)
	})

	t.Run("unknown unit", func(t *testing.T) {
		_, err := store.Get(ctx, "ghost")
		assert.ErrorIs(t, err, org.ErrUnknownUnit)
	})

	t.Run("by sigil", func(t *testing.T) {
		u, err := store.BySigil(ctx, "SESEL")
		require.NoError(t, err)
		assert.Equal(t, "sesel", u.ID)
	})

	t.Run("upsert", func(t *testing.T) {
		require.NoError(t, store.SaveUnit(ctx, &org.Unit{ID: "sesel", Sigil: "SESEL", Name: "Renamed", SuperiorID: "sedoc"}))
		u, err := store.Get(ctx, "sesel")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", u.Name)
	})
}
