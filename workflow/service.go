package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sgcx/compmap/competency"
	"github.com/sgcx/compmap/event"
	"github.com/sgcx/compmap/metrics"
	"github.com/sgcx/compmap/notify"
	"github.com/sgcx/compmap/org"
)

// Service owns every subprocess transition. Each operation loads the
// subprocess, consults the access checker, asserts the action's precondition
// situation, applies the effect, persists subprocess plus audit records in
// one atomic transition, and finally dispatches events and notifications
// best-effort.
type Service struct {
	store    Store
	maps     MapAccessor
	dir      org.Directory
	detector *competency.Detector
	events   event.Publisher
	notifier notify.Dispatcher
	access   AccessChecker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOptions configures optional Service collaborators. Zero values get
// no-op defaults.
type ServiceOptions struct {
	Events   event.Publisher
	Notifier notify.Dispatcher
	Access   AccessChecker
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewService creates a workflow service.
func NewService(store Store, maps MapAccessor, dir org.Directory, opts ServiceOptions) *Service {
	s := &Service{
		store:    store,
		maps:     maps,
		dir:      dir,
		detector: competency.NewDetector(),
		events:   opts.Events,
		notifier: opts.Notifier,
		access:   opts.Access,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.events == nil {
		s.events = event.NopPublisher{}
	}
	if s.notifier == nil {
		s.notifier = notify.NopDispatcher{}
	}
	if s.access == nil {
		s.access = AllowAll{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// GetSubprocess returns the subprocess by ID.
func (s *Service) GetSubprocess(ctx context.Context, subprocessID string) (*Subprocess, error) {
	return s.store.GetSubprocess(ctx, subprocessID)
}

// Movements returns the subprocess's movement history, newest first.
func (s *Service) Movements(ctx context.Context, subprocessID string) ([]Movement, error) {
	if _, err := s.store.GetSubprocess(ctx, subprocessID); err != nil {
		return nil, err
	}
	return s.store.ListMovements(ctx, subprocessID)
}

// Analyses returns the subprocess's analysis history, newest first.
func (s *Service) Analyses(ctx context.Context, subprocessID string) ([]Analysis, error) {
	if _, err := s.store.GetSubprocess(ctx, subprocessID); err != nil {
		return nil, err
	}
	return s.store.ListAnalyses(ctx, subprocessID)
}

// DisponibilizeCadastro releases the unit's cadastro for superior analysis.
// Every activity must carry at least one knowledge item. Restarting the stage
// clears its prior analyses.
func (s *Service) DisponibilizeCadastro(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "disponibilize_cadastro")
	if err != nil {
		return nil, err
	}
	if sp.Situation != SituationCadastroInProgress {
		return nil, stateConflict(sp, "disponibilize cadastro")
	}
	if err := s.assertActivitiesComplete(ctx, sp); err != nil {
		return nil, err
	}

	now := s.now()
	sp.Situation = SituationCadastroDisponibilized
	sp.Stage1DoneAt = &now

	mv, superior, err := s.movementToSuperior(ctx, sp, "Cadastro disponibilized for analysis", now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{Subprocess: sp, Movement: mv, ClearAnalysesStage: StageCadastro}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition("disponibilize_cadastro")
	s.publish(ctx, event.KindCadastroDisponibilized, sp, now)
	s.sendNotification(ctx, notify.TemplateCadastroDisponibilized, superior.Sigil, s.payload(sp))
	return sp, nil
}

// AcceptCadastro records the superior unit's acceptance of a disponibilized
// cadastro. The situation is left unchanged; acceptance does not force
// homologation.
func (s *Service) AcceptCadastro(ctx context.Context, subprocessID string, actor Actor, observations string) (*Subprocess, error) {
	return s.acceptStage(ctx, subprocessID, actor, "accept_cadastro",
		SituationCadastroDisponibilized, StageCadastro, "Cadastro accepted", observations)
}

// HomologateCadastro gives the cadastro its terminal approval.
func (s *Service) HomologateCadastro(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "homologate_cadastro")
	if err != nil {
		return nil, err
	}
	if sp.Situation != SituationCadastroDisponibilized {
		return nil, stateConflict(sp, "homologate cadastro")
	}

	now := s.now()
	sp.Situation = SituationCadastroHomologated

	mv, _, err := s.movementAtSuperior(ctx, sp, "Cadastro homologated", now)
	if err != nil {
		return nil, err
	}
	if err := s.store.ApplyTransition(ctx, TransitionRecord{Subprocess: sp, Movement: mv}); err != nil {
		return nil, err
	}

	s.countTransition("homologate_cadastro")
	s.publish(ctx, event.KindCadastroHomologated, sp, now)
	return sp, nil
}

// DevolveCadastro returns a disponibilized cadastro to the unit for
// correction, clearing the stage-1 milestone.
func (s *Service) DevolveCadastro(ctx context.Context, subprocessID string, actor Actor, reason, observations string) (*Subprocess, error) {
	return s.devolveCadastroStage(ctx, subprocessID, actor, "devolve_cadastro",
		SituationCadastroDisponibilized, SituationCadastroInProgress,
		"Cadastro devolved for correction", notify.TemplateCadastroDevolved, reason, observations)
}

// DisponibilizeRevision releases the unit's revised cadastro for superior
// analysis. Same completeness rule as the first cadastro.
func (s *Service) DisponibilizeRevision(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "disponibilize_revision")
	if err != nil {
		return nil, err
	}
	if sp.Situation != SituationRevisionCadastroInProgress {
		return nil, stateConflict(sp, "disponibilize revision")
	}
	if err := s.assertActivitiesComplete(ctx, sp); err != nil {
		return nil, err
	}

	now := s.now()
	sp.Situation = SituationRevisionCadastroDisponibilized
	sp.Stage1DoneAt = &now

	mv, superior, err := s.movementToSuperior(ctx, sp, "Revision cadastro disponibilized for analysis", now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{Subprocess: sp, Movement: mv, ClearAnalysesStage: StageCadastro}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition("disponibilize_revision")
	s.publish(ctx, event.KindRevisionDisponibilized, sp, now)
	s.sendNotification(ctx, notify.TemplateRevisionDisponibilized, superior.Sigil, s.payload(sp))
	return sp, nil
}

// AcceptRevisionCadastro records acceptance of a disponibilized revision.
func (s *Service) AcceptRevisionCadastro(ctx context.Context, subprocessID string, actor Actor, observations string) (*Subprocess, error) {
	return s.acceptStage(ctx, subprocessID, actor, "accept_revision_cadastro",
		SituationRevisionCadastroDisponibilized, StageCadastro, "Revision cadastro accepted", observations)
}

// DevolveRevisionCadastro returns a disponibilized revision to the unit.
func (s *Service) DevolveRevisionCadastro(ctx context.Context, subprocessID string, actor Actor, reason, observations string) (*Subprocess, error) {
	return s.devolveCadastroStage(ctx, subprocessID, actor, "devolve_revision_cadastro",
		SituationRevisionCadastroDisponibilized, SituationRevisionCadastroInProgress,
		"Revision cadastro devolved for correction", notify.TemplateRevisionDevolved, reason, observations)
}

// HomologateRevisionCadastro homologates a disponibilized revision. The new
// situation depends on the impact report: any detected impact sends the
// subprocess into map adjustment; an impact-free revision homologates the map
// directly and promotes it to live. Both branches persist the subprocess and
// append exactly one movement.
func (s *Service) HomologateRevisionCadastro(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, *competency.Report, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "homologate_revision_cadastro")
	if err != nil {
		return nil, nil, err
	}
	if sp.Situation != SituationRevisionCadastroDisponibilized {
		return nil, nil, stateConflict(sp, "homologate revision cadastro")
	}

	report, err := s.detectForSubprocess(ctx, sp)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	rec := TransitionRecord{Subprocess: sp}
	kind := event.KindMapHomologated
	if report.HasImpacts() {
		sp.Situation = SituationRevisionCadastroHomologated
		kind = event.KindRevisionCadastroHomologated
	} else {
		sp.Situation = SituationMapHomologated
		rec.PromoteLiveMap = true
	}

	mv, _, err := s.movementAtSuperior(ctx, sp, "Revision cadastro homologated", now)
	if err != nil {
		return nil, nil, err
	}
	rec.Movement = mv
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, nil, err
	}

	s.countTransition("homologate_revision_cadastro")
	s.publish(ctx, kind, sp, now)
	return sp, report, nil
}

// DisponibilizeMap releases the competency map to the unit for validation.
// Every activity must be linked to a competency and vice versa. Prior
// suggestions are cleared; observations, when non-empty, replace them.
func (s *Service) DisponibilizeMap(ctx context.Context, subprocessID string, actor Actor, observations string) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "disponibilize_map")
	if err != nil {
		return nil, err
	}
	switch sp.Situation {
	case SituationCadastroHomologated, SituationRevisionCadastroHomologated, SituationMapWithSuggestions:
	default:
		return nil, stateConflict(sp, "disponibilize map")
	}
	if sp.MapID == "" {
		return nil, fmt.Errorf("subprocess %s: %w", sp.ID, ErrNoMap)
	}
	if err := s.assertMapComplete(ctx, sp); err != nil {
		return nil, err
	}

	now := s.now()
	sp.Situation = SituationMapDisponibilized
	sp.Suggestions = ""

	mv, _, err := s.movementFromSuperior(ctx, sp, "Map disponibilized for validation", now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{Subprocess: sp, Movement: mv, MapSuggestions: &observations}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition("disponibilize_map")
	return sp, nil
}

// PresentSuggestions returns the map to the superior with the unit's
// suggestion text instead of a validation. Prior validation analyses are
// cleared because the stage restarts.
func (s *Service) PresentSuggestions(ctx context.Context, subprocessID string, actor Actor, suggestions string) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "present_suggestions")
	if err != nil {
		return nil, err
	}
	if sp.Situation != SituationMapDisponibilized {
		return nil, stateConflict(sp, "present suggestions")
	}

	now := s.now()
	sp.Situation = SituationMapWithSuggestions
	sp.Suggestions = suggestions

	mv, _, err := s.movementToSuperior(ctx, sp, "Map returned with suggestions", now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{
		Subprocess:         sp,
		Movement:           mv,
		ClearAnalysesStage: StageValidation,
		MapSuggestions:     &suggestions,
	}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition("present_suggestions")
	return sp, nil
}

// ValidateMap records the unit's validation of the disponibilized map,
// closing the validation stage. Prior validation analyses are cleared.
func (s *Service) ValidateMap(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "validate_map")
	if err != nil {
		return nil, err
	}
	if sp.Situation != SituationMapDisponibilized {
		return nil, stateConflict(sp, "validate map")
	}

	now := s.now()
	sp.Situation = SituationMapValidated
	sp.Stage2DoneAt = &now

	mv, _, err := s.movementToSuperior(ctx, sp, "Map validated by the unit", now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{Subprocess: sp, Movement: mv, ClearAnalysesStage: StageValidation}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition("validate_map")
	return sp, nil
}

// DevolveValidation returns a validated map to the unit, reopening the
// validation stage and clearing the stage-2 milestone.
func (s *Service) DevolveValidation(ctx context.Context, subprocessID string, actor Actor, reason, observations string) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "devolve_validation")
	if err != nil {
		return nil, err
	}
	if sp.Situation != SituationMapValidated {
		return nil, stateConflict(sp, "devolve validation")
	}

	now := s.now()
	sp.Situation = SituationMapDisponibilized
	sp.Stage2DoneAt = nil

	mv, _, err := s.movementFromSuperior(ctx, sp, "Validation devolved for correction", now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{
		Subprocess: sp,
		Movement:   mv,
		Analysis:   s.analysis(sp, AnalysisDevolve, StageValidation, actor, joinReason(reason, observations), now),
	}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition("devolve_validation")
	unit, err := s.dir.Get(ctx, sp.UnitID)
	if err == nil {
		s.sendNotification(ctx, notify.TemplateValidationDevolved, unit.Sigil, s.payloadWithReason(sp, reason))
	}
	return sp, nil
}

// AcceptValidation records the superior's acceptance of a validated map. The
// situation is left unchanged.
func (s *Service) AcceptValidation(ctx context.Context, subprocessID string, actor Actor, observations string) (*Subprocess, error) {
	return s.acceptStage(ctx, subprocessID, actor, "accept_validation",
		SituationMapValidated, StageValidation, "Map validation accepted", observations)
}

// HomologateValidation homologates a validated map and promotes it to the
// unit's live map.
func (s *Service) HomologateValidation(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "homologate_validation")
	if err != nil {
		return nil, err
	}
	if sp.Situation != SituationMapValidated {
		return nil, stateConflict(sp, "homologate validation")
	}

	now := s.now()
	sp.Situation = SituationMapHomologated

	mv, _, err := s.movementAtSuperior(ctx, sp, "Map homologated", now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{Subprocess: sp, Movement: mv, PromoteLiveMap: true}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition("homologate_validation")
	s.publish(ctx, event.KindMapHomologated, sp, now)
	return sp, nil
}

// SaveMapAdjustments records adjustment work on the map after an impactful
// revision.
func (s *Service) SaveMapAdjustments(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "save_map_adjustments")
	if err != nil {
		return nil, err
	}
	switch sp.Situation {
	case SituationRevisionCadastroHomologated, SituationMapAdjusted:
	default:
		return nil, stateConflict(sp, "save map adjustments")
	}

	now := s.now()
	sp.Situation = SituationMapAdjusted

	mv := s.movement(sp, "Map adjustments saved", sp.UnitID, sp.UnitID, now)
	if err := s.store.ApplyTransition(ctx, TransitionRecord{Subprocess: sp, Movement: mv}); err != nil {
		return nil, err
	}

	s.countTransition("save_map_adjustments")
	return sp, nil
}

// SubmitAdjustedMap hands the adjusted map to the superior unit.
func (s *Service) SubmitAdjustedMap(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	sp, err := s.authorize(ctx, subprocessID, actor, "submit_adjusted_map")
	if err != nil {
		return nil, err
	}
	if sp.Situation != SituationMapAdjusted {
		return nil, stateConflict(sp, "submit adjusted map")
	}

	now := s.now()
	mv, superior, err := s.movementToSuperior(ctx, sp, "Adjusted map submitted for analysis", now)
	if err != nil {
		return nil, err
	}
	if err := s.store.ApplyTransition(ctx, TransitionRecord{Subprocess: sp, Movement: mv}); err != nil {
		return nil, err
	}

	s.countTransition("submit_adjusted_map")
	s.sendNotification(ctx, notify.TemplateAdjustedMapSubmitted, superior.Sigil, s.payload(sp))
	return sp, nil
}

// ReopenCadastro is the administrative action that returns a released or
// homologated cadastro to the unit, clearing the stage-1 milestone. The unit
// and its whole superior chain are notified.
func (s *Service) ReopenCadastro(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	return s.reopen(ctx, subprocessID, actor, "reopen_cadastro",
		[]Situation{SituationCadastroDisponibilized, SituationCadastroHomologated},
		SituationCadastroInProgress, "Cadastro reopened")
}

// ReopenRevisionCadastro reopens a released or homologated revision.
func (s *Service) ReopenRevisionCadastro(ctx context.Context, subprocessID string, actor Actor) (*Subprocess, error) {
	return s.reopen(ctx, subprocessID, actor, "reopen_revision_cadastro",
		[]Situation{SituationRevisionCadastroDisponibilized, SituationRevisionCadastroHomologated},
		SituationRevisionCadastroInProgress, "Revision cadastro reopened")
}

// AcceptCadastroBulk accepts every listed subprocess with the same
// observation text. Failures do not stop the batch; the joined error reports
// every subprocess that failed.
func (s *Service) AcceptCadastroBulk(ctx context.Context, subprocessIDs []string, actor Actor, observations string) error {
	var errs []error
	for _, id := range subprocessIDs {
		if _, err := s.AcceptCadastro(ctx, id, actor, observations); err != nil {
			errs = append(errs, fmt.Errorf("subprocess %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// HomologateCadastroBulk homologates every listed subprocess.
func (s *Service) HomologateCadastroBulk(ctx context.Context, subprocessIDs []string, actor Actor) error {
	var errs []error
	for _, id := range subprocessIDs {
		if _, err := s.HomologateCadastro(ctx, id, actor); err != nil {
			errs = append(errs, fmt.Errorf("subprocess %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// DetectImpact resolves the unit's live map and its active subprocess's
// working map, then reports the differences. A unit without a live map gets
// an empty report.
func (s *Service) DetectImpact(ctx context.Context, unitID string) (*competency.Report, error) {
	sp, err := s.store.ActiveSubprocessForUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return s.detectForSubprocess(ctx, sp)
}

func (s *Service) detectForSubprocess(ctx context.Context, sp *Subprocess) (*competency.Report, error) {
	if sp.MapID == "" {
		return nil, fmt.Errorf("subprocess %s: %w", sp.ID, ErrNoMap)
	}
	liveID, err := s.maps.LiveMapID(ctx, sp.UnitID)
	if err != nil {
		return nil, err
	}
	if liveID == "" {
		s.countImpact(metrics.OutcomeClean)
		return competency.EmptyReport(), nil
	}
	live, err := competency.LoadSnapshot(ctx, s.maps, liveID)
	if err != nil {
		return nil, err
	}
	candidate, err := competency.LoadSnapshot(ctx, s.maps, sp.MapID)
	if err != nil {
		return nil, err
	}
	report := s.detector.Detect(live, candidate)
	if report.HasImpacts() {
		s.countImpact(metrics.OutcomeImpacts)
	} else {
		s.countImpact(metrics.OutcomeClean)
	}
	return report, nil
}

// acceptStage implements the accept actions: an analysis is appended and a
// movement recorded at the superior unit, but the situation stays put.
func (s *Service) acceptStage(ctx context.Context, subprocessID string, actor Actor, action string,
	precondition Situation, stage AnalysisStage, description, observations string) (*Subprocess, error) {

	sp, err := s.authorize(ctx, subprocessID, actor, action)
	if err != nil {
		return nil, err
	}
	if sp.Situation != precondition {
		return nil, stateConflict(sp, action)
	}

	now := s.now()
	mv, _, err := s.movementAtSuperior(ctx, sp, description, now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{
		Subprocess: sp,
		Movement:   mv,
		Analysis:   s.analysis(sp, AnalysisAccept, stage, actor, observations, now),
	}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition(action)
	return sp, nil
}

func (s *Service) devolveCadastroStage(ctx context.Context, subprocessID string, actor Actor, action string,
	precondition, next Situation, description, template, reason, observations string) (*Subprocess, error) {

	sp, err := s.authorize(ctx, subprocessID, actor, action)
	if err != nil {
		return nil, err
	}
	if sp.Situation != precondition {
		return nil, stateConflict(sp, action)
	}

	now := s.now()
	sp.Situation = next
	sp.Stage1DoneAt = nil

	mv, _, err := s.movementFromSuperior(ctx, sp, description, now)
	if err != nil {
		return nil, err
	}
	rec := TransitionRecord{
		Subprocess: sp,
		Movement:   mv,
		Analysis:   s.analysis(sp, AnalysisDevolve, StageCadastro, actor, joinReason(reason, observations), now),
	}
	if err := s.store.ApplyTransition(ctx, rec); err != nil {
		return nil, err
	}

	s.countTransition(action)
	s.publish(ctx, event.KindCadastroDevolved, sp, now)
	unit, err := s.dir.Get(ctx, sp.UnitID)
	if err == nil {
		s.sendNotification(ctx, template, unit.Sigil, s.payloadWithReason(sp, reason))
	}
	return sp, nil
}

func (s *Service) reopen(ctx context.Context, subprocessID string, actor Actor, action string,
	preconditions []Situation, next Situation, description string) (*Subprocess, error) {

	sp, err := s.authorize(ctx, subprocessID, actor, action)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, p := range preconditions {
		if sp.Situation == p {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, stateConflict(sp, action)
	}

	now := s.now()
	sp.Situation = next
	sp.Stage1DoneAt = nil

	mv, _, err := s.movementFromSuperior(ctx, sp, description, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.ApplyTransition(ctx, TransitionRecord{Subprocess: sp, Movement: mv}); err != nil {
		return nil, err
	}

	s.countTransition(action)

	// The unit and its whole superior chain are told the stage restarted.
	unit, err := s.dir.Get(ctx, sp.UnitID)
	if err != nil {
		s.logger.Error("failed to resolve unit for reopen notification",
			"subprocess", sp.ID, "unit", sp.UnitID, "error", err)
		return sp, nil
	}
	s.sendNotification(ctx, notify.TemplateCadastroReopened, unit.Sigil, s.payload(sp))
	chain, err := org.Superiors(ctx, s.dir, sp.UnitID)
	if err != nil {
		s.logger.Error("failed to resolve superior chain for reopen notification",
			"subprocess", sp.ID, "unit", sp.UnitID, "error", err)
		return sp, nil
	}
	for _, superior := range chain {
		s.sendNotification(ctx, notify.TemplateCadastroReopened, superior.Sigil, s.payload(sp))
	}
	return sp, nil
}

func (s *Service) authorize(ctx context.Context, subprocessID string, actor Actor, action string) (*Subprocess, error) {
	sp, err := s.store.GetSubprocess(ctx, subprocessID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Allowed(ctx, actor, action, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// assertActivitiesComplete fails with a ValidationError naming every activity
// without knowledge items.
func (s *Service) assertActivitiesComplete(ctx context.Context, sp *Subprocess) error {
	if sp.MapID == "" {
		return fmt.Errorf("subprocess %s: %w", sp.ID, ErrNoMap)
	}
	incomplete, err := s.maps.ActivitiesWithoutKnowledge(ctx, sp.MapID)
	if err != nil {
		return err
	}
	if len(incomplete) > 0 {
		return &ValidationError{Message: "activities without knowledge items", Activities: incomplete}
	}
	return nil
}

// assertMapComplete fails with a ValidationError when the map has activities
// without a competency or competencies without an activity.
func (s *Service) assertMapComplete(ctx context.Context, sp *Subprocess) error {
	acts, comps, err := s.maps.UnlinkedMapEntities(ctx, sp.MapID)
	if err != nil {
		return err
	}
	if len(acts) > 0 || len(comps) > 0 {
		return &ValidationError{
			Message:      "map is incomplete",
			Activities:   acts,
			Competencies: comps,
		}
	}
	return nil
}

func (s *Service) movementToSuperior(ctx context.Context, sp *Subprocess, description string, now time.Time) (Movement, *org.Unit, error) {
	superior, err := s.superior(ctx, sp)
	if err != nil {
		return Movement{}, nil, err
	}
	return s.movement(sp, description, sp.UnitID, superior.ID, now), superior, nil
}

func (s *Service) movementFromSuperior(ctx context.Context, sp *Subprocess, description string, now time.Time) (Movement, *org.Unit, error) {
	superior, err := s.superior(ctx, sp)
	if err != nil {
		return Movement{}, nil, err
	}
	return s.movement(sp, description, superior.ID, sp.UnitID, now), superior, nil
}

// movementAtSuperior records homologation-class transitions, which keep
// origin and destination on the superior unit.
func (s *Service) movementAtSuperior(ctx context.Context, sp *Subprocess, description string, now time.Time) (Movement, *org.Unit, error) {
	superior, err := s.superior(ctx, sp)
	if err != nil {
		return Movement{}, nil, err
	}
	return s.movement(sp, description, superior.ID, superior.ID, now), superior, nil
}

func (s *Service) movement(sp *Subprocess, description, origin, destination string, now time.Time) Movement {
	return Movement{
		ID:                uuid.NewString(),
		SubprocessID:      sp.ID,
		Description:       description,
		OriginUnitID:      origin,
		DestinationUnitID: destination,
		OccurredAt:        now,
	}
}

func (s *Service) superior(ctx context.Context, sp *Subprocess) (*org.Unit, error) {
	superior, err := s.dir.SuperiorOf(ctx, sp.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve superior of unit %s: %w", sp.UnitID, err)
	}
	return superior, nil
}

func (s *Service) analysis(sp *Subprocess, kind AnalysisKind, stage AnalysisStage, actor Actor, observations string, now time.Time) *Analysis {
	return &Analysis{
		ID:           uuid.NewString(),
		SubprocessID: sp.ID,
		Kind:         kind,
		Stage:        stage,
		Observations: observations,
		ActorTitle:   actor.Title,
		OccurredAt:   now,
	}
}

func (s *Service) payload(sp *Subprocess) map[string]string {
	return map[string]string{
		"subprocess_id": sp.ID,
		"process_id":    sp.ProcessID,
		"unit_id":       sp.UnitID,
	}
}

func (s *Service) payloadWithReason(sp *Subprocess, reason string) map[string]string {
	payload := s.payload(sp)
	payload["reason"] = reason
	return payload
}

// publish emits a domain event best-effort: failures are logged and counted,
// never returned, since the transition already committed.
func (s *Service) publish(ctx context.Context, kind event.Kind, sp *Subprocess, now time.Time) {
	ev := event.Event{
		Kind:         kind,
		SubprocessID: sp.ID,
		ProcessID:    sp.ProcessID,
		UnitID:       sp.UnitID,
		OccurredAt:   now,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Error("failed to publish domain event",
			"kind", kind, "subprocess", sp.ID, "error", err)
		s.countCollaboratorFailure(metrics.CollaboratorEvent)
	}
}

// sendNotification dispatches a notification best-effort.
func (s *Service) sendNotification(ctx context.Context, template, sigil string, payload map[string]string) {
	req := notify.Request{TemplateKey: template, TargetSigil: sigil, Payload: payload, RequestedAt: s.now()}
	if err := s.notifier.Notify(ctx, req); err != nil {
		s.logger.Error("failed to dispatch notification",
			"template", template, "target", sigil, "error", err)
		s.countCollaboratorFailure(metrics.CollaboratorNotification)
	}
}

func (s *Service) countTransition(action string) {
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(action).Inc()
	}
}

func (s *Service) countImpact(outcome string) {
	if s.metrics != nil {
		s.metrics.ImpactReports.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countCollaboratorFailure(collaborator string) {
	if s.metrics != nil {
		s.metrics.CollaboratorFailures.WithLabelValues(collaborator).Inc()
	}
}

func joinReason(reason, observations string) string {
	switch {
	case reason == "":
		return observations
	case observations == "":
		return reason
	default:
		return reason + ": " + observations
	}
}
