package workflow

// Situation represents the current state of a subprocess in the mapping
// lifecycle.
type Situation string

const (
	// SituationNotStarted indicates the subprocess was created but the unit
	// has not begun its cadastro.
	SituationNotStarted Situation = "not_started"
	// SituationCadastroInProgress indicates the unit is filling in its
	// activities and knowledge.
	SituationCadastroInProgress Situation = "cadastro_in_progress"
	// SituationCadastroDisponibilized indicates the unit released its
	// cadastro for superior analysis.
	SituationCadastroDisponibilized Situation = "cadastro_disponibilized"
	// SituationCadastroHomologated indicates the cadastro received terminal
	// approval.
	SituationCadastroHomologated Situation = "cadastro_homologated"
	// SituationRevisionCadastroInProgress indicates the unit is revising a
	// previously homologated cadastro.
	SituationRevisionCadastroInProgress Situation = "revision_cadastro_in_progress"
	// SituationRevisionCadastroDisponibilized indicates the revised cadastro
	// was released for superior analysis.
	SituationRevisionCadastroDisponibilized Situation = "revision_cadastro_disponibilized"
	// SituationRevisionCadastroHomologated indicates the revised cadastro was
	// approved and the detected impacts require map adjustment.
	SituationRevisionCadastroHomologated Situation = "revision_cadastro_homologated"
	// SituationMapDisponibilized indicates the competency map was released to
	// the unit for validation.
	SituationMapDisponibilized Situation = "map_disponibilized"
	// SituationMapWithSuggestions indicates the unit returned the map with
	// suggestions instead of validating it.
	SituationMapWithSuggestions Situation = "map_with_suggestions"
	// SituationMapValidated indicates the unit validated the map.
	SituationMapValidated Situation = "map_validated"
	// SituationMapHomologated indicates the map received terminal approval
	// and became the unit's live map.
	SituationMapHomologated Situation = "map_homologated"
	// SituationMapAdjusted indicates the map was adjusted after an impactful
	// revision.
	SituationMapAdjusted Situation = "map_adjusted"
)

// String returns the string representation of the situation.
func (s Situation) String() string {
	return string(s)
}

// IsValid returns true if the situation is a valid subprocess state.
func (s Situation) IsValid() bool {
	switch s {
	case SituationNotStarted, SituationCadastroInProgress,
		SituationCadastroDisponibilized, SituationCadastroHomologated,
		SituationRevisionCadastroInProgress, SituationRevisionCadastroDisponibilized,
		SituationRevisionCadastroHomologated,
		SituationMapDisponibilized, SituationMapWithSuggestions,
		SituationMapValidated, SituationMapHomologated, SituationMapAdjusted:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the situation can transition to the target
// situation through some workflow action.
func (s Situation) CanTransitionTo(target Situation) bool {
	switch s {
	case SituationNotStarted:
		return target == SituationCadastroInProgress
	case SituationCadastroInProgress:
		return target == SituationCadastroDisponibilized
	case SituationCadastroDisponibilized:
		// homologation (normal) or devolution back to the unit; the reopen
		// administrative action also returns the cadastro to in-progress.
		return target == SituationCadastroHomologated || target == SituationCadastroInProgress
	case SituationCadastroHomologated:
		return target == SituationRevisionCadastroInProgress || target == SituationMapDisponibilized
	case SituationRevisionCadastroInProgress:
		return target == SituationRevisionCadastroDisponibilized
	case SituationRevisionCadastroDisponibilized:
		// homologation branches on the impact report: impacts require map
		// adjustment, an impact-free revision homologates the map directly.
		return target == SituationRevisionCadastroHomologated ||
			target == SituationMapHomologated ||
			target == SituationRevisionCadastroInProgress
	case SituationRevisionCadastroHomologated:
		return target == SituationMapAdjusted || target == SituationMapDisponibilized
	case SituationMapDisponibilized:
		return target == SituationMapWithSuggestions || target == SituationMapValidated
	case SituationMapWithSuggestions:
		// the map owner reworks the map and disponibilizes it again.
		return target == SituationMapDisponibilized
	case SituationMapValidated:
		return target == SituationMapHomologated || target == SituationMapDisponibilized
	case SituationMapAdjusted:
		return target == SituationMapAdjusted
	case SituationMapHomologated:
		return target == SituationRevisionCadastroInProgress
	default:
		return false
	}
}
