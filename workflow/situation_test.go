package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSituationIsValid(t *testing.T) {
	valid := []Situation{
		SituationNotStarted, SituationCadastroInProgress,
		SituationCadastroDisponibilized, SituationCadastroHomologated,
		SituationRevisionCadastroInProgress, SituationRevisionCadastroDisponibilized,
		SituationRevisionCadastroHomologated,
		SituationMapDisponibilized, SituationMapWithSuggestions,
		SituationMapValidated, SituationMapHomologated, SituationMapAdjusted,
	}
	for _, s := range valid {
		t.Run(s.String(), func(t *testing.T) {
			assert.True(t, s.IsValid())
		})
	}

	assert.False(t, Situation("").IsValid())
	assert.False(t, Situation("homologated").IsValid())
}

func TestSituationTransitions(t *testing.T) {
	tests := []struct {
		from    Situation
		to      Situation
		allowed bool
	}{
		{SituationNotStarted, SituationCadastroInProgress, true},
		{SituationCadastroInProgress, SituationCadastroDisponibilized, true},
		{SituationCadastroDisponibilized, SituationCadastroHomologated, true},
		{SituationCadastroDisponibilized, SituationCadastroInProgress, true},
		{SituationCadastroInProgress, SituationCadastroHomologated, false},
		{SituationRevisionCadastroDisponibilized, SituationRevisionCadastroHomologated, true},
		{SituationRevisionCadastroDisponibilized, SituationMapHomologated, true},
		{SituationRevisionCadastroDisponibilized, SituationRevisionCadastroInProgress, true},
		{SituationRevisionCadastroHomologated, SituationMapAdjusted, true},
		{SituationMapDisponibilized, SituationMapWithSuggestions, true},
		{SituationMapDisponibilized, SituationMapValidated, true},
		{SituationMapWithSuggestions, SituationMapDisponibilized, true},
		{SituationMapWithSuggestions, SituationMapValidated, false},
		{SituationMapValidated, SituationMapHomologated, true},
		{SituationMapValidated, SituationMapDisponibilized, true},
		{SituationMapHomologated, SituationRevisionCadastroInProgress, true},
		{SituationMapHomologated, SituationCadastroInProgress, false},
	}

	for _, tc := range tests {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}
