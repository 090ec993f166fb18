package competency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activity(id, desc string, knowledge ...string) Activity {
	act := Activity{ID: id, Description: desc}
	for i, k := range knowledge {
		act.Knowledge = append(act.Knowledge, Knowledge{
			ID:          id + "-k" + string(rune('a'+i)),
			ActivityID:  id,
			Description: k,
		})
	}
	return act
}

func TestDetectIdenticalSnapshots(t *testing.T) {
	live := Snapshot{
		Activities: []Activity{
			activity("l1", "Atividade A", "C1", "C2"),
			activity("l2", "Atividade B", "C3"),
		},
		Competencies: []Competency{
			{ID: "c1", Description: "Comp 1", ActivityIDs: []string{"l1", "l2"}},
		},
	}
	candidate := Snapshot{
		Activities: []Activity{
			activity("n1", "Atividade A", "C1", "C2"),
			activity("n2", "Atividade B", "C3"),
		},
	}

	report := NewDetector().Detect(live, candidate)

	assert.False(t, report.HasImpacts())
	assert.Empty(t, report.Inserted)
	assert.Empty(t, report.Removed)
	assert.Empty(t, report.Altered)
	assert.Empty(t, report.ImpactedCompetencies)
}

func TestDetectEmptyLiveSnapshot(t *testing.T) {
	candidate := Snapshot{Activities: []Activity{activity("n1", "Nova")}}

	report := NewDetector().Detect(Snapshot{}, candidate)

	require.True(t, report.HasImpacts())
	require.Len(t, report.Inserted, 1)
	assert.Equal(t, "Nova", report.Inserted[0].Description)
	assert.Equal(t, ActivityInserted, report.Inserted[0].Kind)
	assert.Empty(t, report.Removed)
	assert.Empty(t, report.Altered)
	assert.Empty(t, report.ImpactedCompetencies)
}

func TestDetectEmptyCandidateSnapshot(t *testing.T) {
	live := Snapshot{
		Activities: []Activity{
			activity("l1", "Atividade A"),
			activity("l2", "Atividade B"),
		},
	}

	report := NewDetector().Detect(live, Snapshot{})

	require.Len(t, report.Removed, 2)
	assert.Equal(t, ActivityRemoved, report.Removed[0].Kind)
	assert.Equal(t, ActivityRemoved, report.Removed[1].Kind)
	assert.Empty(t, report.Inserted)
	assert.Empty(t, report.Altered)
}

func TestDetectAlteredKnowledge(t *testing.T) {
	live := Snapshot{
		Activities: []Activity{activity("l1", "Atividade A", "C1")},
		Competencies: []Competency{
			{ID: "c1", Description: "Comp 1", ActivityIDs: []string{"l1"}},
			{ID: "c2", Description: "Comp 2", ActivityIDs: []string{"l9"}},
		},
	}
	candidate := Snapshot{Activities: []Activity{activity("n1", "Atividade A", "C2")}}

	report := NewDetector().Detect(live, candidate)

	require.True(t, report.HasImpacts())
	require.Len(t, report.Altered, 1)
	assert.Equal(t, "Atividade A", report.Altered[0].Description)
	assert.Equal(t, []string{"C1"}, report.Altered[0].Knowledge)
	assert.Empty(t, report.Inserted)
	assert.Empty(t, report.Removed)

	// Only the competency linked to the altered activity is impacted.
	require.Len(t, report.ImpactedCompetencies, 1)
	assert.Equal(t, "c1", report.ImpactedCompetencies[0].CompetencyID)
	assert.Equal(t, []CompetencyImpactKind{CompetencyActivityAltered}, report.ImpactedCompetencies[0].Kinds)
}

func TestDetectMatchesByNormalizedDescription(t *testing.T) {
	live := Snapshot{Activities: []Activity{activity("l1", "  Atender Público  ", "C1")}}
	candidate := Snapshot{Activities: []Activity{activity("n1", "atender público", "C1")}}

	report := NewDetector().Detect(live, candidate)

	assert.False(t, report.HasImpacts())
}

func TestDetectKnowledgeCountDiffers(t *testing.T) {
	live := Snapshot{Activities: []Activity{activity("l1", "Atividade A", "C1", "C2")}}
	candidate := Snapshot{Activities: []Activity{activity("n1", "Atividade A", "C1")}}

	report := NewDetector().Detect(live, candidate)

	require.Len(t, report.Altered, 1)
}

func TestDetectCompetencyImpactedOncePerID(t *testing.T) {
	live := Snapshot{
		Activities: []Activity{
			activity("l1", "Atividade A", "C1"),
			activity("l2", "Atividade B", "C2"),
		},
		Competencies: []Competency{
			{ID: "c1", Description: "Comp 1", ActivityIDs: []string{"l1", "l2"}},
		},
	}
	// Both activities removed; the shared competency must appear exactly once.
	report := NewDetector().Detect(live, Snapshot{})

	require.Len(t, report.Removed, 2)
	require.Len(t, report.ImpactedCompetencies, 1)
	imp := report.ImpactedCompetencies[0]
	assert.Equal(t, "c1", imp.CompetencyID)
	assert.Len(t, imp.Details, 2)
	assert.Equal(t, []CompetencyImpactKind{CompetencyActivityRemoved}, imp.Kinds)
}

func TestDetectRemovedAndAlteredShareCompetency(t *testing.T) {
	live := Snapshot{
		Activities: []Activity{
			activity("l1", "Atividade A", "C1"),
			activity("l2", "Atividade B", "C2"),
		},
		Competencies: []Competency{
			{ID: "c1", Description: "Comp 1", ActivityIDs: []string{"l1", "l2"}},
		},
	}
	candidate := Snapshot{Activities: []Activity{activity("n1", "Atividade A", "C9")}}

	report := NewDetector().Detect(live, candidate)

	require.Len(t, report.Altered, 1)
	require.Len(t, report.Removed, 1)
	require.Len(t, report.ImpactedCompetencies, 1)
	assert.ElementsMatch(t,
		[]CompetencyImpactKind{CompetencyActivityRemoved, CompetencyActivityAltered},
		report.ImpactedCompetencies[0].Kinds)
}

func TestDetectInsertedDoesNotImpactCompetencies(t *testing.T) {
	live := Snapshot{
		Activities: []Activity{activity("l1", "Atividade A", "C1")},
		Competencies: []Competency{
			{ID: "c1", Description: "Comp 1", ActivityIDs: []string{"l1"}},
		},
	}
	candidate := Snapshot{
		Activities: []Activity{
			activity("n1", "Atividade A", "C1"),
			activity("n2", "Nova Atividade"),
		},
	}

	report := NewDetector().Detect(live, candidate)

	require.Len(t, report.Inserted, 1)
	assert.Empty(t, report.ImpactedCompetencies)
}

func TestDetectDuplicateDescriptionsDoNotPanic(t *testing.T) {
	live := Snapshot{
		Activities: []Activity{
			activity("l1", "Repetida", "C1"),
			activity("l2", "Repetida", "C2"),
		},
	}
	candidate := Snapshot{
		Activities: []Activity{
			activity("n1", "repetida", "C1"),
			activity("n2", "Repetida ", "C3"),
		},
	}

	var report *Report
	require.NotPanics(t, func() {
		report = NewDetector().Detect(live, candidate)
	})
	// The first live occurrence wins the lookup; both candidate entries are
	// classified against it independently.
	require.NotNil(t, report)
	assert.Empty(t, report.Inserted)
	assert.Empty(t, report.Removed)
	require.Len(t, report.Altered, 1)
	assert.Equal(t, "n2", report.Altered[0].ActivityID)
}

func TestDetectNilSlicesTreatedAsEmpty(t *testing.T) {
	live := Snapshot{Activities: nil, Competencies: nil}
	candidate := Snapshot{Activities: []Activity{activity("n1", "Nova")}}

	report := NewDetector().Detect(live, candidate)

	require.Len(t, report.Inserted, 1)
	assert.True(t, report.HasImpacts())
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Atividade  ", "atividade"},
		{"ATIVIDADE", "atividade"},
		{"", ""},
		{"  ", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeDescription(tc.in))
	}
}
