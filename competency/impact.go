package competency

// ActivityImpactKind classifies one activity in an impact report.
type ActivityImpactKind string

const (
	ActivityInserted ActivityImpactKind = "inserted"
	ActivityRemoved  ActivityImpactKind = "removed"
	ActivityAltered  ActivityImpactKind = "altered"
)

// CompetencyImpactKind records why a competency was impacted.
type CompetencyImpactKind string

const (
	CompetencyActivityRemoved CompetencyImpactKind = "activity_removed"
	CompetencyActivityAltered CompetencyImpactKind = "activity_altered"
)

// ActivityImpact is one classified activity in an impact report. Removed
// entries carry the live activity's data; inserted and altered entries carry
// the candidate's ID and description, with Knowledge taken from the version
// being replaced (live) for altered entries so reviewers see what changes.
type ActivityImpact struct {
	ActivityID          string             `json:"activity_id"`
	Description         string             `json:"description"`
	Kind                ActivityImpactKind `json:"kind"`
	PreviousDescription string             `json:"previous_description,omitempty"`
	Knowledge           []string           `json:"knowledge,omitempty"`
	LinkedCompetencies  []string           `json:"linked_competencies,omitempty"`
}

// CompetencyImpact aggregates, per live competency, the removed or altered
// activities it is linked to. Details and kinds keep first-seen order.
type CompetencyImpact struct {
	CompetencyID string                 `json:"competency_id"`
	Description  string                 `json:"description"`
	Details      []string               `json:"details"`
	Kinds        []CompetencyImpactKind `json:"kinds"`
}

// Report is the result of comparing a live snapshot against a candidate.
// It is a transient value, never persisted.
type Report struct {
	Inserted             []ActivityImpact   `json:"inserted"`
	Removed              []ActivityImpact   `json:"removed"`
	Altered              []ActivityImpact   `json:"altered"`
	ImpactedCompetencies []CompetencyImpact `json:"impacted_competencies"`
}

// HasImpacts reports whether any activity was inserted, removed or altered.
func (r *Report) HasImpacts() bool {
	return len(r.Inserted) > 0 || len(r.Removed) > 0 || len(r.Altered) > 0
}

// EmptyReport returns a report with no impacts, used when a unit has no live
// map to compare against.
func EmptyReport() *Report {
	return &Report{}
}

// Detector compares two snapshots of a unit's map and classifies every
// activity as inserted, removed or altered, then propagates the impact onto
// the live competencies referencing the affected activities. Detection is
// deterministic and side-effect free; a Detector is safe for concurrent use.
type Detector struct{}

// NewDetector constructs a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect compares the live snapshot against the candidate. Activities are
// matched by normalized description, never by ID, because revisions work on
// cloned maps with fresh identifiers. Duplicate descriptions within one
// snapshot are tolerated: the lookup keeps the first occurrence and every
// entry is still classified independently, so duplicates may each produce a
// report entry.
func (d *Detector) Detect(live, candidate Snapshot) *Report {
	liveByDesc := activitiesByDescription(live.Activities)
	candidateByDesc := activitiesByDescription(candidate.Activities)
	competenciesByActivity := indexCompetenciesByActivity(live.Competencies)

	report := &Report{}
	report.Inserted = d.detectInserted(candidate.Activities, liveByDesc)
	report.Removed = d.detectRemoved(live.Activities, candidateByDesc, competenciesByActivity)
	report.Altered = d.detectAltered(candidate.Activities, liveByDesc, competenciesByActivity)
	report.ImpactedCompetencies = d.impactedCompetencies(report.Removed, report.Altered, liveByDesc, competenciesByActivity)
	return report
}

func (d *Detector) detectInserted(candidates []Activity, liveByDesc map[string]Activity) []ActivityImpact {
	var inserted []ActivityImpact
	for _, act := range candidates {
		if _, ok := liveByDesc[NormalizeDescription(act.Description)]; ok {
			continue
		}
		inserted = append(inserted, ActivityImpact{
			ActivityID:  act.ID,
			Description: act.Description,
			Kind:        ActivityInserted,
			Knowledge:   knowledgeDescriptions(act),
		})
	}
	return inserted
}

func (d *Detector) detectRemoved(lives []Activity, candidateByDesc map[string]Activity, byActivity map[string][]Competency) []ActivityImpact {
	var removed []ActivityImpact
	for _, act := range lives {
		if _, ok := candidateByDesc[NormalizeDescription(act.Description)]; ok {
			continue
		}
		removed = append(removed, ActivityImpact{
			ActivityID:          act.ID,
			Description:         act.Description,
			Kind:                ActivityRemoved,
			PreviousDescription: act.Description,
			Knowledge:           knowledgeDescriptions(act),
			LinkedCompetencies:  competencyNames(byActivity[act.ID]),
		})
	}
	return removed
}

func (d *Detector) detectAltered(candidates []Activity, liveByDesc map[string]Activity, byActivity map[string][]Competency) []ActivityImpact {
	var altered []ActivityImpact
	for _, act := range candidates {
		liveAct, ok := liveByDesc[NormalizeDescription(act.Description)]
		if !ok {
			continue
		}
		if !knowledgeDiffers(act, liveAct) {
			continue
		}
		altered = append(altered, ActivityImpact{
			ActivityID:          act.ID,
			Description:         act.Description,
			Kind:                ActivityAltered,
			PreviousDescription: liveAct.Description,
			Knowledge:           knowledgeDescriptions(liveAct),
			LinkedCompetencies:  competencyNames(byActivity[liveAct.ID]),
		})
	}
	return altered
}

// impactedCompetencies walks removed and altered entries and accumulates, per
// live competency, the affected-activity details. Deduplicated by competency
// ID; a competency linked to several affected activities appears once with
// every detail.
func (d *Detector) impactedCompetencies(removed, altered []ActivityImpact, liveByDesc map[string]Activity, byActivity map[string][]Competency) []CompetencyImpact {
	acc := make(map[string]*CompetencyImpact)
	var order []string

	add := func(comp Competency, detail string, kind CompetencyImpactKind) {
		entry, ok := acc[comp.ID]
		if !ok {
			entry = &CompetencyImpact{CompetencyID: comp.ID, Description: comp.Description}
			acc[comp.ID] = entry
			order = append(order, comp.ID)
		}
		if !containsString(entry.Details, detail) {
			entry.Details = append(entry.Details, detail)
		}
		if !containsKind(entry.Kinds, kind) {
			entry.Kinds = append(entry.Kinds, kind)
		}
	}

	for _, imp := range removed {
		for _, comp := range byActivity[imp.ActivityID] {
			add(comp, "activity removed: "+imp.Description, CompetencyActivityRemoved)
		}
	}
	for _, imp := range altered {
		liveAct, ok := liveByDesc[NormalizeDescription(imp.Description)]
		if !ok {
			continue
		}
		for _, comp := range byActivity[liveAct.ID] {
			add(comp, "activity altered: "+imp.Description, CompetencyActivityAltered)
		}
	}

	impacts := make([]CompetencyImpact, 0, len(order))
	for _, id := range order {
		impacts = append(impacts, *acc[id])
	}
	return impacts
}

// activitiesByDescription indexes activities by normalized description. On
// duplicate descriptions the first occurrence wins; callers still visit every
// activity independently, so duplicates are classified, not dropped.
func activitiesByDescription(activities []Activity) map[string]Activity {
	byDesc := make(map[string]Activity, len(activities))
	for _, act := range activities {
		key := NormalizeDescription(act.Description)
		if _, ok := byDesc[key]; !ok {
			byDesc[key] = act
		}
	}
	return byDesc
}

// indexCompetenciesByActivity inverts the competency→activities relation of
// the live snapshot.
func indexCompetenciesByActivity(competencies []Competency) map[string][]Competency {
	byActivity := make(map[string][]Competency)
	for _, comp := range competencies {
		for _, actID := range comp.ActivityIDs {
			byActivity[actID] = append(byActivity[actID], comp)
		}
	}
	return byActivity
}

// knowledgeDiffers reports whether two matched activities carry different
// knowledge-item description sets: different count, or any description
// present in one and not the other.
func knowledgeDiffers(a, b Activity) bool {
	if len(a.Knowledge) != len(b.Knowledge) {
		return true
	}
	if len(a.Knowledge) == 0 {
		return false
	}
	setA := make(map[string]struct{}, len(a.Knowledge))
	for _, k := range a.Knowledge {
		setA[NormalizeDescription(k.Description)] = struct{}{}
	}
	for _, k := range b.Knowledge {
		if _, ok := setA[NormalizeDescription(k.Description)]; !ok {
			return true
		}
	}
	return false
}

func knowledgeDescriptions(act Activity) []string {
	if len(act.Knowledge) == 0 {
		return nil
	}
	descs := make([]string, 0, len(act.Knowledge))
	for _, k := range act.Knowledge {
		descs = append(descs, k.Description)
	}
	return descs
}

func competencyNames(comps []Competency) []string {
	if len(comps) == 0 {
		return nil
	}
	names := make([]string, 0, len(comps))
	for _, c := range comps {
		names = append(names, c.Description)
	}
	return names
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsKind(list []CompetencyImpactKind, k CompetencyImpactKind) bool {
	for _, v := range list {
		if v == k {
			return true
		}
	}
	return false
}
