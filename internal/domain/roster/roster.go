// Package roster gates and classifies inbound feed entities against the
// assignment list of the active event. It answers exactly two questions:
// is this entity assigned here, and is it an agent or a supervisor.
package roster

import (
	"strings"

	"github.com/vigilops/livetrack/internal/domain/model"
)

// candidateExtractor pulls one identifier variant out of an assignment.
// The feed may key positions by any of these schemes depending on device
// configuration, so Resolve tries every extractor in priority order before
// declaring no match. Keeping this as an explicit list makes the ambiguity
// visible and testable instead of an inline || chain.
type candidateExtractor func(model.AssignmentRecord) string

var identifierPolicy = []candidateExtractor{
	func(a model.AssignmentRecord) string { return a.Person.ID },
	func(a model.AssignmentRecord) string { return a.Person.NationalID },
	func(a model.AssignmentRecord) string { return a.Person.UserID },
}

// Resolution is the outcome of matching one entity id against the roster.
type Resolution struct {
	Matched bool
	Role    model.Role
	Record  *model.AssignmentRecord
}

// Roster holds the assignment list for a single event scope. It is
// immutable after construction; scope changes build a fresh Roster.
type Roster struct {
	eventID string
	records []model.AssignmentRecord
}

// New builds a roster for eventID from records. Records for other events or
// with a status outside confirmed/pending are excluded up front, so every
// retained record can gate messages into the store.
func New(eventID string, records []model.AssignmentRecord) *Roster {
	kept := make([]model.AssignmentRecord, 0, len(records))
	for _, rec := range records {
		if rec.EventID != eventID || !rec.Trackable() {
			continue
		}
		kept = append(kept, rec)
	}
	return &Roster{eventID: eventID, records: kept}
}

// EventID returns the event this roster belongs to.
func (r *Roster) EventID() string { return r.eventID }

// Len returns the number of trackable assignments.
func (r *Roster) Len() int { return len(r.records) }

// Records returns a copy of the trackable assignments.
func (r *Roster) Records() []model.AssignmentRecord {
	out := make([]model.AssignmentRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Resolve matches an entity id from the feed against the roster. Extractors
// are tried in priority order: a person-id hit wins over a national-id hit
// even when both exist on different records.
func (r *Roster) Resolve(entityID string) Resolution {
	id := strings.TrimSpace(entityID)
	if id == "" {
		return Resolution{}
	}
	for _, extract := range identifierPolicy {
		for i := range r.records {
			if extract(r.records[i]) == id {
				rec := r.records[i]
				return Resolution{
					Matched: true,
					Role:    rec.TrackedRole(),
					Record:  &rec,
				}
			}
		}
	}
	return Resolution{}
}

// Group is one supervisor bucket for display: a supervisor and the agents
// linked under them. The Supervisor field is nil for the orphan bucket.
type Group struct {
	Supervisor *model.AssignmentRecord `json:"supervisor,omitempty"`
	Agents     []model.AssignmentRecord `json:"agents"`
}

// GroupBySupervisor arranges the roster into supervisor buckets. Linking an
// agent to a supervisor tries a fixed fallback chain until one rule
// succeeds: zone supervisor id, zone agent id, zone user id, explicit
// assignedTo, explicit supervisorId, shared zone membership. Agents that no
// rule can place land in a trailing orphan bucket. The chain mirrors the
// shapes real backends emit; when several linking fields disagree the
// earliest rule wins.
func (r *Roster) GroupBySupervisor() []Group {
	var supervisors []model.AssignmentRecord
	var agents []model.AssignmentRecord
	for _, rec := range r.records {
		if rec.TrackedRole() == model.RoleSupervisor {
			supervisors = append(supervisors, rec)
		} else {
			agents = append(agents, rec)
		}
	}

	groups := make([]Group, len(supervisors))
	for i := range supervisors {
		sup := supervisors[i]
		groups[i] = Group{Supervisor: &sup}
	}

	var orphans []model.AssignmentRecord
	for _, agent := range agents {
		idx := linkAgent(agent, supervisors)
		if idx < 0 {
			orphans = append(orphans, agent)
			continue
		}
		groups[idx].Agents = append(groups[idx].Agents, agent)
	}

	if len(orphans) > 0 {
		groups = append(groups, Group{Agents: orphans})
	}
	return groups
}

// linkRule extracts the supervisor reference an agent record carries under
// one particular field. Empty means the rule does not apply.
type linkRule func(model.AssignmentRecord) string

var linkPolicy = []linkRule{
	func(a model.AssignmentRecord) string { return zoneField(a, func(z *model.ZoneRef) string { return z.SupervisorID }) },
	func(a model.AssignmentRecord) string { return zoneField(a, func(z *model.ZoneRef) string { return z.AgentID }) },
	func(a model.AssignmentRecord) string { return zoneField(a, func(z *model.ZoneRef) string { return z.UserID }) },
	func(a model.AssignmentRecord) string { return a.AssignedTo },
	func(a model.AssignmentRecord) string { return a.SupervisorID },
}

func zoneField(a model.AssignmentRecord, f func(*model.ZoneRef) string) string {
	if a.Zone == nil {
		return ""
	}
	return f(a.Zone)
}

// linkAgent returns the index of the supervisor the agent belongs to, or -1.
func linkAgent(agent model.AssignmentRecord, supervisors []model.AssignmentRecord) int {
	for _, rule := range linkPolicy {
		ref := rule(agent)
		if ref == "" {
			continue
		}
		for i := range supervisors {
			if supervisorMatches(supervisors[i], ref) {
				return i
			}
		}
	}
	// last resort: shared zone membership
	if agent.Zone != nil && agent.Zone.ID != "" {
		for i := range supervisors {
			if supervisors[i].Zone != nil && supervisors[i].Zone.ID == agent.Zone.ID {
				return i
			}
		}
	}
	return -1
}

// supervisorMatches reports whether ref names the supervisor under any of
// its identifier variants.
func supervisorMatches(sup model.AssignmentRecord, ref string) bool {
	for _, extract := range identifierPolicy {
		if v := extract(sup); v != "" && v == ref {
			return true
		}
	}
	return false
}
