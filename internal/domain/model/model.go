// Package model contains domain models passed between layers.
package model

import "time"

// Role classifies a tracked person within an event.
type Role string

// Role values derived from assignment records.
const (
	RoleAgent      Role = "agent"
	RoleSupervisor Role = "supervisor"
)

// Assignment role values as delivered by the roster API.
const (
	AssignmentRolePrimary    = "primary"
	AssignmentRoleBackup     = "backup"
	AssignmentRoleSupervisor = "supervisor"
)

// Assignment status values that participate in tracking.
const (
	AssignmentStatusConfirmed = "confirmed"
	AssignmentStatusPending   = "pending"
)

// MovingSpeedThreshold is the speed in m/s above which an entity counts as moving.
// The boundary value itself is not moving.
const MovingSpeedThreshold = 0.5

// LowBatteryThreshold is the battery percentage below which an entity counts as low.
const LowBatteryThreshold = 20

// LivePosition is one inbound position report from the feed. Optional fields
// are pointers; nil means the device did not report them. A position is
// superseded by the next report for the same entity.
type LivePosition struct {
	EntityID  string    `json:"entityId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`     // meters
	Speed     *float64  `json:"speed,omitempty"`        // m/s
	Battery   *int      `json:"batteryLevel,omitempty"` // 0..100
	Timestamp time.Time `json:"timestamp"`
}

// Moving reports whether the entity is moving. Unknown speed counts as stopped.
func (p LivePosition) Moving() bool {
	return p.Speed != nil && *p.Speed > MovingSpeedThreshold
}

// BatteryLow reports whether the battery is known and below the low threshold.
func (p LivePosition) BatteryLow() bool {
	return p.Battery != nil && *p.Battery < LowBatteryThreshold
}

// TrailPoint is one historical coordinate in an entity's trail.
type TrailPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TrackedEntity is the live state kept for one person while a tracking
// session is open. Position is authoritative (the latest raw report);
// Displayed is the animation-smoothed coordinate for rendering only.
type TrackedEntity struct {
	EntityID     string       `json:"entityId"`
	Role         Role         `json:"role"`
	DisplayName  string       `json:"displayName"`
	Position     LivePosition `json:"position"`
	Displayed    TrailPoint   `json:"displayed"`
	Moving       bool         `json:"moving"`
	Trail        []TrailPoint `json:"trail"`
	LastUpdateAt time.Time    `json:"lastUpdateAt"`
}

// EventScope is the currently selected event. All tracked entities belong to
// exactly one scope at a time. Center coordinates are nil when the event has
// no configured location; GeofenceRadiusMeters of zero means no geofence.
type EventScope struct {
	EventID              string   `json:"eventId"`
	Latitude             *float64 `json:"latitude,omitempty"`
	Longitude            *float64 `json:"longitude,omitempty"`
	GeofenceRadiusMeters float64  `json:"geofenceRadiusMeters,omitempty"`
}

// HasCenter reports whether the scope carries a usable center coordinate.
func (s EventScope) HasCenter() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// PersonRef carries the identifier variants under which a person may appear
// in the feed. The feed is configured per deployment to emit either the
// stable person id, a national-ID-style string, or a generic user id.
type PersonRef struct {
	ID         string `json:"id"`
	NationalID string `json:"nationalId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	FullName   string `json:"fullName,omitempty"`
}

// ZoneRef is the zone attached to an assignment, when any. The linking
// fields are best-effort and may be simultaneously present.
type ZoneRef struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	SupervisorID string `json:"supervisorId,omitempty"`
	AgentID      string `json:"agentId,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

// AssignmentRecord is one roster row fetched from the backend, read-only
// from the engine's perspective.
type AssignmentRecord struct {
	AssignmentID string    `json:"assignmentId"`
	EventID      string    `json:"eventId"`
	Person       PersonRef `json:"person"`
	Role         string    `json:"role"`   // primary | backup | supervisor
	Status       string    `json:"status"` // confirmed | pending | ...
	Zone         *ZoneRef  `json:"zone,omitempty"`
	AssignedTo   string    `json:"assignedTo,omitempty"`
	SupervisorID string    `json:"supervisorId,omitempty"`
}

// Trackable reports whether the assignment participates in live tracking.
// Only confirmed or pending assignments gate messages into the store.
func (a AssignmentRecord) Trackable() bool {
	return a.Status == AssignmentStatusConfirmed || a.Status == AssignmentStatusPending
}

// TrackedRole maps the assignment role onto the tracked entity role.
func (a AssignmentRecord) TrackedRole() Role {
	if a.Role == AssignmentRoleSupervisor {
		return RoleSupervisor
	}
	return RoleAgent
}
