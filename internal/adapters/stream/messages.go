package stream

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vigilops/livetrack/internal/domain/model"
)

// Control frame types exchanged with the feed.
const (
	msgAuth      = "auth"
	msgAuthAck   = "auth_ack"
	msgSubscribe = "subscribe"
	msgSnapshot  = "snapshot"
	msgPosition  = "position"
	msgError     = "error"
)

// envelope is the single JSON frame shape used in both directions. Unused
// fields stay empty; Type discriminates.
type envelope struct {
	Type string `json:"type"`

	// auth / subscribe (outbound)
	SubjectID string `json:"subjectId,omitempty"`
	Role      string `json:"role,omitempty"`
	EventID   string `json:"eventId,omitempty"`

	// auth_ack / error (inbound)
	OK      *bool  `json:"ok,omitempty"`
	Message string `json:"message,omitempty"`

	// position payloads (inbound)
	Position  *wirePosition  `json:"position,omitempty"`
	Positions []wirePosition `json:"positions,omitempty"`
}

// wirePosition is the inbound position shape. Coordinates are pointers so a
// missing field is distinguishable from zero: a report without a fix must
// never be coerced to (0,0) and rendered off the African coast.
type wirePosition struct {
	EntityID  string   `json:"entityId" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Battery   *int     `json:"batteryLevel,omitempty" validate:"omitempty,gte=0,lte=100"`
	Timestamp string   `json:"timestamp" validate:"required"`
}

// toModel validates and converts one wire frame. Malformed frames return an
// error and are dropped by the caller; they never reach the store.
func (w wirePosition) toModel(validate *validator.Validate) (model.LivePosition, error) {
	if err := validate.Struct(w); err != nil {
		return model.LivePosition{}, fmt.Errorf("invalid position frame: %w", err)
	}
	if !isFinite(*w.Latitude) || !isFinite(*w.Longitude) {
		return model.LivePosition{}, fmt.Errorf("non-finite coordinates for %q", w.EntityID)
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return model.LivePosition{}, fmt.Errorf("invalid timestamp %q: %w", w.Timestamp, err)
	}
	return model.LivePosition{
		EntityID:  w.EntityID,
		Latitude:  *w.Latitude,
		Longitude: *w.Longitude,
		Accuracy:  w.Accuracy,
		Speed:     w.Speed,
		Battery:   w.Battery,
		Timestamp: ts,
	}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
