package feedsim

import "time"

// Config holds configuration for the feed simulator
type Config struct {
	Addr         string        // Listen address for the websocket feed
	EventID      string        // Event the simulated fleet reports under
	NumAgents    int           // Number of simulated agents
	MoveInterval time.Duration // Delay between position frames per agent
	CenterLat    float64       // Latitude of the patrol area center
	CenterLng    float64       // Longitude of the patrol area center
	WanderMeters float64       // Radius of the patrol area
	EngineURL    string        // Optional engine base URL for verification
	Timeout      time.Duration // HTTP request timeout for verification
	LogFile      string        // Log file for simulator output
	Verbose      bool          // Enable verbose logging
}

// frame is the JSON envelope exchanged with feed subscribers. Unused fields
// stay empty; Type discriminates.
type frame struct {
	Type string `json:"type"`

	// auth / subscribe (inbound)
	SubjectID string `json:"subjectId,omitempty"`
	Role      string `json:"role,omitempty"`
	EventID   string `json:"eventId,omitempty"`

	// auth_ack / error (outbound)
	OK      *bool  `json:"ok,omitempty"`
	Message string `json:"message,omitempty"`

	// position payloads (outbound)
	Position  *framePosition  `json:"position,omitempty"`
	Positions []framePosition `json:"positions,omitempty"`
}

// framePosition is the outbound position shape.
type framePosition struct {
	EntityID  string   `json:"entityId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Battery   *int     `json:"batteryLevel,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Stats holds simulation statistics
type Stats struct {
	AgentsSimulated  int
	FramesBroadcast  int64
	SubscribersSeen  int64
	EntitiesVerified int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
