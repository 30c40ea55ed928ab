package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL          string        // Base URL of the service
	Users            int           // Number of simulated users
	EventsPerUser    int           // Interactions submitted per user
	Workers          int           // Number of concurrent HTTP workers
	Timeout          time.Duration // HTTP request timeout
	SettleTimeout    time.Duration // How long to wait for the workers to record everything
	Limit            int           // Recommendations requested per user
	HistoryLimit     int           // Expected browsing history cap
	InteractionLimit int           // Expected interaction log cap
	OutputFile       string        // Optional JSON dump of the generated events
	Verbose          bool          // Enable verbose logging
}

// Event is one interaction submitted on behalf of a user.
type Event struct {
	UserID  string `json:"-"`
	EventID string `json:"event_id"`
	ItemID  string `json:"item_id"`
	Action  string `json:"action"`
	TS      string `json:"ts"`
}

// AckResponse represents the response from interaction submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"event_id"`
}

// Profile mirrors the profile returned by the API.
type Profile struct {
	Interests           []string       `json:"interests"`
	BrowsingHistory     []string       `json:"browsingHistory"`
	Interactions        []Interaction  `json:"interactions"`
	SessionCount        int            `json:"sessionCount"`
	LastVisitTimestamp  int64          `json:"lastVisitTimestamp"`
	CategoryPreferences map[string]int `json:"categoryPreferences"`
}

// Interaction mirrors one entry of a profile's interaction log.
type Interaction struct {
	ItemID    string `json:"itemId"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// Recommendation mirrors one ranked item returned by the API.
type Recommendation struct {
	ItemID  string   `json:"itemId"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

type recommendationsResponse struct {
	UserID          string           `json:"userId"`
	Recommendations []Recommendation `json:"recommendations"`
}

type catalogResponse struct {
	Items []struct {
		ID       string `json:"id"`
		Category string `json:"category"`
	} `json:"items"`
}

// Stats holds run statistics.
type Stats struct {
	SessionsStarted  int
	EventsGenerated  int
	EventsSubmitted  int
	EventsAccepted   int
	EventsDuplicate  int
	EventsFailed     int
	ProfilesVerified int
	Violations       int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
