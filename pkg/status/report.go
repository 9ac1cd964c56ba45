package status

// Report is the diagnostics snapshot served to operators.
type Report struct {
	State          string `json:"state"`
	StateSinceMs   uint64 `json:"state_since_ms"`
	Scenario       string `json:"scenario"`
	Diagnostic     string `json:"diagnostic,omitempty"`
	Failures       int    `json:"consecutive_failures"`
	LastReasonCode int    `json:"last_reason_code"`
	LastReason     string `json:"last_reason,omitempty"`
	Freshness      string `json:"freshness"`
	LastFetchAgeMs int64  `json:"last_fetch_age_ms"` // -1 when never fetched
	NetworkAlive   bool   `json:"network_alive"`
	HeartbeatAgeMs uint64 `json:"heartbeat_age_ms"`
	Clock          string `json:"clock,omitempty"`
	Coordinates    bool   `json:"coordinates_known"`
	SunsetMinutes  int    `json:"sunset_minutes"`
	SunsetActive   bool   `json:"sunset_window_active"`
	SunsetShown    bool   `json:"sunset_shown_today"`
	Indicator      string `json:"indicator"`
	ResetRequested bool   `json:"reset_requested"`
}
