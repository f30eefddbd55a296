package alert

import "fmt"

// Event names an alert trigger.
const (
	EventAnomaly         = "anomaly"
	EventLogWriteFailure = "log_write_failure"
	EventSchemaDrift     = "schema_drift"
)

// Payload formats.
const (
	FormatGeneric   = "generic"
	FormatSlack     = "slack"
	FormatPagerDuty = "pagerduty"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["anomaly", "log_write_failure", "schema_drift"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Validate rejects unknown formats and event names.
func (c AlertConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("alert url is required")
	}
	switch c.Format {
	case "", FormatGeneric, FormatSlack, FormatPagerDuty:
	default:
		return fmt.Errorf("alert %s: unknown format %q", c.URL, c.Format)
	}
	for _, e := range c.Events {
		switch e {
		case EventAnomaly, EventLogWriteFailure, EventSchemaDrift:
		default:
			return fmt.Errorf("alert %s: unknown event %q", c.URL, e)
		}
	}
	return nil
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	RiskScore string `json:"risk_score,omitempty"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	LogPath   string `json:"log_path,omitempty"`
}
