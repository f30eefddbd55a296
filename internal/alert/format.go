package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case FormatSlack:
		return formatSlack(event)
	case FormatPagerDuty:
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Event:* %s", event.Event)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Message:* %s", event.Message)},
	}
	if event.SessionID != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", event.SessionID)})
	}
	if event.Detail != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Detail:* %s", event.Detail)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("sessionwatch: %s", event.Event),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("sessionwatch %s: %s", event.Event, event.Message),
			"severity": severityFor(event.Event),
			"source":   "sessionwatch",
			"custom_details": map[string]any{
				"request_id": event.RequestID,
				"session_id": event.SessionID,
				"risk_score": event.RiskScore,
				"detail":     event.Detail,
				"log_path":   event.LogPath,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(event string) string {
	switch event {
	case EventLogWriteFailure:
		return "error"
	case EventAnomaly:
		return "warning"
	default:
		return "info"
	}
}
