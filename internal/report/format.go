package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatText renders a Summary for the terminal.
func FormatText(s Summary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Decisions: %d | Anomalies: %d | Normal: %d | Rate: %.2f%%\n",
		s.Total, s.Anomalies, s.Normal, s.AnomalyRate))
	if len(s.Recent) == 0 {
		b.WriteString("No decisions logged.\n")
		return b.String()
	}

	b.WriteString(separator + "\n")
	for _, r := range s.Recent {
		flag := "normal"
		if r.Get("anomaly") == "1" {
			flag = "ANOMALY"
		}
		id := r.Get("session_id")
		if id == "" {
			id = "-"
		}
		b.WriteString(fmt.Sprintf("%-28s %-8s %s\n", r.Get("timestamp"), flag, truncate(id, 40)))
	}
	b.WriteString(separator + "\n")
	b.WriteString(fmt.Sprintf("Showing last %d of %d\n", len(s.Recent), s.Total))
	return b.String()
}

// FormatJSON renders a Summary as indented JSON.
func FormatJSON(s Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return string(data), nil
}

// WriteSummaryCSV writes the metric,value report served as the summary
// download.
func WriteSummaryCSV(w io.Writer, s Summary) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"metric", "value"},
		{"total", strconv.Itoa(s.Total)},
		{"anomalies", strconv.Itoa(s.Anomalies)},
		{"normal", strconv.Itoa(s.Normal)},
		{"anomaly_rate", strconv.FormatFloat(s.AnomalyRate, 'f', 2, 64)},
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write summary csv: %w", err)
	}
	return nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
