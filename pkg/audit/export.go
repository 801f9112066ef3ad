package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

func exportJSON(entries []*Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}

func exportNDJSON(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID", "Timestamp", "Outcome",
		"UserID", "TokenID",
		"Permission", "TenantID", "ProjectID",
		"Endpoint", "Method", "IPAddress", "UserAgent", "RequestID",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		projectID := ""
		if entry.ProjectID != nil {
			projectID = *entry.ProjectID
		}
		row := []string{
			strconv.FormatInt(entry.ID, 10),
			entry.Timestamp.Format(time.RFC3339),
			string(entry.Outcome),
			entry.UserID,
			entry.TokenID,
			entry.Permission,
			entry.TenantID,
			projectID,
			entry.Endpoint,
			entry.Method,
			entry.IPAddress,
			entry.UserAgent,
			entry.RequestID,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}
