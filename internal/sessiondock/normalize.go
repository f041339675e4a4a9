package sessiondock

import (
	"encoding/json"
	"strings"
	"time"
)

// Sentinel display values reported in place of missing or unparseable data.
const (
	DisplayNameUnknown   = "Unknown"
	DisplayNameCorrupted = "Corrupted"
	NumberUnavailable    = "N/A"
)

// SessionRecord is the derived view of one stored blob. It is recomputed on
// every listing and never persisted; wire names match what dashboards expect.
type SessionRecord struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	DisplayName string         `json:"name"`
	Number      string         `json:"number"`
	Valid       bool           `json:"valid"`
	Timestamp   int64          `json:"timestamp"`
	Payload     map[string]any `json:"data"`
}

// NormalizeRecord turns raw blob bytes into a SessionRecord. It never fails:
// a payload that does not parse as a JSON object comes back as a Corrupted
// record with a zero timestamp and an empty payload.
//
// Some producers prepend a 10-15 digit numeric tag to the document; it
// carries no meaning and is stripped before parsing. Shorter or longer digit
// runs are part of the document and left alone.
func NormalizeRecord(identifier string, raw []byte, lastModified time.Time) SessionRecord {
	record := SessionRecord{
		ID:       strings.TrimSuffix(identifier, SessionFileSuffix),
		Filename: identifier,
	}

	text := stripDigitPrefix(strings.TrimSpace(string(raw)))
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil || payload == nil {
		record.DisplayName = DisplayNameCorrupted
		record.Number = NumberUnavailable
		record.Payload = map[string]any{}
		return record
	}

	record.Payload = payload
	record.Timestamp = lastModified.UnixMilli()

	identityID := nestedString(payload, "me", "id")
	identityName := nestedString(payload, "me", "name")
	record.Valid = identityID != "" && identityName != ""

	if identityName != "" {
		record.DisplayName = identityName
	} else {
		record.DisplayName = DisplayNameUnknown
	}
	if identityID != "" {
		record.Number = identityID
		if at := strings.Index(identityID, "@"); at >= 0 {
			record.Number = identityID[:at]
		}
	} else {
		record.Number = NumberUnavailable
	}
	return record
}

func stripDigitPrefix(text string) string {
	run := 0
	for run < len(text) && text[run] >= '0' && text[run] <= '9' {
		run++
	}
	if run < 10 || run > 15 {
		return text
	}
	return text[run:]
}

func nestedString(payload map[string]any, keys ...string) string {
	var current any = payload
	for _, key := range keys {
		object, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = object[key]
	}
	value, _ := current.(string)
	return value
}
