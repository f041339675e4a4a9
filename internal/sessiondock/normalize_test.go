package sessiondock

import (
	"testing"
	"time"
)

func TestNormalizeRecordValidSession(t *testing.T) {
	raw := []byte(`1700000000000{"me":{"id":"1234567890@s.whatsapp.net","name":"Alice"}}`)
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record := NormalizeRecord("alice.json", raw, modified)

	if !record.Valid {
		t.Fatalf("expected valid record, got %+v", record)
	}
	if record.ID != "alice" {
		t.Fatalf("expected id alice, got %q", record.ID)
	}
	if record.Filename != "alice.json" {
		t.Fatalf("expected filename alice.json, got %q", record.Filename)
	}
	if record.DisplayName != "Alice" {
		t.Fatalf("expected name Alice, got %q", record.DisplayName)
	}
	if record.Number != "1234567890" {
		t.Fatalf("expected number 1234567890, got %q", record.Number)
	}
	if record.Timestamp != modified.UnixMilli() {
		t.Fatalf("expected timestamp %d, got %d", modified.UnixMilli(), record.Timestamp)
	}
}

func TestNormalizeRecordWithoutPrefix(t *testing.T) {
	raw := []byte(`  {"me":{"id":"49170111222@c.us","name":"Bob"}}  `)

	record := NormalizeRecord("bob.json", raw, time.Now())

	if !record.Valid {
		t.Fatalf("expected valid record, got %+v", record)
	}
	if record.Number != "49170111222" {
		t.Fatalf("expected number 49170111222, got %q", record.Number)
	}
}

func TestNormalizeRecordDigitRunBoundaries(t *testing.T) {
	// Nine digits are part of the document, not a tag.
	record := NormalizeRecord("short.json", []byte(`123456789`), time.Now())
	if record.DisplayName != DisplayNameCorrupted {
		t.Fatalf("expected corrupted record for bare digit document, got %+v", record)
	}

	// Sixteen digits exceed the tag range and stay attached, so the
	// document no longer parses.
	record = NormalizeRecord("long.json", []byte(`1234567890123456{"me":{"id":"1@s","name":"X"}}`), time.Now())
	if record.DisplayName != DisplayNameCorrupted {
		t.Fatalf("expected corrupted record for 16 digit prefix, got %+v", record)
	}

	// Ten digits are the shortest recognized tag.
	record = NormalizeRecord("ten.json", []byte(`1234567890{"me":{"id":"55@s","name":"Y"}}`), time.Now())
	if !record.Valid {
		t.Fatalf("expected 10 digit prefix to be stripped, got %+v", record)
	}
}

func TestNormalizeRecordCorrupted(t *testing.T) {
	record := NormalizeRecord("broken.json", []byte("not json"), time.Now())

	if record.Valid {
		t.Fatalf("corrupted record marked valid: %+v", record)
	}
	if record.DisplayName != DisplayNameCorrupted {
		t.Fatalf("expected name %q, got %q", DisplayNameCorrupted, record.DisplayName)
	}
	if record.Number != NumberUnavailable {
		t.Fatalf("expected number %q, got %q", NumberUnavailable, record.Number)
	}
	if record.Timestamp != 0 {
		t.Fatalf("expected zero timestamp, got %d", record.Timestamp)
	}
	if record.Payload == nil || len(record.Payload) != 0 {
		t.Fatalf("expected empty payload, got %v", record.Payload)
	}
}

func TestNormalizeRecordNonObjectJSON(t *testing.T) {
	record := NormalizeRecord("list.json", []byte(`[1,2,3]`), time.Now())
	if record.DisplayName != DisplayNameCorrupted {
		t.Fatalf("expected corrupted record for non-object document, got %+v", record)
	}
}

func TestNormalizeRecordMissingIdentity(t *testing.T) {
	modified := time.Now()

	record := NormalizeRecord("noname.json", []byte(`{"me":{"id":"777@s"}}`), modified)
	if record.Valid {
		t.Fatalf("record without name marked valid: %+v", record)
	}
	if record.DisplayName != DisplayNameUnknown {
		t.Fatalf("expected name %q, got %q", DisplayNameUnknown, record.DisplayName)
	}
	if record.Number != "777" {
		t.Fatalf("expected number 777, got %q", record.Number)
	}

	record = NormalizeRecord("noid.json", []byte(`{"me":{"name":"Carol"}}`), modified)
	if record.Valid {
		t.Fatalf("record without id marked valid: %+v", record)
	}
	if record.Number != NumberUnavailable {
		t.Fatalf("expected number %q, got %q", NumberUnavailable, record.Number)
	}
	if record.DisplayName != "Carol" {
		t.Fatalf("expected name Carol, got %q", record.DisplayName)
	}
	if record.Timestamp != modified.UnixMilli() {
		t.Fatalf("parseable record should keep its timestamp, got %d", record.Timestamp)
	}
}

func TestNormalizeRecordKeepsIdentifierWithoutSuffix(t *testing.T) {
	record := NormalizeRecord("upload.bin", []byte("{}"), time.Now())
	if record.ID != "upload.bin" {
		t.Fatalf("expected id upload.bin, got %q", record.ID)
	}
	if record.Filename != "upload.bin" {
		t.Fatalf("expected filename upload.bin, got %q", record.Filename)
	}
}
