package gateway

import (
	"testing"
	"time"

	"gridpulse/internal/events"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name         string
		topic        string
		wantDevice   string
		wantCategory string
		wantErr      bool
	}{
		{"energy topic", "telemetry/energy/meter-1", "meter-1", events.CategoryEnergy, false},
		{"carbon topic", "telemetry/carbon/sensor-7", "sensor-7", events.CategoryCarbon, false},
		{"status topic", "device/status/meter-1", "meter-1", events.CategoryStatus, false},
		{"unknown prefix", "commands/energy/meter-1", "", "", true},
		{"unknown category", "telemetry/water/meter-1", "", "", true},
		{"missing device id", "telemetry/energy/", "", "", true},
		{"too many segments", "telemetry/energy/meter-1/extra", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, category, err := parseTopic(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
			if device != tt.wantDevice || category != tt.wantCategory {
				t.Errorf("parseTopic(%q) = (%q, %q), want (%q, %q)",
					tt.topic, device, category, tt.wantDevice, tt.wantCategory)
			}
		})
	}
}

func TestExtractTimestamp(t *testing.T) {
	t.Run("unix seconds", func(t *testing.T) {
		fields := map[string]any{"timestamp": 1767225600.0, "power": 5000.0}
		ts, err := extractTimestamp(fields)
		if err != nil {
			t.Fatalf("extractTimestamp() error = %v", err)
		}
		if ts.Unix() != 1767225600 {
			t.Errorf("extractTimestamp() = %v, want unix 1767225600", ts)
		}
		if _, ok := fields["timestamp"]; ok {
			t.Error("timestamp field not removed from payload")
		}
	})

	t.Run("unix milliseconds", func(t *testing.T) {
		ts, err := extractTimestamp(map[string]any{"timestamp": 1767225600123.0})
		if err != nil {
			t.Fatalf("extractTimestamp() error = %v", err)
		}
		if ts.UnixMilli() != 1767225600123 {
			t.Errorf("extractTimestamp() = %v, want unix milli 1767225600123", ts)
		}
	})

	t.Run("rfc3339", func(t *testing.T) {
		ts, err := extractTimestamp(map[string]any{"timestamp": "2026-03-01T14:00:00+02:00"})
		if err != nil {
			t.Fatalf("extractTimestamp() error = %v", err)
		}
		want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		if !ts.Equal(want) || ts.Location() != time.UTC {
			t.Errorf("extractTimestamp() = %v, want %v in UTC", ts, want)
		}
	})

	t.Run("missing defaults to now", func(t *testing.T) {
		before := time.Now().UTC()
		ts, err := extractTimestamp(map[string]any{"power": 5000.0})
		if err != nil {
			t.Fatalf("extractTimestamp() error = %v", err)
		}
		if ts.Before(before) || ts.After(time.Now().UTC()) {
			t.Errorf("extractTimestamp() = %v, want arrival time", ts)
		}
	})

	t.Run("unparseable string", func(t *testing.T) {
		if _, err := extractTimestamp(map[string]any{"timestamp": "yesterday"}); err == nil {
			t.Fatal("extractTimestamp() expected error for unparseable string")
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		if _, err := extractTimestamp(map[string]any{"timestamp": true}); err == nil {
			t.Fatal("extractTimestamp() expected error for boolean timestamp")
		}
	})
}

func TestDecodeMessage(t *testing.T) {
	t.Run("valid message", func(t *testing.T) {
		rec, err := decodeMessage("telemetry/energy/meter-1",
			[]byte(`{"power":5200,"voltage":231.4,"timestamp":1767225600}`))
		if err != nil {
			t.Fatalf("decodeMessage() error = %v", err)
		}
		if rec.DeviceID != "meter-1" || rec.Category != events.CategoryEnergy {
			t.Errorf("decodeMessage() = (%q, %q), want (meter-1, energy)", rec.DeviceID, rec.Category)
		}
		if rec.Fields["power"] != 5200.0 {
			t.Errorf("decodeMessage() power = %v, want 5200", rec.Fields["power"])
		}
	})

	t.Run("not a json object", func(t *testing.T) {
		if _, err := decodeMessage("telemetry/energy/meter-1", []byte(`[1,2,3]`)); err == nil {
			t.Fatal("decodeMessage() expected error for JSON array payload")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := decodeMessage("telemetry/energy/meter-1", []byte(`{garbage`)); err == nil {
			t.Fatal("decodeMessage() expected error for invalid JSON")
		}
	})

	t.Run("bad topic", func(t *testing.T) {
		if _, err := decodeMessage("other/topic", []byte(`{}`)); err == nil {
			t.Fatal("decodeMessage() expected error for unknown topic")
		}
	})
}
