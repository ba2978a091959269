// Package schema validates decoded telemetry against the device type schema
// published by the device registry.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gridpulse/internal/events"
	"gridpulse/internal/registry"
)

// Field types a device type schema may declare.
const (
	FieldNumber  = "number"
	FieldString  = "string"
	FieldBoolean = "boolean"
)

// ValidationError reports why a reading does not conform to its device type
// schema. It is distinct from registry lookup failures: a ValidationError
// means the payload itself is malformed.
type ValidationError struct {
	DeviceID string
	Issues   []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload from device %s: %s", e.DeviceID, strings.Join(e.Issues, "; "))
}

// Validator checks telemetry readings against their device type schema.
type Validator struct {
	registry registry.DeviceRegistry
}

// NewValidator creates a validator backed by the given device registry.
func NewValidator(reg registry.DeviceRegistry) *Validator {
	return &Validator{registry: reg}
}

// Validate checks the reading against its device's schema and normalizes it
// in place: the timestamp is converted to UTC. Required fields must be
// present with the declared scalar type, optional fields are type-checked
// when present, and unknown extra fields pass through untouched.
//
// A *ValidationError means the payload is malformed. Any other error means
// the schema could not be resolved and the reading's validity is unknown.
func (v *Validator) Validate(ctx context.Context, rec *events.TelemetryRecord) error {
	schema, err := v.registry.GetDeviceSchema(ctx, rec.DeviceID)
	if err != nil {
		return fmt.Errorf("schema lookup failed: %w", err)
	}

	var issues []string
	for _, field := range sortedKeys(schema.RequiredFields) {
		want := schema.RequiredFields[field]
		value, ok := rec.Fields[field]
		if !ok {
			issues = append(issues, fmt.Sprintf("missing required field %q", field))
			continue
		}
		if !typeMatches(value, want) {
			issues = append(issues, fmt.Sprintf("field %q must be %s", field, want))
		}
	}
	for _, field := range sortedKeys(schema.OptionalFields) {
		want := schema.OptionalFields[field]
		if value, ok := rec.Fields[field]; ok && !typeMatches(value, want) {
			issues = append(issues, fmt.Sprintf("field %q must be %s", field, want))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{DeviceID: rec.DeviceID, Issues: issues}
	}

	rec.Timestamp = rec.Timestamp.UTC()
	return nil
}

func typeMatches(value any, want string) bool {
	switch want {
	case FieldNumber:
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case FieldString:
		_, ok := value.(string)
		return ok
	case FieldBoolean:
		_, ok := value.(bool)
		return ok
	default:
		// Unknown declared type: accept anything rather than reject
		// telemetry over a registry schema we cannot interpret.
		return true
	}
}

// sortedKeys keeps issue ordering deterministic for logs and alert snapshots.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
