// Package conditions implements the alert rule condition expression: an
// ordered list of field comparisons evaluated as a conjunction. Expressions
// are parsed once when rules are loaded, not per evaluation.
package conditions

import (
	"encoding/json"
	"fmt"
)

// Comparison operators supported in rule conditions.
const (
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpEqual        = "=="
	OpNotEqual     = "!="
)

// Condition is a single field comparison against a numeric threshold.
type Condition struct {
	Field     string  `json:"field"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// Expression is a parsed conjunction of conditions.
type Expression struct {
	conditions []Condition
}

// Parse decodes and validates a JSON conditions blob into an Expression.
// The blob is a JSON array of {field, operator, threshold} objects.
func Parse(raw []byte) (*Expression, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("conditions cannot be empty")
	}

	var conds []Condition
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, fmt.Errorf("failed to decode conditions: %w", err)
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("conditions cannot be empty")
	}

	for i, c := range conds {
		if c.Field == "" {
			return nil, fmt.Errorf("condition %d: field cannot be empty", i)
		}
		if !isValidOperator(c.Operator) {
			return nil, fmt.Errorf("condition %d: unknown operator %q", i, c.Operator)
		}
	}

	return &Expression{conditions: conds}, nil
}

// isValidOperator reports whether op is a supported comparison operator.
func isValidOperator(op string) bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Len returns the number of conditions in the expression.
func (e *Expression) Len() int {
	return len(e.conditions)
}

// Conditions returns a copy of the parsed conditions.
func (e *Expression) Conditions() []Condition {
	out := make([]Condition, len(e.conditions))
	copy(out, e.conditions)
	return out
}

// Evaluate applies every condition against the record fields and returns true
// only if all of them hold. A condition whose field is absent from the
// payload makes the whole expression non-matching; that is not an error.
// A field present with a non-numeric value is an evaluation error.
func (e *Expression) Evaluate(fields map[string]any) (bool, error) {
	for _, c := range e.conditions {
		raw, ok := fields[c.Field]
		if !ok {
			return false, nil
		}

		value, ok := toFloat(raw)
		if !ok {
			return false, fmt.Errorf("field %q has non-numeric value %T", c.Field, raw)
		}

		if !compare(value, c.Operator, c.Threshold) {
			return false, nil
		}
	}
	return true, nil
}

// compare applies a single comparison. Equality is exact on float64: both
// sides come through the same JSON decoding path, so identical readings
// compare equal.
func compare(value float64, op string, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	}
	return false
}

// toFloat converts the scalar types produced by JSON decoding to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
