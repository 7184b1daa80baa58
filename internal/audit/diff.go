package audit

import (
	"encoding/json"
	"reflect"
	"sort"
	"time"
)

// CalculateChanges computes the minimal field-level diff between two record
// snapshots.
//
// Rules:
//   - if either snapshot is absent there is no diff (CREATE and DELETE store
//     a single snapshot, never a diff)
//   - excluded fields are skipped entirely and can never produce a change
//   - a field appears in the result if and only if its raw values differ
//     under deep structural equality
//   - masked fields carry masked tokens on both sides of the pair; the
//     presence of a change is decided on the raw values, so it is recorded
//     even when both sides mask to the same token
//   - nil is returned when no field differed, so an update with no effective
//     change produces no diff object
func CalculateChanges(oldValues, newValues map[string]any) map[string]Change {
	if oldValues == nil || newValues == nil {
		return nil
	}

	changes := make(map[string]Change)
	for _, field := range unionFields(oldValues, newValues) {
		if isExcludedField(field) {
			continue
		}
		oldValue, newValue := oldValues[field], newValues[field]
		if valuesEqual(oldValue, newValue) {
			continue
		}
		if isMaskedField(field) {
			changes[field] = Change{Old: MaskValue(oldValue), New: MaskValue(newValue)}
			continue
		}
		changes[field] = Change{Old: oldValue, New: newValue}
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}

func unionFields(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for field := range a {
		seen[field] = true
	}
	for field := range b {
		seen[field] = true
	}
	fields := make([]string, 0, len(seen))
	for field := range seen {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// valuesEqual is deep structural equality over the JSON-ish values records
// carry: strings, numbers, bools, times, nested maps and slices. Numbers
// compare numerically across int/float/json.Number so a value that
// round-tripped through JSON still compares equal to its original. Times
// compare by instant.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		return bok && at.Equal(bt)
	}

	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ave := range av {
			bve, present := bv[k]
			if !present || !valuesEqual(ave, bve) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
