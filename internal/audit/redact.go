package audit

import (
	"strconv"
	"strings"
)

// Redaction rule tables. Matching is a case-insensitive substring check over
// the normalized field name (lowercased, separators stripped), so
// "PasswordHash", "password_hash" and "api-key" all match. The lists live
// here as data, not as scattered string checks; substring semantics mean
// collisions are possible (e.g. "pin" matches "shipping"), so additions must
// come with a test.
var (
	// excludeRules: fields that never appear in any snapshot or diff.
	excludeRules = []string{
		"password",
		"secret",
		"token",
		"apikey",
		"privatekey",
		"credential",
	}

	// maskRules: fields whose values are hidden while the presence of a
	// change stays visible.
	maskRules = []string{
		"bankaccount",
		"accountnumber",
		"sortcode",
		"nationalinsurance",
		"nino",
		"taxcode",
		"salary",
		"ssn",
		"cardnumber",
		"cvv",
		"pin",
		"dateofbirth",
		"dob",
		"iban",
	}
)

const (
	maskedEmpty = "[EMPTY]"
	maskedFull  = "[MASKED]"
)

func normalizeFieldName(field string) string {
	field = strings.ToLower(field)
	field = strings.ReplaceAll(field, "_", "")
	field = strings.ReplaceAll(field, "-", "")
	field = strings.ReplaceAll(field, " ", "")
	return field
}

func matchesAny(field string, rules []string) bool {
	normalized := normalizeFieldName(field)
	for _, rule := range rules {
		if strings.Contains(normalized, rule) {
			return true
		}
	}
	return false
}

func isExcludedField(field string) bool { return matchesAny(field, excludeRules) }
func isMaskedField(field string) bool   { return matchesAny(field, maskRules) }

// MaskValue partially obfuscates a sensitive value while still indicating
// that a value exists:
//
//	nil             -> "[EMPTY]"
//	string <=4 runes -> "****"
//	string >4 runes  -> first 2 runes + "****" + last 2 runes
//	int/uint/float  -> rendered with strconv, then the string rule
//	anything else   -> "[MASKED]"
//
// Numbers go through the length rule (rather than collapsing to "[MASKED]")
// so a salary change still shows its magnitude class without the amount.
func MaskValue(v any) string {
	if v == nil {
		return maskedEmpty
	}
	if s, ok := stringify(v); ok {
		return maskString(s)
	}
	return maskedFull
}

func maskString(s string) string {
	// Length and slicing are in runes so multibyte values mask to valid
	// UTF-8.
	runes := []rune(s)
	if len(runes) <= 4 {
		return "****"
	}
	return string(runes[:2]) + "****" + string(runes[len(runes)-2:])
}

// stringify renders strings and numbers to their canonical string form.
// Everything else reports false and masks fully.
func stringify(v any) (string, bool) {
	switch n := v.(type) {
	case string:
		return n, true
	case int:
		return strconv.Itoa(n), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), true
	default:
		return "", false
	}
}

// SanitizeForLogging walks a snapshot, drops excluded fields, masks matched
// fields and recurses into nested maps and slices. It is applied
// independently to the pre- and post-mutation snapshots before they are
// persisted. Returns nil for a nil input so absent snapshots stay absent.
func SanitizeForLogging(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for field, value := range values {
		if isExcludedField(field) {
			continue
		}
		if isMaskedField(field) {
			out[field] = MaskValue(value)
			continue
		}
		out[field] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(v any) any {
	switch nested := v.(type) {
	case map[string]any:
		return SanitizeForLogging(nested)
	case []any:
		out := make([]any, len(nested))
		for i, elem := range nested {
			out[i] = sanitizeValue(elem)
		}
		return out
	default:
		return v
	}
}
