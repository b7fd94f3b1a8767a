package relaxjson

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	propertyAssignment = regexp.MustCompile(`([A-Za-z_$][\w$]*)\.([A-Za-z_$][\w$]*)\s*=([^=;][^;]*);`)
	shallowReturn      = regexp.MustCompile(`return\s*\{([^{}]*)\}`)
	shallowPair        = regexp.MustCompile(`"?([A-Za-z_$][\w$]*)"?\s*:\s*([^,]+)`)
	numericLiteral     = regexp.MustCompile(`^-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?$`)
)

// reconstructAssignments rebuilds data from a function wrapper that fills its
// parameters through property assignments and returns an object of those
// parameters. It never fails: lack of data yields an empty mapping.
func reconstructAssignments(text string) map[string]any {
	assigned := make(map[string]map[string]any)
	for _, match := range propertyAssignment.FindAllStringSubmatch(text, -1) {
		variable, property := match[1], match[2]
		if assigned[variable] == nil {
			assigned[variable] = make(map[string]any)
		}
		assigned[variable][property] = coerceValue(match[3])
	}

	result := make(map[string]any)
	if body := shallowReturn.FindStringSubmatch(text); len(body) == 2 {
		for _, pair := range shallowPair.FindAllStringSubmatch(body[1], -1) {
			key, token := pair[1], strings.TrimSpace(pair[2])
			if values, ok := assigned[token]; ok {
				result[key] = values
				continue
			}
			var decoded any
			if err := json.Unmarshal([]byte(token), &decoded); err == nil {
				result[key] = decoded
				continue
			}
			result[key] = token
		}
	}
	if len(result) > 0 {
		return result
	}

	for variable, values := range assigned {
		result[variable] = values
	}
	return result
}

// coerceValue interprets the right-hand side of a property assignment.
func coerceValue(raw string) any {
	value := strings.TrimSpace(normalizeLiterals(raw))
	if value == "" {
		return ""
	}

	switch value[0] {
	case '{', '[', '"':
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			return decoded
		}
		if value[0] != '"' {
			if err := json.Unmarshal([]byte(Normalize(value)), &decoded); err == nil {
				return decoded
			}
		}
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}

	if numericLiteral.MatchString(value) {
		if !strings.Contains(value, ".") {
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
				return parsed
			}
		}
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}

	return strings.Trim(value, `"'`)
}
