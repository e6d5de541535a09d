package enrich

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	codeFence     = regexp.MustCompile("```(?:json)?\\s*")
	objectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
	controlSpaces = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")
)

// ParseLenient decodes the JSON object contained in a model answer. It tries
// the answer as is, then with code fences and surrounding prose removed, and
// finally the first balanced object found by pattern.
func ParseLenient(text string) (map[string]any, error) {
	if parsed, ok := decodeObject(strings.TrimSpace(text)); ok {
		return parsed, nil
	}

	cleaned := codeFence.ReplaceAllString(text, "")
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		if parsed, ok := decodeObject(controlSpaces.Replace(cleaned[start : end+1])); ok {
			return parsed, nil
		}
	}

	if match := objectPattern.FindString(text); match != "" {
		if parsed, ok := decodeObject(controlSpaces.Replace(match)); ok {
			return parsed, nil
		}
	}

	return nil, fmt.Errorf("%w: could not parse JSON response: %s", ErrInvalidResult, truncate(text, 200))
}

func decodeObject(candidate string) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil || parsed == nil {
		return nil, false
	}
	return parsed, true
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}
