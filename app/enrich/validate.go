package enrich

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
)

const (
	maxKeywords              = 8
	defaultKeywordConfidence = 0.8
)

var (
	severities          = []string{"routine", "attention", "urgent"}
	damageCategories    = []string{"private", "commercial", "industrial", "infrastructure"}
	complexities        = []string{"low", "medium", "high", "critical"}
	locationConfidences = []string{"low", "medium", "high"}
)

// Normalize turns a decoded model answer into an Enrichment. Title, summary,
// keyPoints and severity are required; enumerations outside their vocabulary
// fall back to a default value.
func Normalize(raw map[string]any, processedAt time.Time) (database.Enrichment, error) {
	title := stringField(raw, "title")
	summary := stringField(raw, "summary")
	severity := stringField(raw, "severity")
	keyPoints, hasKeyPoints := raw["keyPoints"]

	if title == "" || summary == "" || severity == "" || !hasKeyPoints || keyPoints == nil {
		return database.Enrichment{}, fmt.Errorf("%w: response missing required fields", ErrInvalidResult)
	}

	keywords := stringList(raw["keywords"])
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}

	return database.Enrichment{
		Title:                title,
		Summary:              summary,
		KeyPoints:            stringList(keyPoints),
		Severity:             oneOf(severity, severities, "attention"),
		DamageCategory:       oneOf(stringField(raw, "damageCategory"), damageCategories, "private"),
		BusinessInterruption: truthy(raw["businessInterruption"]),
		Complexity:           oneOf(stringField(raw, "estimatedComplexity"), complexities, "medium"),
		Location:             stringField(raw, "location"),
		LocationConfidence:   oneOf(stringField(raw, "locationConfidence"), locationConfidences, "medium"),
		Keywords:             keywords,
		KeywordCategories:    keywordCategories(raw["keywordCategories"]),
		KeywordConfidence:    keywordConfidence(raw["keywordConfidence"], keywords),
		ProcessedAt:          processedAt,
	}, nil
}

func oneOf(value string, allowed []string, fallback string) string {
	if slices.Contains(allowed, value) {
		return value
	}
	return fallback
}

func stringField(raw map[string]any, key string) string {
	value, ok := raw[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// stringList accepts an array of strings or a single string.
func stringList(value any) []string {
	result := []string{}
	switch v := value.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			result = append(result, s)
		}
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
				result = append(result, strings.TrimSpace(s))
			}
		}
	}
	return result
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	default:
		return false
	}
}

func keywordCategories(value any) database.KeywordCategories {
	raw, ok := value.(map[string]any)
	if !ok {
		return database.KeywordCategories{}
	}
	return database.KeywordCategories{
		EventType:  stringList(raw["eventType"]),
		Severity:   stringList(raw["severity"]),
		Sector:     stringList(raw["sector"]),
		DamageType: stringList(raw["damageType"]),
		Urgency:    stringList(raw["urgency"]),
	}
}

func keywordConfidence(value any, keywords []string) map[string]float64 {
	confidence := make(map[string]float64)

	if raw, ok := value.(map[string]any); ok {
		for keyword, score := range raw {
			if number, ok := score.(float64); ok {
				confidence[keyword] = number
			}
		}
		return confidence
	}

	for _, keyword := range keywords {
		confidence[keyword] = defaultKeywordConfidence
	}
	return confidence
}
