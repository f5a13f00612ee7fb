package coaching

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"example.com/fitcoach/internal/domain"
)

// Fallback entries used when the provider omits a list or returns it empty.
const (
	DefaultImprovement = "No improvements suggested."
	DefaultSuggestion  = "No suggestions provided."
	DefaultSafetyTip   = "Follow general SafetyGuidelines."
)

// analysisSections lists the analysis keys in output order with their labels.
var analysisSections = []struct {
	key   string
	label string
}{
	{key: "overall", label: "Overall"},
	{key: "pace", label: "Pace"},
	{key: "heartRate", label: "HeartRate"},
	{key: "caloriesBurned", label: "CaloriesBurned"},
}

// ParseError reports a structurally malformed provider response. No
// recommendation can be produced from it.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed ai response (%s): %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// envelope is the provider's fixed outer response shape.
type envelope struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Text returns candidates[0].content.parts[0].text.
func (e envelope) Text() (string, error) {
	if len(e.Candidates) == 0 {
		return "", errors.New("no candidates")
	}
	parts := e.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", errors.New("candidate has no content parts")
	}
	if parts[0].Text == nil {
		return "", errors.New("first content part has no text")
	}
	return *parts[0].Text, nil
}

// coachingDocument is the provider-authored JSON carried inside the envelope
// text. Fields stay raw so content problems can be defaulted individually.
type coachingDocument struct {
	Analysis     json.RawMessage `json:"analysis"`
	Improvements json.RawMessage `json:"improvements"`
	Suggestions  json.RawMessage `json:"suggestions"`
	SafetyTips   json.RawMessage `json:"safetyTips"`
}

// ParseResponse extracts a Recommendation for activity from the raw provider
// envelope. Structural problems (unreadable envelope, missing text, inner text
// that is not a JSON object) fail with *ParseError; missing or odd content is
// defaulted instead.
func ParseResponse(activity domain.Activity, raw string) (*domain.Recommendation, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, &ParseError{Stage: "envelope", Err: err}
	}
	text, err := env.Text()
	if err != nil {
		return nil, &ParseError{Stage: "envelope", Err: err}
	}

	inner := stripMarkers(text)
	if !strings.HasPrefix(inner, "{") {
		return nil, &ParseError{Stage: "content", Err: errors.New("content is not a JSON object")}
	}
	var doc coachingDocument
	if err := json.Unmarshal([]byte(inner), &doc); err != nil {
		return nil, &ParseError{Stage: "content", Err: err}
	}

	return &domain.Recommendation{
		ActivityID:     activity.ID,
		UserID:         activity.UserID,
		ActivityType:   activity.ActivityType,
		Recommendation: analysisText(doc.Analysis),
		Improvements: listOrDefault(doc.Improvements, DefaultImprovement, func(item json.RawMessage) string {
			return fmt.Sprintf("Area: %s - Recommendation: %s", field(item, "area"), field(item, "recommendation"))
		}),
		Suggestions: listOrDefault(doc.Suggestions, DefaultSuggestion, func(item json.RawMessage) string {
			return fmt.Sprintf("Workout: %s - Nutrition: %s", field(item, "workout"), field(item, "nutrition"))
		}),
		Safety: listOrDefault(doc.SafetyTips, DefaultSafetyTip, scalarText),
	}, nil
}

// stripMarkers removes wrapping the provider sometimes puts around the JSON
// document: Markdown code fences and the ''' sentinel. Only the edges are
// touched.
func stripMarkers(text string) string {
	text = trimSentinels(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if newline := strings.IndexByte(text, '\n'); newline >= 0 {
			// Drop the info string, e.g. ```json.
			text = text[newline+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return trimSentinels(text)
}

// trimSentinels strips a leading or trailing ''' and its escaped-newline
// variant.
func trimSentinels(text string) string {
	text = strings.TrimSpace(text)
	for _, marker := range []string{`\n'''`, "'''"} {
		text = strings.TrimSuffix(text, marker)
		text = strings.TrimPrefix(text, marker)
	}
	return strings.TrimSpace(text)
}

func analysisText(raw json.RawMessage) string {
	var analysis map[string]json.RawMessage
	if err := json.Unmarshal(raw, &analysis); err != nil || analysis == nil {
		return ""
	}

	sections := make([]string, 0, len(analysisSections))
	for _, section := range analysisSections {
		value, ok := analysis[section.key]
		if !ok || isNull(value) {
			continue
		}
		sections = append(sections, section.label+":"+scalarText(value))
	}
	return strings.Join(sections, "\n\n")
}

func listOrDefault(raw json.RawMessage, fallback string, render func(json.RawMessage) string) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return []string{fallback}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, render(item))
	}
	return out
}

// field reads a leaf of an array element; anything missing reads as "".
func field(item json.RawMessage, key string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err != nil {
		return ""
	}
	value, ok := obj[key]
	if !ok {
		return ""
	}
	return scalarText(value)
}

// scalarText renders strings unquoted and other scalars as their JSON
// literal. Objects, arrays and null read as "".
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case '{', '[':
		return ""
	default:
		return string(trimmed)
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
