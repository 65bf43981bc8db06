// Package llmutil parses structured data out of model responses that do
// not always arrive in the clean format they were asked for.
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Fences use \x60 for backticks since Go raw strings cannot contain them.
var (
	fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	fencedArrayRegex  = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse decodes a model response into T, tolerating the two
// common failure shapes: JSON fenced inside a markdown code block, and
// JSON buried in conversational text before or after it.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := extractJSON(strings.TrimSpace(response))

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("unmarshaling model response: %w (extracted: %s)", err, truncate(payload, 500))
	}
	return &result, nil
}

func extractJSON(response string) string {
	hasObject := strings.Contains(response, "{")
	hasArray := strings.Contains(response, "[")

	if strings.HasPrefix(response, "```") {
		var matches []string
		if hasObject {
			matches = fencedObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && hasArray {
			matches = fencedArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1]
		}
		return response
	}

	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// Chatty responses: take the widest brace or bracket span.
	if hasObject {
		if span := widestSpan(response, "{", "}"); span != "" {
			return span
		}
	}
	if hasArray {
		if span := widestSpan(response, "[", "]"); span != "" {
			return span
		}
	}
	return response
}

func widestSpan(s, open, close string) string {
	first := strings.Index(s, open)
	last := strings.LastIndex(s, close)
	if first == -1 || last == -1 || last <= first {
		return ""
	}
	return s[first : last+1]
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
