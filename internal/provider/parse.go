package provider

import (
	"encoding/json"
	"strings"

	"github.com/memengine/memengine/internal/store"
)

// Parse turns a chatCompletion response's content into an ExtractionResult,
// per §6: strip a fenced code block if present, extract the first balanced
// {...} substring if noise surrounds it, normalize classification/
// importance to lower-case, then validate against the §3 tables. On any
// failure it returns the deterministic fallback record instead of an error
// — parse failures are recovered locally, never surfaced (§7 PARSE).
func Parse(userInput, aiOutput, content string) ExtractionResult {
	candidate := extractJSON(content)
	if candidate == "" {
		return Fallback(userInput, aiOutput)
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return Fallback(userInput, aiOutput)
	}

	result.Classification = strings.ToLower(strings.TrimSpace(result.Classification))
	result.Importance = strings.ToLower(strings.TrimSpace(result.Importance))

	upperClass := strings.ToUpper(result.Classification)
	upperImportance := strings.ToUpper(result.Importance)
	if !store.IsValidClassification(upperClass) || !store.IsValidImportance(upperImportance) {
		return Fallback(userInput, aiOutput)
	}
	result.Classification = upperClass
	result.Importance = upperImportance

	return result
}

// stripFence removes a leading/trailing ``` or ```json fenced code block.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "" || isLanguageTag(firstLine) {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// extractJSON strips any fence, then returns the first balanced {...}
// substring, tolerating surrounding prose noise.
func extractJSON(content string) string {
	s := stripFence(content)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// Fallback builds the deterministic record §6 specifies for parse failure.
func Fallback(userInput, aiOutput string) ExtractionResult {
	content := strings.TrimSpace(userInput + " " + aiOutput)
	summary := content
	if len(summary) > 100 {
		summary = summary[:100] + "..."
	}
	return ExtractionResult{
		Content:              content,
		Summary:              summary,
		Classification:       "CONVERSATIONAL",
		Importance:           "MEDIUM",
		ConfidenceScore:      0.5,
		ClassificationReason: "Fallback processing due to error",
	}
}
