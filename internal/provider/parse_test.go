package provider

import "testing"

func TestParseHandlesPlainJSON(t *testing.T) {
	content := `{"content":"likes Go","summary":"user likes Go","classification":"personal","importance":"high","topic":"languages","entities":["Go"],"keywords":["go","preference"],"confidenceScore":0.9,"classificationReason":"explicit statement","promotionEligible":true}`

	result := Parse("I really like Go", "Noted, you like Go.", content)

	if result.Classification != "PERSONAL" {
		t.Fatalf("expected normalized classification PERSONAL, got %s", result.Classification)
	}
	if result.Importance != "HIGH" {
		t.Fatalf("expected normalized importance HIGH, got %s", result.Importance)
	}
	if result.Summary != "user likes Go" {
		t.Fatalf("unexpected summary: %s", result.Summary)
	}
}

func TestParseStripsFencedCodeBlock(t *testing.T) {
	content := "```json\n{\"content\":\"x\",\"summary\":\"x\",\"classification\":\"reference\",\"importance\":\"low\"}\n```"

	result := Parse("hi", "hi back", content)

	if result.Classification != "REFERENCE" {
		t.Fatalf("expected REFERENCE, got %s", result.Classification)
	}
	if result.Importance != "LOW" {
		t.Fatalf("expected LOW, got %s", result.Importance)
	}
}

func TestParseExtractsBalancedBraceFromNoise(t *testing.T) {
	content := "Sure, here is the extraction:\n{\"content\":\"y\",\"summary\":\"y\",\"classification\":\"essential\",\"importance\":\"critical\"}\nLet me know if you need anything else."

	result := Parse("hi", "hi back", content)

	if result.Classification != "ESSENTIAL" {
		t.Fatalf("expected ESSENTIAL, got %s", result.Classification)
	}
	if result.Importance != "CRITICAL" {
		t.Fatalf("expected CRITICAL, got %s", result.Importance)
	}
}

func TestParseFallsBackOnInvalidJSON(t *testing.T) {
	result := Parse("what's the weather", "I can't check that", "not json at all")

	if result.Classification != "CONVERSATIONAL" {
		t.Fatalf("expected fallback classification CONVERSATIONAL, got %s", result.Classification)
	}
	if result.Importance != "MEDIUM" {
		t.Fatalf("expected fallback importance MEDIUM, got %s", result.Importance)
	}
	if result.ConfidenceScore != 0.5 {
		t.Fatalf("expected fallback confidence 0.5, got %f", result.ConfidenceScore)
	}
	if result.ClassificationReason != "Fallback processing due to error" {
		t.Fatalf("unexpected fallback reason: %s", result.ClassificationReason)
	}
	if result.Content != "what's the weather I can't check that" {
		t.Fatalf("unexpected fallback content: %s", result.Content)
	}
}

func TestParseFallsBackOnInvalidClassification(t *testing.T) {
	content := `{"content":"x","summary":"x","classification":"bogus","importance":"medium"}`

	result := Parse("hi", "hi back", content)

	if result.Classification != "CONVERSATIONAL" {
		t.Fatalf("expected fallback on unknown classification, got %s", result.Classification)
	}
}

func TestFallbackTruncatesLongSummary(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "word "
	}

	result := Fallback(long, "reply")

	if len(result.Summary) != 103 {
		t.Fatalf("expected a 100-char summary plus ellipsis (103 chars), got %d", len(result.Summary))
	}
}
