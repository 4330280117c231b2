package provider

// Message is one chat turn sent to the model provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the chatCompletion request shape of §6.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Response is the chatCompletion response shape of §6: the engine only
// relies on Content, which it then parses as JSON.
type Response struct {
	Content string `json:"content"`
}

// RelatedMemory is one entry of ExtractionResult.RelatedMemories.
type RelatedMemory struct {
	Type           string   `json:"type"`
	TargetMemoryID string   `json:"targetMemoryId,omitempty"`
	Confidence     float64  `json:"confidence"`
	Strength       float64  `json:"strength"`
	Reason         string   `json:"reason,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	Context        string   `json:"context,omitempty"`
}

// ExtractionResult is the §6 schema the model provider's chatCompletion
// content must parse into.
type ExtractionResult struct {
	Content              string          `json:"content"`
	Summary              string          `json:"summary"`
	Classification       string          `json:"classification"`
	Importance           string          `json:"importance"`
	Topic                string          `json:"topic"`
	Entities             []string        `json:"entities"`
	Keywords             []string        `json:"keywords"`
	ConfidenceScore      float64         `json:"confidenceScore"`
	ClassificationReason string          `json:"classificationReason"`
	PromotionEligible    bool            `json:"promotionEligible"`
	RelatedMemories      []RelatedMemory `json:"relatedMemories"`
}
