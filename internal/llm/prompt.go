package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

const systemPrompt = "You are a financial transaction classifier. You MUST respond with ONLY a valid JSON object. " +
	"Do not include any explanatory text, markdown formatting, or commentary before or after the JSON."

// ErrInvalidResponse marks a provider reply that could not be parsed into a
// category. It is not retried.
var ErrInvalidResponse = errors.New("invalid classification response")

func invalidResponse(err error) error {
	return &common.RetryableError{Err: fmt.Errorf("%w: %w", ErrInvalidResponse, err), Retryable: false}
}

func buildPrompt(merchant string, categories []model.Category) string {
	var b strings.Builder
	b.WriteString("Classify this merchant into exactly one spending category.\n\n")
	fmt.Fprintf(&b, "Merchant: %s\n\n", merchant)
	b.WriteString("Allowed categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nUse \"Uncategorized\" if none fit. Respond with JSON only:\n")
	b.WriteString(`{"category": "<one allowed category>", "confidence": <number between 0 and 1>}`)
	return b.String()
}

// cleanMarkdownWrapper strips code fences and any prose around the first
// JSON object in content.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

// parseClassification extracts category and confidence from the LLM response.
func parseClassification(content string) (ClassificationResponse, error) {
	var jsonResp struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}

	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &jsonResp); err != nil {
		return ClassificationResponse{}, invalidResponse(err)
	}

	if strings.TrimSpace(jsonResp.Category) == "" {
		return ClassificationResponse{}, invalidResponse(errors.New("no category found in response"))
	}

	return ClassificationResponse{
		Category:   jsonResp.Category,
		Confidence: jsonResp.Confidence,
	}, nil
}
