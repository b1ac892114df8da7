package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

type rawResult struct {
	TransactionID string  `json:"transaction_id"`
	AccountCode   string  `json:"account_code"`
	AccountName   string  `json:"account_name"`
	Category      string  `json:"category"`
	Confidence    float64 `json:"confidence"`
}

// ParseResults extracts the structured classification array from model
// output. Models occasionally wrap JSON in markdown fences or prose, so the
// parser locates the outermost array before decoding. Out-of-range
// confidences are clamped rather than rejected.
func ParseResults(content string) ([]service.InferenceResult, error) {
	payload := extractArray(content)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON array in output", common.ErrUnparsableResponse)
	}

	var raw []rawResult
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnparsableResponse, err)
	}

	results := make([]service.InferenceResult, 0, len(raw))
	for _, r := range raw {
		if r.TransactionID == "" {
			continue
		}
		conf := r.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		results = append(results, service.InferenceResult{
			TransactionID: r.TransactionID,
			AccountCode:   r.AccountCode,
			AccountName:   r.AccountName,
			Category:      r.Category,
			Confidence:    conf,
		})
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: array contained no usable entries", common.ErrUnparsableResponse)
	}
	return results, nil
}

// extractArray returns the outermost JSON array in the text, or empty.
func extractArray(content string) string {
	content = strings.TrimSpace(content)

	// Strip markdown fences if present
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
