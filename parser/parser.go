package parser

import (
	"encoding/json"
	"errors"
	"strings"

	"lot-analyze-pipeline/models"
)

// ExtractJSONFromMarkdown extracts JSON from markdown code blocks
func ExtractJSONFromMarkdown(response string) string {
	// Look for JSON code blocks with ``` markers
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	// Find the end of the first code block
	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(startMarker)

	// Extract content between the markers
	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseClassification parses the classifier response and validates field ranges.
func ParseClassification(response string) (*models.ClassifierResult, error) {
	cleaned := strings.TrimSpace(response)

	jsonContent := ExtractJSONFromMarkdown(cleaned)

	var result models.ClassifierResult
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	if result.RarityScore < 0 || result.RarityScore > 100 {
		return nil, errors.New("rarity_score must be between 0 and 100")
	}
	if result.EstimatedWeightGrams < 0 {
		return nil, errors.New("estimated_weight_grams must not be negative")
	}
	if eq := result.Equipment; eq != nil {
		if eq.Condition < 1 || eq.Condition > 10 {
			return nil, errors.New("equipment condition must be between 1 and 10")
		}
		if eq.OperatingHours < 0 {
			return nil, errors.New("operating_hours must not be negative")
		}
	}
	if col := result.Collectible; col != nil {
		if col.Condition < 1 || col.Condition > 10 {
			return nil, errors.New("collectible condition must be between 1 and 10")
		}
		if col.AuthenticityRisk < 0 || col.AuthenticityRisk > 100 {
			return nil, errors.New("authenticity_risk must be between 0 and 100")
		}
	}

	return &result, nil
}
