package gemini

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"lot-analyze-pipeline/models"
	"lot-analyze-pipeline/parser"
)

// MaxImageBytes is the inline-image payload cap. Oversized photos are
// not resized or partially retried; callers skip vision entirely.
const MaxImageBytes = 4 << 20

const promptSchema = `
You are a marketplace appraisal assistant. You receive one photo of a
second-hand lot from a classifieds site plus its listing title. Decide
whether the pictured item plausibly belongs to the stated category, and
extract appraisal inputs.

Output a single valid JSON object and nothing else, exactly this schema:
{
  "is_plausible_category": <true | false>,
  "keywords": ["<refined search keyword 1>", "<keyword 2>", "<keyword 3>"],
  "rarity_score": <0-100>,
  "equipment": {
      "manufacturer": "<or empty>",
      "model": "<or empty>",
      "year": <manufacture year or 0>,
      "operating_hours": <hours or 0>,
      "condition": <1-10>
  },
  "collectible": {
      "brand": "<or empty>",
      "condition": <1-10>,
      "authenticity_risk": <0-100>
  },
  "estimated_weight_grams": <grams of raw material, 0 if not applicable>
}

Rules:
* Omit the "equipment" object entirely unless the item is powered
  machinery, tools or instruments.
* Omit the "collectible" object entirely for plain commodity goods.
* "estimated_weight_grams" is only for scrap / bullion / precious-metal
  lots: estimate the raw metal weight visible on the photo.
* Keywords must be 2-4 short marketplace search terms, most specific first.
* Set "is_plausible_category" to false when the photo clearly does not
  match the listing title.
`

const promptIdentify = `
Look at this photo. Name the pictured item as a marketplace search query:
only 2-4 keywords, nothing else. Examples: "бензопила Stihl MS 180",
"срібна монета", "генератор 3 кВт".
`

const (
	maxAttempts = 3
	baseBackoff = 1 * time.Second
)

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
	Contents         []content        `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type Client struct {
	apiKey string
	model  string
	http   *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
		http:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) SourceName() string {
	return "Gemini"
}

// Classify runs the appraisal prompt against one photo. The advisory
// instruction string rides along as a separate text part; it never
// changes the output schema. A nil, nil return means the provider was
// unreachable or kept answering with garbage after all retries.
func (c *Client) Classify(imageData []byte, prompt, instruction string) (*models.ClassifierResult, error) {
	parts := []part{{Text: promptSchema}}
	if instruction != "" {
		parts = append(parts, part{Text: instruction})
	}
	if prompt != "" {
		parts = append(parts, part{Text: prompt})
	}
	if len(imageData) > 0 {
		parts = append(parts, part{
			InlineData: &inlineData{
				MimeType: "image/jpeg",
				Data:     base64.StdEncoding.EncodeToString(imageData),
			},
		})
	}

	reqBody := geminiRequest{
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
		Contents: []content{
			{
				Role:  "user",
				Parts: parts,
			},
		},
	}

	text, err := c.generateWithRetry("classify", reqBody)
	if err != nil {
		log.Printf("Gemini classification unavailable: %v", err)
		return nil, nil
	}

	result, err := parser.ParseClassification(text)
	if err != nil {
		log.Printf("Gemini returned unparseable classification: %v", err)
		return nil, nil
	}
	return result, nil
}

// IdentifyQuery turns an ad-hoc photo into a short search query.
func (c *Client) IdentifyQuery(imageData []byte) (string, error) {
	reqBody := geminiRequest{
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{Text: promptIdentify},
					{InlineData: &inlineData{
						MimeType: "image/jpeg",
						Data:     base64.StdEncoding.EncodeToString(imageData),
					}},
				},
			},
		},
	}

	text, err := c.generateWithRetry("identify", reqBody)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// generateWithRetry wraps generateContent with exponential back-off:
// attempts sleep 1s, 2s before retrying; the third failure is final.
func (c *Client) generateWithRetry(operation string, body geminiRequest) (string, error) {
	var lastErr error
	delay := baseBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := c.generateContent(body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			log.Printf("Gemini %s failed (attempt %d/%d): %v, retrying in %v",
				operation, attempt, maxAttempts, err, delay)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return "", fmt.Errorf("%s failed after %d attempts: %w", operation, maxAttempts, lastErr)
}

func (c *Client) generateContent(body geminiRequest) (string, error) {
	// try v1beta first, then v1
	endpoints := []string{
		fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", c.model, c.apiKey),
		fmt.Sprintf("https://generativelanguage.googleapis.com/v1/models/%s:generateContent?key=%s", c.model, c.apiKey),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for _, ep := range endpoints {
		req, err := http.NewRequest("POST", ep, bytes.NewBuffer(data))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to send request: %w", err)
			continue
		}
		bodyBytes, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
			// retry next endpoint if available
			continue
		}
		var gr geminiResponse
		if err := json.Unmarshal(bodyBytes, &gr); err != nil {
			lastErr = fmt.Errorf("failed to parse response: %w", err)
			continue
		}
		if len(gr.Candidates) == 0 {
			lastErr = fmt.Errorf("no candidates in response")
			continue
		}
		// find first text part
		for _, p := range gr.Candidates[0].Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
		lastErr = fmt.Errorf("no text part in response")
	}
	return "", lastErr
}
