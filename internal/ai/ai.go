/*
Package ai provides an optional Gemini summary of a filing's detail
page, appended to the alert message when an API key is configured.
*/
package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// maxPageChars bounds how much page text is sent per filing.
const maxPageChars = 20000

// Analysis is the structured summary returned for one filing.
type Analysis struct {
	Summary      []string `json:"summary"`
	Significance string   `json:"significance"`
}

const systemInstruction = `
You are a financial analyst covering the Korean equity market.

You are given the text of a KIND disclosure: an 임원ㆍ주요주주 특정증권등
소유상황보고서 (executive/major-shareholder ownership report) describing an
on-market purchase (장내매수).

Summarize the filing for an investor alert:
1. Who bought, their role, and the size of the purchase relative to their
   existing holding when stated.
2. The transaction terms: share count, price, total amount, dates.
3. Whether the filing mentions anything unusual (multiple transactions,
   related parties, corrections to a prior report).

Be concise and factual. Use only information present in the document.
Write the summary lines in Korean.
`

// GenerateSummary analyzes the detail page text and returns a
// structured summary. Failures are per-event; the caller logs and
// continues without a summary.
func GenerateSummary(ctx context.Context, pageText, apiKey, modelName string) (*Analysis, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if len(pageText) > maxPageChars {
		pageText = pageText[:maxPageChars]
	}

	prompt := fmt.Sprintf("Analyze the following disclosure text:\n\n---\n%s", pageText)

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{{Text: systemInstruction}},
			Role:  "system",
		},
		{
			Parts: []*genai.Part{{Text: prompt}},
			Role:  "user",
		},
	}

	resp, err := client.Models.GenerateContent(ctx, modelName, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   getResponseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	respText := resp.Text()

	var analysis Analysis
	if err := json.Unmarshal([]byte(respText), &analysis); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gemini JSON response: %w. Raw text: %s", err, respText)
	}

	return &analysis, nil
}

func getResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "2-4 concise bullet points summarizing the purchase.",
			},
			"significance": {
				Type:        genai.TypeString,
				Description: "One line on why the purchase is or is not notable.",
			},
		},
		Required: []string{"summary", "significance"},
	}
}
