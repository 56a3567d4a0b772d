package completion

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for parsing when none is
// configured.
const DefaultModelName = "gemini-2.5-flash"

// GeminiCaller performs raw completion calls against the Gemini API.
type GeminiCaller struct {
	client *genai.Client
	model  string
}

// NewGeminiCaller creates a caller backed by a fresh genai client. The API key
// is read from the environment by the client itself (GOOGLE_API_KEY or
// GEMINI_API_KEY).
func NewGeminiCaller(ctx context.Context, model string) (*GeminiCaller, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiCaller: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiCaller{client: client, model: model}, nil
}

// Complete sends one request to the model. Images are attached inline after
// the prompt text.
func (c *GeminiCaller) Complete(ctx context.Context, req Request) (*Response, error) {
	parts := []*genai.Part{{Text: req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: img.MIMEType,
				Data:     img.Bytes,
			},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	var config *genai.GenerateContentConfig
	if req.System != "" || req.MaxTokens > 0 {
		config = &genai.GenerateContentConfig{}
		if req.System != "" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: req.System}},
			}
		}
		if req.MaxTokens > 0 {
			config.MaxOutputTokens = req.MaxTokens
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("Complete: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("Complete: empty response from model")
	}

	out := &Response{Content: text}
	if resp.UsageMetadata != nil {
		out.Usage.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.Usage.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	if len(resp.Candidates) > 0 {
		out.StopReason = string(resp.Candidates[0].FinishReason)
	}
	return out, nil
}
