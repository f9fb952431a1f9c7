package forecast

import (
	"context"
	"errors"
	"time"

	"resty.dev/v3"

	"ForecastMailer/internal/model"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash"
)

// GeminiProvider requests assessments from the Gemini generateContent API.
// It keeps no state between calls.
type GeminiProvider struct {
	client *resty.Client
	apiKey string
	model  string
}

// NewGeminiProvider creates a provider. Empty baseURL and modelName use the defaults.
func NewGeminiProvider(baseURL, apiKey, modelName, proxyURL string, timeout time.Duration) *GeminiProvider {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &GeminiProvider{client: client, apiKey: apiKey, model: modelName}
}

func (g *GeminiProvider) Name() string { return "gemini:" + g.model }

func (g *GeminiProvider) Close() error { return g.client.Close() }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType,omitempty"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Assess implements the forecast contract for one ticker.
func (g *GeminiProvider) Assess(ctx context.Context, t model.Ticker, q model.QuoteSnapshot) (model.Assessment, error) {
	text, err := g.Generate(ctx, BuildPrompt(t, q))
	if err != nil {
		return model.Assessment{}, err
	}
	return ParseAssessment(text)
}

// Generate sends one prompt and returns the first candidate's text.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	body := generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}
	body.GenerationConfig.ResponseMimeType = "application/json"

	var out generateResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("model", g.model).
		SetHeader("x-goog-api-key", g.apiKey).
		SetBody(body).
		SetResult(&out).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return "", NewOtherError("gemini request", err)
	}
	if !resp.IsSuccess() {
		return "", ClassifyStatus(resp.StatusCode(), resp.String())
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", NewOtherError("gemini blocked prompt", errors.New(out.PromptFeedback.BlockReason))
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", NewOtherError("gemini response", errors.New("no candidates"))
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
