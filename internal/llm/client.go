package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var (
	// ErrEmptyResponse is returned when the model produced no usable text
	ErrEmptyResponse = errors.New("empty model response")
	// ErrBlocked is returned when the provider refused the prompt or the answer
	ErrBlocked = errors.New("response blocked by provider")
	// ErrTruncated is returned when the answer hit the output token limit
	ErrTruncated = errors.New("response truncated at token limit")
)

// Request is a single JSON generation call
type Request struct {
	System string
	Prompt string
	Tier   ModelTier
}

// Usage reports token accounting for a response
type Usage struct {
	PromptTokens   int32
	ResponseTokens int32
}

// Response is the cleaned JSON text plus the model that produced it
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Client generates JSON documents from prompts
type Client interface {
	GenerateJSON(ctx context.Context, req Request) (*Response, error)
	// Model resolves the model name a tier maps to
	Model(tier ModelTier) string
	Close() error
}

// NewClient creates a client for the configured provider
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// generateFunc performs the provider call for a configured model
type generateFunc func(ctx context.Context, model *genai.GenerativeModel, prompt string) (*genai.GenerateContentResponse, error)

func callModel(ctx context.Context, model *genai.GenerativeModel, prompt string) (*genai.GenerateContentResponse, error) {
	return model.GenerateContent(ctx, genai.Text(prompt))
}

// GeminiClient implements Client on the Gemini API
type GeminiClient struct {
	client   *genai.Client
	config   *Config
	generate generateFunc
}

// NewGeminiClient creates a Gemini client authenticated with an API key
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, config: config, generate: callModel}, nil
}

// Model returns the model name for a tier
func (c *GeminiClient) Model(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// configure builds a model handle with the JSON response settings applied
func (c *GeminiClient) configure(name, system string) *genai.GenerativeModel {
	var model *genai.GenerativeModel
	if c.client != nil {
		model = c.client.GenerativeModel(name)
	} else {
		model = &genai.GenerativeModel{}
	}
	model.SetTemperature(c.config.Temperature)
	if c.config.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(c.config.MaxOutputTokens)
	}
	model.ResponseMIMEType = "application/json"
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	return model
}

// GenerateJSON runs the request on the model configured for its tier
func (c *GeminiClient) GenerateJSON(ctx context.Context, req Request) (*Response, error) {
	name := c.Model(req.Tier)
	if name == "" {
		return nil, fmt.Errorf("no model configured for tier %s", req.Tier)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	resp, err := c.generate(ctx, c.configure(name, req.System), req.Prompt)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return nil, fmt.Errorf("%w: %v", ErrBlocked, blocked)
		}
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	out := &Response{Text: CleanJSONBlock(text), Model: name}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:   resp.UsageMetadata.PromptTokenCount,
			ResponseTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}
	return out, nil
}

// Close releases the underlying connection
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", ErrEmptyResponse)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrEmptyResponse)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "", fmt.Errorf("%w: %s", ErrBlocked, candidate.FinishReason)
	case genai.FinishReasonMaxTokens:
		return "", ErrTruncated
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: no content", ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text parts", ErrEmptyResponse)
	}
	return sb.String(), nil
}
