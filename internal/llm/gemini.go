package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const (
	envGeminiAPIKey    = "GEMINI_API_KEY"
	envGoogleAPIKey    = "GOOGLE_API_KEY"
	envGeminiModel     = "GEMINI_MODEL"
	defaultGeminiModel = "gemini-2.5-flash"

	geminiMaxTokens      = 1024
	geminiMaxRetries     = 3
	geminiRetryBaseDelay = 500 * time.Millisecond
)

type geminiClient struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

func NewGeminiFromEnv(ctx context.Context) (Client, error) {
	key := strings.TrimSpace(os.Getenv(envGeminiAPIKey))
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envGoogleAPIKey))
	}
	if key == "" {
		return nil, fmt.Errorf("missing %s", envGeminiAPIKey)
	}
	model := strings.Trim(strings.TrimSpace(os.Getenv(envGeminiModel)), "\"'")
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &geminiClient{client: client, model: model, logger: zerolog.Nop()}, nil
}

func NewGeminiWithLogger(ctx context.Context, logger zerolog.Logger) (Client, error) {
	client, err := NewGeminiFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	if gc, ok := client.(*geminiClient); ok {
		gc.logger = logger
	}
	return client, nil
}

func (c *geminiClient) Name() string { return c.model }

func (c *geminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}

	contents := geminiContents(req.Messages)
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(max(req.MaxTokens, geminiMaxTokens)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	var lastErr error
	for attempt := 0; attempt <= geminiMaxRetries; attempt++ {
		if attempt > 0 {
			delay := geminiRetryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying Gemini API call")
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		c.logger.Debug().
			Str("model", c.model).
			Int("contents", len(contents)).
			Msg("Gemini API request")

		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			lastErr = fmt.Errorf("gemini: %w", err)
			c.logger.Error().Err(err).Int("attempt", attempt).Msg("Gemini API error")
			if ctx.Err() != nil {
				return Response{}, lastErr
			}
			continue
		}

		text := resp.Text()
		c.logger.Debug().
			Int("response_length", len(text)).
			Msg("Gemini API success")
		return Response{Text: text}, nil
	}

	return Response{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func geminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		parts := make([]*genai.Part, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, genai.NewPartFromBytes(img, "image/png"))
		}
		if m.Content != "" {
			parts = append(parts, genai.NewPartFromText(m.Content))
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}
