package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	envProvider = "LLM_PROVIDER" // "gemini", "anthropic" or "openai"

	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client is a vision-capable chat model.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Message is one conversation turn. Images are PNG bytes sent before the text.
type Message struct {
	Role    string
	Content string
	Images  [][]byte
}

type Response struct {
	Text string
}

// UserMessage builds a user turn carrying optional screenshots.
func UserMessage(text string, images ...[]byte) Message {
	msg := Message{Role: RoleUser, Content: text}
	for _, img := range images {
		if len(img) > 0 {
			msg.Images = append(msg.Images, img)
		}
	}
	return msg
}

// ProviderFromEnv returns LLM_PROVIDER, defaulting to gemini.
func ProviderFromEnv() string {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv(envProvider)))
	if provider == "" {
		provider = ProviderGemini
	}
	return provider
}

// NewClient creates the client for the named provider.
func NewClient(ctx context.Context, provider string, logger zerolog.Logger) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderGemini, "":
		return NewGeminiWithLogger(ctx, logger)
	case ProviderAnthropic:
		return NewAnthropicWithLogger(logger)
	case ProviderOpenAI:
		return NewOpenAIWithLogger(logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'gemini', 'anthropic' or 'openai')", provider)
	}
}

// truncateString cuts s to maxLen runes.
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
