package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngStub = []byte{0x89, 'P', 'N', 'G'}

func TestUserMessageSkipsEmptyImages(t *testing.T) {
	msg := UserMessage("hello", nil, pngStub, []byte{})
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	require.Len(t, msg.Images, 1)
	assert.Equal(t, pngStub, msg.Images[0])
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), "llama", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider")
}

func TestProviderFromEnv(t *testing.T) {
	t.Setenv(envProvider, "")
	assert.Equal(t, ProviderGemini, ProviderFromEnv())
	t.Setenv(envProvider, " OpenAI ")
	assert.Equal(t, ProviderOpenAI, ProviderFromEnv())
}

func TestAnthropicSendsImageBlocks(t *testing.T) {
	var got anthropicPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"action\":\"DONE\"}"}]}`))
	}))
	defer srv.Close()

	c := &anthropicClient{apiKey: "test-key", model: "m", endpoint: srv.URL, http: srv.Client(), logger: zerolog.Nop()}
	resp, err := c.Generate(context.Background(), Request{
		System:   "sys",
		Messages: []Message{UserMessage("look", pngStub)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"DONE"}`, resp.Text)

	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)
	content := got.Messages[0].Content
	require.Len(t, content, 2)
	assert.Equal(t, "image", content[0].Type)
	require.NotNil(t, content[0].Source)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngStub), content[0].Source.Data)
	assert.Equal(t, "text", content[1].Type)
	assert.Equal(t, "look", content[1].Text)
}

func TestAnthropicRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"type":"overloaded_error","message":"busy"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	c := &anthropicClient{apiKey: "k", model: "m", endpoint: srv.URL, http: srv.Client(), logger: zerolog.Nop()}
	resp, err := c.Generate(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestAnthropicClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	c := &anthropicClient{apiKey: "k", model: "m", endpoint: srv.URL, http: srv.Client(), logger: zerolog.Nop()}
	_, err := c.Generate(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAISendsDataURIs(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"menu"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := &openAIClient{apiKey: "k", model: "m", endpoint: srv.URL, http: srv.Client(), logger: zerolog.Nop()}
	resp, err := c.Generate(context.Background(), Request{
		System:   "classify",
		Messages: []Message{UserMessage("which page?", pngStub), {Role: RoleAssistant, Content: "prev"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "menu", resp.Text)

	messages := raw["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])

	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	image := parts[0].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	url := image["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngStub), url)

	assert.Equal(t, "prev", messages[2].(map[string]any)["content"])
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := &openAIClient{apiKey: "k", model: "m", endpoint: srv.URL, http: srv.Client(), logger: zerolog.Nop()}
	_, err := c.Generate(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	assert.Error(t, err)
}

func TestGenerateRejectsEmptyRequests(t *testing.T) {
	a := &anthropicClient{logger: zerolog.Nop()}
	_, err := a.Generate(context.Background(), Request{})
	assert.Error(t, err)

	o := &openAIClient{logger: zerolog.Nop()}
	_, err = o.Generate(context.Background(), Request{})
	assert.Error(t, err)
}

func TestGeminiContents(t *testing.T) {
	contents := geminiContents([]Message{
		UserMessage("look", pngStub),
		{Role: RoleAssistant, Content: "ok"},
	})
	require.Len(t, contents, 2)
	assert.EqualValues(t, "user", contents[0].Role)
	require.Len(t, contents[0].Parts, 2)
	require.NotNil(t, contents[0].Parts[0].InlineData)
	assert.Equal(t, pngStub, contents[0].Parts[0].InlineData.Data)
	assert.Equal(t, "look", contents[0].Parts[1].Text)
	assert.EqualValues(t, "model", contents[1].Role)
}

type countingClient struct{ calls atomic.Int32 }

func (c *countingClient) Name() string { return "counting" }

func (c *countingClient) Generate(context.Context, Request) (Response, error) {
	c.calls.Add(1)
	return Response{Text: "ok"}, nil
}

func TestThrottle(t *testing.T) {
	inner := &countingClient{}
	assert.Same(t, inner, Throttle(inner, 0, 1))

	c := Throttle(inner, 1000, 1)
	assert.Equal(t, "counting", c.Name())
	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), Request{})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, inner.calls.Load())

	slow := Throttle(&countingClient{}, 0.01, 1)
	_, err := slow.Generate(context.Background(), Request{})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = slow.Generate(ctx, Request{})
	assert.Error(t, err)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 3))
	assert.Equal(t, "ab...", truncateString("abc", 2))

	cut := truncateString(strings.Repeat("ж", 10), 4)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, "жжжж...", cut)
}
