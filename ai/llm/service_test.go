package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceRequiresBaseURL(t *testing.T) {
	_, err := NewService(&Config{RouterID: "router-a", Model: "m", APIKey: "k"})
	assert.Error(t, err)
}

func TestNewServiceDefaults(t *testing.T) {
	svc, err := NewService(&Config{RouterID: "router-a", Model: "m", APIKey: "k", BaseURL: "https://example.com/v1"})
	require.NoError(t, err)

	impl := svc.(*service)
	assert.Equal(t, 120, impl.timeout)
	assert.Equal(t, 2048, impl.maxTokens)
}

func TestConvertMessages(t *testing.T) {
	converted := convertMessages([]Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "u"},
		{Role: "assistant", Content: "a"},
		{Role: "bogus", Content: "b"},
	})

	require.Len(t, converted, 4)
	assert.Equal(t, "system", converted[0].Role)
	assert.Equal(t, "user", converted[1].Role)
	assert.Equal(t, "assistant", converted[2].Role)
	// Unknown roles degrade to user turns.
	assert.Equal(t, "user", converted[3].Role)
}

func TestFormatMessages(t *testing.T) {
	history := []Message{UserMessage("q1"), AssistantMessage("a1")}
	messages := FormatMessages("sys", "q2", history)

	require.Len(t, messages, 4)
	assert.Equal(t, Message{Role: "system", Content: "sys"}, messages[0])
	assert.Equal(t, "q1", messages[1].Content)
	assert.Equal(t, "a1", messages[2].Content)
	assert.Equal(t, Message{Role: "user", Content: "q2"}, messages[3])

	// Without a system prompt the history leads.
	messages = FormatMessages("", "q", nil)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].Role)
}

func TestChatStreamDeliversDeltasInOrder(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"Hel", "lo ", "there"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	svc, err := NewService(&Config{RouterID: "router-a", Model: "m", APIKey: "k", BaseURL: upstream.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	contentCh, statsCh, errCh := svc.ChatStream(ctx, []Message{UserMessage("hi")})

	var got []string
	for delta := range contentCh {
		got = append(got, delta)
	}
	assert.Equal(t, []string{"Hel", "lo ", "there"}, got)

	require.NoError(t, <-errCh)
	stats := <-statsCh
	require.NotNil(t, stats)
	assert.GreaterOrEqual(t, stats.TotalDurationMs, int64(0))
}

func TestChatStreamSurfacesTransportFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	svc, err := NewService(&Config{RouterID: "router-a", Model: "m", APIKey: "k", BaseURL: upstream.URL})
	require.NoError(t, err)

	contentCh, _, errCh := svc.ChatStream(context.Background(), []Message{UserMessage("hi")})

	var got []string
	for delta := range contentCh {
		got = append(got, delta)
	}
	assert.Empty(t, got)
	assert.Error(t, <-errCh)
}

func TestChatReturnsContentAndStats(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`)
	}))
	defer upstream.Close()

	svc, err := NewService(&Config{RouterID: "router-a", Model: "m", APIKey: "k", BaseURL: upstream.URL})
	require.NoError(t, err)

	content, stats, err := svc.Chat(context.Background(), []Message{UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hi there", content)
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.TotalTokens)
}
