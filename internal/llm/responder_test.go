package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/glebk/relay-bot/internal/logger"
	"github.com/glebk/relay-bot/internal/metrics"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func newResponder(g Generator, timeout time.Duration) *Responder {
	return NewResponder(g, timeout, metrics.New(), logger.Discard())
}

func TestRespond_ReturnsReply(t *testing.T) {
	var got string
	r := newResponder(generatorFunc(func(_ context.Context, prompt string) (string, error) {
		got = prompt
		return "hi there", nil
	}), time.Second)

	assert.Equal(t, "hi there", r.Respond(context.Background(), "  hello  "))
	assert.Equal(t, "hello", got)
}

func TestRespond_EmptyPrompt(t *testing.T) {
	called := false
	r := newResponder(generatorFunc(func(context.Context, string) (string, error) {
		called = true
		return "", nil
	}), time.Second)

	assert.Equal(t, EmptyPromptReply, r.Respond(context.Background(), "   "))
	assert.False(t, called)
}

func TestRespond_ErrorBecomesApology(t *testing.T) {
	r := newResponder(generatorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("upstream 503")
	}), time.Second)

	assert.Equal(t, ApologyReply, r.Respond(context.Background(), "hello"))
}

func TestRespond_Timeout(t *testing.T) {
	r := newResponder(generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 20*time.Millisecond)

	start := time.Now()
	assert.Equal(t, ApologyReply, r.Respond(context.Background(), "hello"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCandidateText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: " Hello"},
				{Text: ", world "},
			}},
		}},
	}

	assert.Equal(t, "Hello, world", candidateText(resp))
	assert.Empty(t, candidateText(&genai.GenerateContentResponse{}))
	assert.Empty(t, candidateText(nil))
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "")
	assert.Error(t, err)
}
