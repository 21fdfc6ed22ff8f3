// Package llm turns user prompts into model replies.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/glebk/relay-bot/internal/metrics"
)

// User-facing replies
const (
	EmptyPromptReply = "Please enter a valid prompt"
	ApologyReply     = "⚠ An error occurred while generating a response. Please try again later."
)

// Generator produces a reply for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Responder wraps a Generator with a timeout and a fallback reply.
// It never returns an error; failures become ApologyReply.
type Responder struct {
	generator Generator
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewResponder creates a Responder
func NewResponder(generator Generator, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Responder {
	return &Responder{
		generator: generator,
		timeout:   timeout,
		metrics:   m,
		logger:    logger,
	}
}

// Respond returns the model reply or a fallback text
func (r *Responder) Respond(ctx context.Context, prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return EmptyPromptReply
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	reply, err := r.generator.Generate(ctx, prompt)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.metrics.ObserveLLM(metrics.ResultOK, elapsed)
		return reply
	case errors.Is(err, context.DeadlineExceeded):
		r.metrics.ObserveLLM(metrics.ResultTimeout, elapsed)
		r.logger.Warn("Model request timed out", "timeout", r.timeout, "error", err)
	default:
		r.metrics.ObserveLLM(metrics.ResultError, elapsed)
		r.logger.Error("Model request failed", "error", err)
	}

	return ApologyReply
}
