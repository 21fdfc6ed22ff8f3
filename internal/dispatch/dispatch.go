// Package dispatch splits long responses into message-sized chunks and
// sends them in order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// DefaultLimit keeps chunks below Telegram's 4096 character message cap
const DefaultLimit = 4000

// Sender delivers one chunk to the user
type Sender interface {
	Send(ctx context.Context, chunk string) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, chunk string) error

func (f SenderFunc) Send(ctx context.Context, chunk string) error {
	return f(ctx, chunk)
}

// Chunk splits text into consecutive pieces of at most limit runes.
// Empty text yields no chunks. Word and markup boundaries are not preserved.
func Chunk(text string, limit int) []string {
	if text == "" || limit <= 0 {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	start, count := 0, 0
	for i := range text {
		if count == limit {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	chunks = append(chunks, text[start:])

	return chunks
}

// Dispatcher sends chunked responses through a Sender
type Dispatcher struct {
	limit int
}

// New creates a Dispatcher with the given chunk size
func New(limit int) (*Dispatcher, error) {
	if limit <= 0 {
		return nil, errors.New("chunk limit must be positive")
	}
	return &Dispatcher{limit: limit}, nil
}

// Limit returns the chunk size
func (d *Dispatcher) Limit() int {
	return d.limit
}

// Dispatch sends text in order and stops at the first failure. It returns
// the number of chunks delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, sender Sender, text string) (int, error) {
	sent := 0
	for _, chunk := range Chunk(text, d.limit) {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := sender.Send(ctx, chunk); err != nil {
			return sent, fmt.Errorf("failed to send chunk %d: %w", sent+1, err)
		}
		sent++
	}

	return sent, nil
}
