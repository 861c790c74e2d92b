// Package chat implements the chat use cases: producing an AI
// completion behind the dependency circuit breakers with retries,
// recording usage, and keeping conversation caches coherent.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"chatguard/internal/cache"
	"chatguard/internal/observability/tracing"
	"chatguard/internal/quota"
	"chatguard/internal/resilience/circuitbreaker"
	"chatguard/internal/resilience/retry"
)

// Completer produces an AI reply for a prompt. Implementations wrap
// the actual AI provider client.
type Completer interface {
	Complete(ctx context.Context, conversationID, prompt string) (string, error)
}

// Message is one entry in a conversation transcript.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStore persists conversation transcripts.
type MessageStore interface {
	Append(ctx context.Context, conversationID string, msgs ...Message) error
	List(ctx context.Context, conversationID string) ([]Message, error)
}

// SendInput represents the input parameters for sending a chat message.
type SendInput struct {
	UserID         string
	ConversationID string
	Prompt         string
}

// SendOutput carries the AI reply.
type SendOutput struct {
	Reply string
}

// Service provides the chat use cases. Calls to the AI provider run
// inside the AI circuit breaker; persistence runs inside the database
// breaker. Both are wrapped by the retry executor.
type Service struct {
	Completer Completer
	Messages  MessageStore

	AIBreaker *circuitbreaker.CircuitBreaker
	DBBreaker *circuitbreaker.CircuitBreaker
	AIRetry   retry.Config
	DBRetry   retry.Config

	Quota       *quota.Tracker
	Cache       *cache.Store
	Invalidator *cache.Coordinator
}

// Send produces a reply for the prompt, persists the exchange, and
// records the usage.
//
// Breaker-open errors surface immediately because the retry executor
// treats them as non-retryable. Usage tracking, persistence, and cache
// invalidation failures are logged but never fail a message that was
// already delivered.
func (s *Service) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "chat.send")
	defer span.End()

	var reply string
	err := retry.Do(ctx, s.AIRetry, func() error {
		res, err := s.AIBreaker.Execute(func() (any, error) {
			return s.Completer.Complete(ctx, in.ConversationID, in.Prompt)
		})
		if err != nil {
			return err
		}
		reply = res.(string)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete chat message: %w", err)
	}

	now := time.Now().UTC()
	if err := s.appendMessages(ctx, in.ConversationID,
		Message{Role: "user", Content: in.Prompt, CreatedAt: now},
		Message{Role: "assistant", Content: reply, CreatedAt: now},
	); err != nil {
		slog.Warn("transcript persistence failed after successful reply",
			slog.String("conversation_id", in.ConversationID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.Quota.Increment(ctx, in.UserID, estimateTokens(in.Prompt, reply)); err != nil {
		slog.Warn("usage recording failed after successful reply",
			slog.String("user_id", in.UserID),
			slog.String("error", err.Error()),
		)
	}

	if s.Invalidator != nil {
		if err := s.Invalidator.OnEvent(ctx, cache.Event{
			Type:           cache.EventMessageCreated,
			ConversationID: in.ConversationID,
			UserID:         in.UserID,
		}); err != nil {
			slog.Warn("cache invalidation failed",
				slog.String("conversation_id", in.ConversationID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &SendOutput{Reply: reply}, nil
}

// History returns the conversation transcript, served from cache when
// possible. Cache misses load through the database breaker; concurrent
// misses for the same conversation collapse into a single load.
func (s *Service) History(ctx context.Context, conversationID string) ([]Message, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "chat.history")
	defer span.End()

	load := func(ctx context.Context) (any, error) {
		var msgs []Message
		err := retry.Do(ctx, s.DBRetry, func() error {
			res, err := s.DBBreaker.Execute(func() (any, error) {
				return s.Messages.List(ctx, conversationID)
			})
			if err != nil {
				return err
			}
			msgs = res.([]Message)
			return nil
		})
		return msgs, err
	}

	var msgs []Message
	key := cache.Key(cache.PatternConversation, conversationID)
	if err := s.Cache.GetOrLoad(ctx, key, 0, &msgs, load); err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	return msgs, nil
}

// appendMessages writes the exchange through the database breaker.
func (s *Service) appendMessages(ctx context.Context, conversationID string, msgs ...Message) error {
	return retry.Do(ctx, s.DBRetry, func() error {
		_, err := s.DBBreaker.Execute(func() (any, error) {
			return nil, s.Messages.Append(ctx, conversationID, msgs...)
		})
		return err
	})
}

// estimateTokens approximates token usage from character counts.
// Providers report exact counts; this is the fallback when they don't.
func estimateTokens(prompt, reply string) int64 {
	chars := utf8.RuneCountInString(prompt) + utf8.RuneCountInString(reply)
	return int64(chars/4 + 1)
}
