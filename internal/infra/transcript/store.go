// Package transcript persists conversation transcripts in the shared
// key-value store.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	chatUC "chatguard/internal/usecase/chat"
)

// KV is the subset of the shared store the transcript store needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store keeps each conversation as one JSON document. Good enough for
// launch-scale transcripts; a relational message table replaces this
// when conversations need pagination.
type Store struct {
	kv  KV
	ttl time.Duration
}

// NewStore creates a transcript store. ttl bounds how long idle
// conversations are kept; zero keeps them until deleted.
func NewStore(kv KV, ttl time.Duration) *Store {
	return &Store{kv: kv, ttl: ttl}
}

// Append adds messages to the end of the conversation transcript.
func (s *Store) Append(ctx context.Context, conversationID string, msgs ...chatUC.Message) error {
	existing, err := s.List(ctx, conversationID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(append(existing, msgs...))
	if err != nil {
		return fmt.Errorf("marshal transcript %s: %w", conversationID, err)
	}
	if err := s.kv.Set(ctx, transcriptKey(conversationID), data, s.ttl); err != nil {
		return fmt.Errorf("store transcript %s: %w", conversationID, err)
	}
	return nil
}

// List returns the transcript in insertion order. Unknown conversations
// yield an empty transcript.
func (s *Store) List(ctx context.Context, conversationID string) ([]chatUC.Message, error) {
	data, ok, err := s.kv.Get(ctx, transcriptKey(conversationID))
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", conversationID, err)
	}
	if !ok {
		return nil, nil
	}

	var msgs []chatUC.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", conversationID, err)
	}
	return msgs, nil
}

func transcriptKey(conversationID string) string {
	return "transcript:" + conversationID
}
