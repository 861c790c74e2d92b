package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// Pattern names a family of cache keys built from one identifier.
type Pattern string

// Cache key patterns for the chat domain. The format string receives
// the identifier.
const (
	PatternConversation      Pattern = "conversation:%s"
	PatternUserConversations Pattern = "user_conversations:%s"
	PatternUserProfile       Pattern = "user_profile:%s"
	PatternUsageStatus       Pattern = "usage_status:%s"
	PatternSubscription      Pattern = "subscription:%s"
)

// Dependent identifies a secondary key family invalidated alongside a
// primary one.
type Dependent struct {
	Pattern    Pattern
	Identifier string
}

// EventType names a domain mutation the coordinator knows how to map
// to cache keys.
type EventType string

// Recognized domain events.
const (
	EventMessageCreated      EventType = "message.created"
	EventConversationUpdated EventType = "conversation.updated"
	EventConversationDeleted EventType = "conversation.deleted"
	EventSubscriptionChanged EventType = "subscription.changed"
)

// Event is an ephemeral invalidation request: a domain mutation plus
// the identifiers needed to derive the affected keys. Events are
// consumed synchronously when the mutation happens, never stored.
type Event struct {
	Type           EventType
	ConversationID string
	UserID         string
}

// Coordinator maps domain events to the cache keys they stale out.
//
// The strategy is deliberately coarse: invalidate broadly, recompute
// lazily. A write to a conversation clears both the conversation entry
// and the owner's conversation-list entry, accepting extra misses in
// exchange for never serving stale aggregates.
type Coordinator struct {
	cache *Store
}

// NewCoordinator creates an invalidation coordinator over cache.
func NewCoordinator(cache *Store) *Coordinator {
	return &Coordinator{cache: cache}
}

// Key builds the cache key for a pattern and identifier.
func Key(pattern Pattern, identifier string) string {
	return fmt.Sprintf(string(pattern), identifier)
}

// Invalidate deletes the cache key for (pattern, identifier).
func (c *Coordinator) Invalidate(ctx context.Context, pattern Pattern, identifier string) error {
	return c.InvalidateWithDependencies(ctx, pattern, identifier, nil)
}

// InvalidateWithDependencies deletes the primary key for
// (pattern, identifier) and then every dependent key, in listed order.
// Transitive chains are expressed by listing the full closure in
// dependents; the coordinator does not recurse.
func (c *Coordinator) InvalidateWithDependencies(ctx context.Context, pattern Pattern, identifier string, dependents []Dependent) error {
	keys := make([]string, 0, 1+len(dependents))
	keys = append(keys, Key(pattern, identifier))
	for _, dep := range dependents {
		keys = append(keys, Key(dep.Pattern, dep.Identifier))
	}

	if err := c.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate %s: %w", keys[0], err)
	}

	slog.Debug("cache invalidated",
		slog.String("primary", keys[0]),
		slog.Int("dependents", len(dependents)))
	return nil
}

// OnEvent applies the invalidation set for a domain event.
//
// The mappings encode the domain's dependency chains:
//   - message.created / conversation.updated: the conversation entry
//     plus the owner's conversation list.
//   - conversation.deleted: same as updated; the list must drop the row.
//   - subscription.changed: the user's subscription, profile, and usage
//     status entries, since all three render tier-derived data.
func (c *Coordinator) OnEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventMessageCreated, EventConversationUpdated, EventConversationDeleted:
		return c.InvalidateWithDependencies(ctx, PatternConversation, ev.ConversationID, []Dependent{
			{Pattern: PatternUserConversations, Identifier: ev.UserID},
			{Pattern: PatternUsageStatus, Identifier: ev.UserID},
		})
	case EventSubscriptionChanged:
		return c.InvalidateWithDependencies(ctx, PatternSubscription, ev.UserID, []Dependent{
			{Pattern: PatternUserProfile, Identifier: ev.UserID},
			{Pattern: PatternUsageStatus, Identifier: ev.UserID},
		})
	default:
		return fmt.Errorf("unrecognized invalidation event type %q", ev.Type)
	}
}
