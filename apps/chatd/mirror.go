package main

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// presenceMirror is the best-effort reachability view behind
// /parties/online. The in-process registry stays the source of truth for
// delivery decisions; the mirror only serves reads.
type presenceMirror interface {
	MarkOnline(ctx context.Context, partyID string) error
	MarkOffline(ctx context.Context, partyID string) error
	Online(ctx context.Context) ([]string, error)
}

type redisMirror struct {
	client *redis.Client
}

func newRedisMirror(client *redis.Client) *redisMirror {
	return &redisMirror{client: client}
}

func (m *redisMirror) MarkOnline(ctx context.Context, partyID string) error {
	return m.client.SAdd(ctx, onlinePartiesKey, partyID).Err()
}

func (m *redisMirror) MarkOffline(ctx context.Context, partyID string) error {
	return m.client.SRem(ctx, onlinePartiesKey, partyID).Err()
}

func (m *redisMirror) Online(ctx context.Context) ([]string, error) {
	return m.client.SMembers(ctx, onlinePartiesKey).Result()
}
