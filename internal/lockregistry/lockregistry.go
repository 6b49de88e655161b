// Package lockregistry implements the Lock Registry (spec §4.3): short-lived
// named locks with owner tags, used as a UX throttle during quantity
// selection. It is not a correctness primitive — the database conditional
// update in the Booking Engine is the real serialization point (spec §9).
package lockregistry

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ticketconcierge/pkg/logger"
)

// Registry is the Lock Registry contract (spec §4.3).
type Registry interface {
	Acquire(ctx context.Context, resource string, ttl time.Duration, ownerTag string) bool
	ReleaseOwned(ctx context.Context, resource, ownerTag string) bool
	ForceRelease(ctx context.Context, resource string)
}

type registry struct {
	client *redis.Client
	log    *logger.Logger
}

func NewRegistry(client *redis.Client, log *logger.Logger) Registry {
	return &registry{client: client, log: log}
}

func lockKey(resource string) string {
	return "ticketconcierge:lock:" + resource
}

// Acquire is a set-if-absent with expiry. When the backing store is
// unreachable it degrades open (returns true): this is intentional and safe
// because the authoritative consistency barrier lives in the database
// conditional update in the Booking Engine, not here.
func (r *registry) Acquire(ctx context.Context, resource string, ttl time.Duration, ownerTag string) bool {
	ok, err := r.client.SetNX(ctx, lockKey(resource), ownerTag, ttl).Result()
	if err != nil {
		r.log.LogLockDegraded(ctx, resource, err)
		return true
	}
	return ok
}

// ReleaseOwned is a read-then-delete compare-and-delete. A race between the
// read and the delete is acceptable here: the guarantee needed is "releaser
// was the owner at some point", not mutual exclusion with a concurrent
// acquire (spec §4.3).
func (r *registry) ReleaseOwned(ctx context.Context, resource, ownerTag string) bool {
	current, err := r.client.Get(ctx, lockKey(resource)).Result()
	if err != nil {
		return false
	}
	if current != ownerTag {
		return false
	}
	return r.client.Del(ctx, lockKey(resource)).Err() == nil
}

// ForceRelease unconditionally deletes the lock.
func (r *registry) ForceRelease(ctx context.Context, resource string) {
	r.client.Del(ctx, lockKey(resource))
}
