package ormstore

import (
	"context"
	"errors"
)

// DefaultReserveAttempts bounds the number of random IDs tried before
// ReserveID gives up. Ten collisions in a row signal that the ID corpus is
// far too small for the kind's population; at production ID lengths this is
// effectively unreachable.
const DefaultReserveAttempts = 10

// ErrIDExhausted is returned by ReserveID when every attempt collided with
// an existing ID.
var ErrIDExhausted = errors.New("ormstore: unable to reserve a unique ID")

// ErrKindNotTagged is returned by Find on kinds without a tag index.
var ErrKindNotTagged = errors.New("ormstore: kind is not tagged")

// Engine is the per-kind storage engine. Implementations must make ReserveID
// and Delete atomic with respect to concurrent callers: membership tests and
// mutations are a single store-side operation, never a check followed by a
// separate write.
//
// Every operation is a blocking round trip to the backing store; callers
// must not hold in-process locks across calls.
type Engine interface {
	// ReserveID generates a random alphanumeric ID of the kind's configured
	// length and atomically registers it in the kind's ID set. It retries on
	// collision up to DefaultReserveAttempts and then fails with
	// ErrIDExhausted.
	ReserveID(ctx context.Context) (string, error)

	// Get fetches the entity with the given ID. Absence is a normal outcome
	// reported as (nil, nil); an entity past its deadline is reported absent
	// regardless of whether the store has reaped it yet.
	Get(ctx context.Context, id string) (*Entity, error)

	// Save persists the entity, reserving an ID first when it has none. For
	// tagged kinds the tag delta against the previously saved snapshot is
	// applied as a single atomic batch. Saving unchanged attributes is a
	// no-op on the indexes.
	Save(ctx context.Context, e *Entity) error

	// Delete atomically removes the entity, its ID-set membership, and every
	// tag index entry, and reports whether an entity actually existed. The
	// returned flag is the sole gate for at-most-once redemption semantics.
	Delete(ctx context.Context, id string) (bool, error)

	// Find returns the entities whose attributes match every given equality
	// (AND via tag-set intersection). OR across predicates is the caller's
	// concern: issue separate calls and union the results.
	Find(ctx context.Context, attrs Attrs) ([]*Entity, error)

	// All enumerates every live entity of the kind. A fresh call re-reads
	// the store.
	All(ctx context.Context) ([]*Entity, error)

	// FullCleanup deletes every key under the kind's namespace. Reserved for
	// tests and administrative tooling; protocol logic never calls it.
	FullCleanup(ctx context.Context) error
}

// Provider hands out engines bound to entity kinds. Both storage backends
// implement it.
type Provider interface {
	Engine(kind Kind) Engine
}
