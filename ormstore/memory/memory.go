// Package memory provides an in-memory implementation of the ormstore
// engine.
//
// The store keeps every kind in mutex-guarded maps and mirrors the key
// layout of the valkey backend (ID set, object record, tag snapshot, tag
// index). It is suitable for development, testing, and single-instance
// deployments where persistence is not required; production deployments
// should use ormstore/valkey.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/internal/util"
	"github.com/oauthkit/oauthkit/ormstore"
	"github.com/oauthkit/oauthkit/security"
)

// idLogLength is the number of characters of an entity ID included in logs.
const idLogLength = 8

// object is the stored representation of one entity.
type object struct {
	attrs     ormstore.Attrs
	expiresAt time.Time
	tags      map[string]struct{}
}

// kindState holds every record of one kind.
type kindState struct {
	ids      map[string]struct{}
	objects  map[string]*object
	tagIndex map[string]map[string]struct{}
}

func newKindState() *kindState {
	return &kindState{
		ids:      make(map[string]struct{}),
		objects:  make(map[string]*object),
		tagIndex: make(map[string]map[string]struct{}),
	}
}

// Store is an in-memory implementation of ormstore.Provider.
type Store struct {
	mu    sync.RWMutex
	kinds map[string]*kindState

	logger *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// now is swappable for tests.
	now func() time.Time
}

var _ ormstore.Provider = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		kinds:  make(map[string]*kindState),
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetInstrumentation enables metrics and tracing for the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// SetClock overrides the store's time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Engine returns the engine bound to the given kind.
func (s *Store) Engine(kind ormstore.Kind) ormstore.Engine {
	return &engine{store: s, kind: kind}
}

// state returns the kind's record maps, creating them on first use.
// Callers must hold the write lock.
func (s *Store) state(kind ormstore.Kind) *kindState {
	ks, ok := s.kinds[kind.Name]
	if !ok {
		ks = newKindState()
		s.kinds[kind.Name] = ks
	}
	return ks
}

// startSpan opens a storage-operation span when tracing is enabled.
func (s *Store) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation))
}

// record finishes a storage-operation span and records the metrics pair.
func (s *Store) record(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	if s.instrumentation == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	durationMs := float64(time.Since(start).Milliseconds())
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

// engine implements ormstore.Engine for one kind.
type engine struct {
	store *Store
	kind  ormstore.Kind
}

// ReserveID generates a random ID and atomically registers it in the kind's
// ID set, retrying on collision.
func (e *engine) ReserveID(ctx context.Context) (id string, err error) {
	ctx, span := e.store.startSpan(ctx, "reserve_id")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "reserve_id", err, start) }()

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	id, err = e.reserveIDLocked()
	return id, err
}

// reserveIDLocked is ReserveID without locking, for reuse inside Save.
func (e *engine) reserveIDLocked() (string, error) {
	ks := e.store.state(e.kind)
	for attempt := 0; attempt < ormstore.DefaultReserveAttempts; attempt++ {
		id := security.RandomString(e.kind.IDLength)
		if _, taken := ks.ids[id]; !taken {
			ks.ids[id] = struct{}{}
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: kind %q", ormstore.ErrIDExhausted, e.kind.Name)
}

// Get fetches an entity snapshot. Expired entities are reaped and reported
// absent.
func (e *engine) Get(ctx context.Context, id string) (entity *ormstore.Entity, err error) {
	ctx, span := e.store.startSpan(ctx, "get")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "get", err, start) }()

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	return e.getLocked(id), nil
}

func (e *engine) getLocked(id string) *ormstore.Entity {
	ks := e.store.state(e.kind)
	obj, ok := ks.objects[id]
	if !ok {
		return nil
	}
	if !obj.expiresAt.IsZero() && !e.store.now().Before(obj.expiresAt) {
		e.removeLocked(ks, id)
		return nil
	}
	return &ormstore.Entity{
		ID:        id,
		Attrs:     obj.attrs.Clone(),
		ExpiresAt: obj.expiresAt,
	}
}

// Save writes the attribute snapshot and applies the tag delta against the
// previously saved snapshot.
func (e *engine) Save(ctx context.Context, entity *ormstore.Entity) (err error) {
	ctx, span := e.store.startSpan(ctx, "save")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "save", err, start) }()

	if entity == nil {
		return fmt.Errorf("memory: nil entity")
	}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	ks := e.store.state(e.kind)

	if entity.ID == "" {
		entity.ID, err = e.reserveIDLocked()
		if err != nil {
			return err
		}
	} else {
		ks.ids[entity.ID] = struct{}{}
	}

	newTags := make(map[string]struct{})
	for _, tag := range e.kind.Tags(entity.Attrs) {
		newTags[tag] = struct{}{}
	}

	if old, ok := ks.objects[entity.ID]; ok {
		for tag := range old.tags {
			if _, keep := newTags[tag]; !keep {
				e.dropTagLocked(ks, tag, entity.ID)
			}
		}
	}
	for tag := range newTags {
		idx, ok := ks.tagIndex[tag]
		if !ok {
			idx = make(map[string]struct{})
			ks.tagIndex[tag] = idx
		}
		idx[entity.ID] = struct{}{}
	}

	ks.objects[entity.ID] = &object{
		attrs:     entity.Attrs.Clone(),
		expiresAt: entity.ExpiresAt,
		tags:      newTags,
	}

	e.store.logger.Debug("Saved entity",
		"kind", e.kind.Name,
		"id_prefix", util.SafeTruncate(entity.ID, idLogLength))
	return nil
}

// Delete removes the entity and reports whether one actually existed. The
// membership test and removal happen under a single critical section, which
// gives the same at-most-once guarantee as the valkey backend's Lua script.
func (e *engine) Delete(ctx context.Context, id string) (existed bool, err error) {
	ctx, span := e.store.startSpan(ctx, "delete")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "delete", err, start) }()

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	ks := e.store.state(e.kind)
	obj, ok := ks.objects[id]
	if ok && !obj.expiresAt.IsZero() && !e.store.now().Before(obj.expiresAt) {
		// Past-deadline entities count as already gone.
		ok = false
	}
	e.removeLocked(ks, id)

	e.store.logger.Debug("Deleted entity",
		"kind", e.kind.Name,
		"id_prefix", util.SafeTruncate(id, idLogLength),
		"existed", ok)
	return ok, nil
}

func (e *engine) removeLocked(ks *kindState, id string) {
	if obj, ok := ks.objects[id]; ok {
		for tag := range obj.tags {
			e.dropTagLocked(ks, tag, id)
		}
	}
	delete(ks.objects, id)
	delete(ks.ids, id)
}

func (e *engine) dropTagLocked(ks *kindState, tag, id string) {
	if idx, ok := ks.tagIndex[tag]; ok {
		delete(idx, id)
		if len(idx) == 0 {
			delete(ks.tagIndex, tag)
		}
	}
}

// Find intersects the tag index sets for the given attribute equalities.
func (e *engine) Find(ctx context.Context, attrs ormstore.Attrs) (entities []*ormstore.Entity, err error) {
	ctx, span := e.store.startSpan(ctx, "find")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "find", err, start) }()

	if !e.kind.Tagged {
		return nil, fmt.Errorf("%w: %q", ormstore.ErrKindNotTagged, e.kind.Name)
	}
	tags := e.kind.Tags(attrs)
	if len(tags) == 0 {
		return nil, nil
	}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	ks := e.store.state(e.kind)
	var ids map[string]struct{}
	for _, tag := range tags {
		idx := ks.tagIndex[tag]
		if len(idx) == 0 {
			return nil, nil
		}
		if ids == nil {
			ids = make(map[string]struct{}, len(idx))
			for id := range idx {
				ids[id] = struct{}{}
			}
			continue
		}
		for id := range ids {
			if _, ok := idx[id]; !ok {
				delete(ids, id)
			}
		}
	}

	for id := range ids {
		if entity := e.getLocked(id); entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

// All enumerates every live entity of the kind.
func (e *engine) All(ctx context.Context) (entities []*ormstore.Entity, err error) {
	ctx, span := e.store.startSpan(ctx, "all")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "all", err, start) }()

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	ks := e.store.state(e.kind)
	ids := make([]string, 0, len(ks.ids))
	for id := range ks.ids {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if entity := e.getLocked(id); entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

// FullCleanup drops every record of the kind.
func (e *engine) FullCleanup(ctx context.Context) (err error) {
	ctx, span := e.store.startSpan(ctx, "full_cleanup")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "full_cleanup", err, start) }()

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	delete(e.store.kinds, e.kind.Name)
	e.store.logger.Debug("Cleaned up kind", "kind", e.kind.Name)
	return nil
}
