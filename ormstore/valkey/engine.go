package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/oauthkit/oauthkit/internal/util"
	"github.com/oauthkit/oauthkit/ormstore"
	"github.com/oauthkit/oauthkit/security"
)

// objectJSON is the stored representation of an entity.
type objectJSON struct {
	Attrs     ormstore.Attrs `json:"attrs"`
	ExpiresAt int64          `json:"expires_at,omitempty"`
}

func toObjectJSON(e *ormstore.Entity) *objectJSON {
	j := &objectJSON{Attrs: e.Attrs}
	if !e.ExpiresAt.IsZero() {
		j.ExpiresAt = e.ExpiresAt.Unix()
	}
	return j
}

func (j *objectJSON) entity(id string) *ormstore.Entity {
	e := &ormstore.Entity{ID: id, Attrs: j.Attrs}
	if e.Attrs == nil {
		e.Attrs = ormstore.Attrs{}
	}
	if j.ExpiresAt > 0 {
		e.ExpiresAt = time.Unix(j.ExpiresAt, 0).UTC()
	}
	return e
}

// engine implements ormstore.Engine for one kind.
type engine struct {
	store *Store
	kind  ormstore.Kind
}

// ============================================================
// Key helpers
// ============================================================

// allKey returns the kind's ID set key: {prefix}{kind}:__all__
func (e *engine) allKey() string {
	return fmt.Sprintf("%s%s:__all__", e.store.prefix, e.kind.Name)
}

// objectKey returns an entity blob key: {prefix}{kind}:object:{id}
func (e *engine) objectKey(id string) string {
	return fmt.Sprintf("%s%s:object:%s", e.store.prefix, e.kind.Name, id)
}

// tagSnapshotKey returns an entity's saved-tag set key:
// {prefix}{kind}:object:{id}:tags
func (e *engine) tagSnapshotKey(id string) string {
	return fmt.Sprintf("%s%s:object:%s:tags", e.store.prefix, e.kind.Name, id)
}

// tagIndexPrefix returns the common prefix of tag index keys:
// {prefix}{kind}:tags:
func (e *engine) tagIndexPrefix() string {
	return fmt.Sprintf("%s%s:tags:", e.store.prefix, e.kind.Name)
}

// ============================================================
// Engine operations
// ============================================================

// ReserveID generates random IDs until SADD reports a newly added member.
func (e *engine) ReserveID(ctx context.Context) (id string, err error) {
	ctx, span := e.store.startSpan(ctx, "reserve_id")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "reserve_id", err, start) }()

	key := e.allKey()
	for attempt := 0; attempt < ormstore.DefaultReserveAttempts; attempt++ {
		candidate := security.RandomString(e.kind.IDLength)
		added, aerr := e.store.client.Do(ctx,
			e.store.client.B().Sadd().Key(key).Member(candidate).Build(),
		).AsInt64()
		if aerr != nil {
			err = fmt.Errorf("failed to reserve ID: %w", aerr)
			return "", err
		}
		if added != 0 {
			return candidate, nil
		}
	}
	err = fmt.Errorf("%w: kind %q", ormstore.ErrIDExhausted, e.kind.Name)
	return "", err
}

// Get fetches an entity blob. Missing keys and past-deadline entities are
// both reported as absent.
func (e *engine) Get(ctx context.Context, id string) (entity *ormstore.Entity, err error) {
	ctx, span := e.store.startSpan(ctx, "get")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "get", err, start) }()

	data, gerr := e.store.client.Do(ctx,
		e.store.client.B().Get().Key(e.objectKey(id)).Build(),
	).ToString()
	if gerr != nil {
		if isNilError(gerr) {
			return nil, nil
		}
		err = fmt.Errorf("failed to get entity: %w", gerr)
		return nil, err
	}

	var j objectJSON
	if uerr := json.Unmarshal([]byte(data), &j); uerr != nil {
		err = fmt.Errorf("failed to unmarshal entity: %w", uerr)
		return nil, err
	}

	entity = j.entity(id)
	// The store reaps expired blobs on its own schedule; a blob read between
	// its deadline and the reap still counts as absent.
	if entity.Expired(time.Now().UTC()) {
		return nil, nil
	}
	return entity, nil
}

// Save reserves an ID when needed and runs the atomic save batch.
func (e *engine) Save(ctx context.Context, entity *ormstore.Entity) (err error) {
	if entity == nil {
		return fmt.Errorf("valkey: nil entity")
	}

	if entity.ID == "" {
		entity.ID, err = e.ReserveID(ctx)
		if err != nil {
			return err
		}
	}

	ctx, span := e.store.startSpan(ctx, "save")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "save", err, start) }()

	blob, merr := json.Marshal(toObjectJSON(entity))
	if merr != nil {
		err = fmt.Errorf("failed to marshal entity: %w", merr)
		return err
	}

	var deadline int64
	if !entity.ExpiresAt.IsZero() {
		deadline = entity.ExpiresAt.Unix()
	}

	args := []string{
		entity.ID,
		string(blob),
		strconv.FormatInt(deadline, 10),
		e.tagIndexPrefix(),
	}
	args = append(args, e.kind.Tags(entity.Attrs)...)

	if serr := e.store.client.Do(ctx,
		e.store.client.B().Eval().Script(luaSaveEntity).
			Numkeys(3).
			Key(e.allKey(), e.objectKey(entity.ID), e.tagSnapshotKey(entity.ID)).
			Arg(args...).
			Build(),
	).Error(); serr != nil {
		err = fmt.Errorf("failed to save entity: %w", serr)
		return err
	}

	e.store.logger.Debug("Saved entity",
		"kind", e.kind.Name,
		"id_prefix", util.SafeTruncate(entity.ID, idLogLength))
	return nil
}

// Delete runs the atomic delete batch and reports whether the entity
// existed.
func (e *engine) Delete(ctx context.Context, id string) (existed bool, err error) {
	ctx, span := e.store.startSpan(ctx, "delete")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "delete", err, start) }()

	n, derr := e.store.client.Do(ctx,
		e.store.client.B().Eval().Script(luaDeleteEntity).
			Numkeys(3).
			Key(e.allKey(), e.objectKey(id), e.tagSnapshotKey(id)).
			Arg(id, e.tagIndexPrefix()).
			Build(),
	).AsInt64()
	if derr != nil {
		err = fmt.Errorf("failed to delete entity: %w", derr)
		return false, err
	}

	existed = n != 0
	e.store.logger.Debug("Deleted entity",
		"kind", e.kind.Name,
		"id_prefix", util.SafeTruncate(id, idLogLength),
		"existed", existed)
	return existed, nil
}

// Find intersects the tag index sets for the given attribute equalities and
// loads the matching entities. Entities that expired between indexing and
// the read are filtered out by Get.
func (e *engine) Find(ctx context.Context, attrs ormstore.Attrs) (entities []*ormstore.Entity, err error) {
	ctx, span := e.store.startSpan(ctx, "find")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "find", err, start) }()

	if !e.kind.Tagged {
		err = fmt.Errorf("%w: %q", ormstore.ErrKindNotTagged, e.kind.Name)
		return nil, err
	}
	tags := e.kind.Tags(attrs)
	if len(tags) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = e.tagIndexPrefix() + tag
	}

	ids, serr := e.store.client.Do(ctx,
		e.store.client.B().Sinter().Key(keys...).Build(),
	).AsStrSlice()
	if serr != nil {
		err = fmt.Errorf("failed to intersect tag indexes: %w", serr)
		return nil, err
	}

	for _, id := range ids {
		entity, gerr := e.Get(ctx, id)
		if gerr != nil {
			err = gerr
			return nil, err
		}
		if entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

// All enumerates the kind's ID set and loads every live entity.
func (e *engine) All(ctx context.Context) (entities []*ormstore.Entity, err error) {
	ctx, span := e.store.startSpan(ctx, "all")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "all", err, start) }()

	ids, serr := e.store.client.Do(ctx,
		e.store.client.B().Smembers().Key(e.allKey()).Build(),
	).AsStrSlice()
	if serr != nil {
		err = fmt.Errorf("failed to enumerate entities: %w", serr)
		return nil, err
	}

	for _, id := range ids {
		entity, gerr := e.Get(ctx, id)
		if gerr != nil {
			err = gerr
			return nil, err
		}
		if entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

// FullCleanup deletes every key under the kind's namespace via SCAN.
func (e *engine) FullCleanup(ctx context.Context) (err error) {
	ctx, span := e.store.startSpan(ctx, "full_cleanup")
	start := time.Now()
	defer func() { e.store.record(ctx, span, "full_cleanup", err, start) }()

	pattern := fmt.Sprintf("%s%s:*", e.store.prefix, e.kind.Name)

	var cursor uint64
	for {
		result, serr := e.store.client.Do(ctx,
			e.store.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if serr != nil {
			err = fmt.Errorf("failed to scan kind namespace: %w", serr)
			return err
		}

		if len(result.Elements) > 0 {
			if derr := e.store.client.Do(ctx,
				e.store.client.B().Del().Key(result.Elements...).Build(),
			).Error(); derr != nil {
				err = fmt.Errorf("failed to delete keys: %w", derr)
				return err
			}
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	e.store.logger.Debug("Cleaned up kind", "kind", e.kind.Name)
	return nil
}
