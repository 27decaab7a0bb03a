// Package reconcile applies a desired member list to a stored association
// collection, either incrementally or by overwriting it.
//
// Every removal leaves a tombstone naming the actor and the sync source.
// Re-adding a link that another source removed is reported as a Conflict and
// skipped until the tombstone expires or is cleared by its own source.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"journal-sync/internal/contextutil"
	"journal-sync/internal/errs"
	"journal-sync/internal/resolver"
	"journal-sync/internal/storage"
)

// Mode selects how a desired list is applied.
type Mode string

const (
	// Incremental adds what is missing and removes only what is listed for
	// removal.
	Incremental Mode = "incremental"
	// Overwrite makes the collection equal to the desired list.
	Overwrite Mode = "overwrite"
)

// ParseMode accepts "incremental" or "overwrite" in any case. Empty input
// means incremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Incremental:
		return Incremental, nil
	case Overwrite:
		return Overwrite, nil
	}
	return "", errs.Invalid("mode", "unknown reconciliation mode %q", s)
}

// Conflict is an add that was skipped because another sync source removed
// the same link.
type Conflict struct {
	Relation   string    `json:"relation"`
	OwnerID    int64     `json:"owner_id"`
	MemberID   int64     `json:"member_id"`
	RemovedBy  string    `json:"removed_by"`
	SyncSource string    `json:"sync_source"`
	RemovedAt  time.Time `json:"removed_at"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %d->%d removed by %s on %s", c.Relation, c.OwnerID, c.MemberID, c.RemovedBy, c.SyncSource)
}

// Result lists what a reconciliation changed.
type Result struct {
	Added     []int64
	Removed   []int64
	Conflicts []Conflict
}

// Merge appends other into r.
func (r *Result) Merge(other Result) {
	r.Added = append(r.Added, other.Added...)
	r.Removed = append(r.Removed, other.Removed...)
	r.Conflicts = append(r.Conflicts, other.Conflicts...)
}

// Reconciler applies member lists on behalf of one actor and sync source.
type Reconciler struct {
	// Actor is recorded as the remover on tombstones.
	Actor string
	// Source identifies the replica doing the writes.
	Source string
	// TTL bounds how long tombstones block re-adds. Zero keeps them forever.
	TTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates a Reconciler.
func New(actor, source string, ttl time.Duration) *Reconciler {
	return &Reconciler{Actor: actor, Source: source, TTL: ttl, Now: time.Now}
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Apply reconciles the members of owner in rel against desired. In
// Incremental mode remove lists members to unlink; in Overwrite mode remove
// is ignored and every member not in desired is unlinked.
func (r *Reconciler) Apply(ctx context.Context, q storage.DBTX, rel storage.Relation, owner int64, mode Mode, desired, remove []int64) (Result, error) {
	links := storage.NewLinkRepo(q)
	current, err := links.Members(ctx, rel, owner)
	if err != nil {
		return Result{}, err
	}
	present := toSet(current)

	var res Result
	switch mode {
	case Overwrite:
		want := toSet(desired)
		if err := links.Clear(ctx, rel, owner); err != nil {
			return Result{}, err
		}
		for _, id := range current {
			if !want[id] {
				if err := r.tombstone(ctx, q, rel, owner, id, "dropped by overwrite"); err != nil {
					return Result{}, err
				}
				res.Removed = append(res.Removed, id)
			}
		}
		// Existing members go back in their original order first.
		for _, id := range current {
			if want[id] {
				if _, err := links.Add(ctx, rel, owner, id); err != nil {
					return Result{}, err
				}
			}
		}
		for _, id := range dedupe(desired) {
			if present[id] {
				continue
			}
			if err := r.add(ctx, q, rel, owner, id, &res); err != nil {
				return Result{}, err
			}
		}

	case Incremental:
		drop := toSet(remove)
		for _, id := range dedupe(remove) {
			removed, err := links.Remove(ctx, rel, owner, id)
			if err != nil {
				return Result{}, err
			}
			if !removed {
				continue
			}
			if err := r.tombstone(ctx, q, rel, owner, id, "removed by incremental update"); err != nil {
				return Result{}, err
			}
			res.Removed = append(res.Removed, id)
		}
		for _, id := range dedupe(desired) {
			if drop[id] || present[id] {
				continue
			}
			if err := r.add(ctx, q, rel, owner, id, &res); err != nil {
				return Result{}, err
			}
		}

	default:
		return Result{}, errs.Invalid("mode", "unknown reconciliation mode %q", mode)
	}

	if len(res.Added) > 0 || len(res.Removed) > 0 || len(res.Conflicts) > 0 {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "reconciled relation",
			"relation", rel.Table,
			"owner_id", owner,
			"mode", string(mode),
			"added", len(res.Added),
			"removed", len(res.Removed),
			"conflicts", len(res.Conflicts),
		)
	}
	return res, nil
}

// add links id unless a live tombstone from another source blocks it.
func (r *Reconciler) add(ctx context.Context, q storage.DBTX, rel storage.Relation, owner, id int64, res *Result) error {
	tombstones := storage.NewTombstoneRepo(q)
	ts, err := tombstones.Get(ctx, rel, owner, id)
	switch {
	case err == nil:
		if ts.Live(r.now()) && ts.SyncSource != r.Source {
			res.Conflicts = append(res.Conflicts, Conflict{
				Relation:   rel.Table,
				OwnerID:    owner,
				MemberID:   id,
				RemovedBy:  ts.RemovedBy,
				SyncSource: ts.SyncSource,
				RemovedAt:  ts.RemovedAt,
			})
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "skipping add blocked by tombstone",
				"relation", rel.Table,
				"owner_id", owner,
				"member_id", id,
				"sync_source", ts.SyncSource,
			)
			return nil
		}
		if err := tombstones.Delete(ctx, rel, owner, id); err != nil {
			return err
		}
	case !isNotFound(err):
		return err
	}

	added, err := storage.NewLinkRepo(q).Add(ctx, rel, owner, id)
	if err != nil {
		return err
	}
	if added {
		res.Added = append(res.Added, id)
	}
	return nil
}

func (r *Reconciler) tombstone(ctx context.Context, q storage.DBTX, rel storage.Relation, owner, id int64, reason string) error {
	now := r.now()
	ts := &storage.Tombstone{
		Table:      rel.Table,
		LeftID:     owner,
		RightID:    id,
		RemovedAt:  now,
		RemovedBy:  r.Actor,
		SyncSource: r.Source,
		Reason:     reason,
	}
	if r.TTL > 0 {
		expires := now.Add(r.TTL)
		ts.ExpiresAt = &expires
	}
	return storage.NewTombstoneRepo(q).Upsert(ctx, ts)
}

// ApplyRefs resolves desired (creating missing entities) and remove (never
// creating) through kind, then applies the ids. Removal references that do
// not exist are no-ops.
func ApplyRefs[K any](ctx context.Context, q storage.DBTX, r *Reconciler, rel storage.Relation, owner int64, mode Mode,
	kind resolver.Kind[K], desired, remove []resolver.Ref[K]) (Result, error) {
	want := make([]int64, 0, len(desired))
	for _, ref := range desired {
		id, err := resolver.Resolve(ctx, q, kind, ref)
		if err != nil {
			return Result{}, err
		}
		want = append(want, id)
	}

	var drop []int64
	if mode == Incremental {
		for _, ref := range remove {
			id, ok, err := resolver.Find(ctx, q, kind, ref)
			if err != nil {
				return Result{}, err
			}
			if ok {
				drop = append(drop, id)
			}
		}
	}
	return r.Apply(ctx, q, rel, owner, mode, want, drop)
}

// Keys wraps natural keys as references.
func Keys[K any](keys []K) []resolver.Ref[K] {
	refs := make([]resolver.Ref[K], len(keys))
	for i, k := range keys {
		refs[i] = resolver.ByKey(k)
	}
	return refs
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
