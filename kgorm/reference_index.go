package kgorm

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/srmgate/srmgate/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reference names a column in the caller's schema that holds identity
// record ids, e.g. the identity column of a request table.
type Reference struct {
	Table  string
	Column string
}

func (r Reference) String() string { return r.Table + "." + r.Column }

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseReferences parses a comma separated list of table.column pairs.
func ParseReferences(s string) ([]Reference, error) {
	var refs []Reference
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		table, column, ok := strings.Cut(part, ".")
		if !ok || !identifier.MatchString(table) || !identifier.MatchString(column) {
			return nil, fmt.Errorf("gorm: invalid reference %q, want table.column", part)
		}
		refs = append(refs, Reference{Table: table, Column: column})
	}
	return refs, nil
}

// ReferenceIndex is a domain.ReferenceIndex that reports every record not
// referenced from any of its columns.
//
// Records are taken from the identity_records table unless WithRecords names
// another source. Such sources carry no creation time, so the minimum age is
// measured from the first sweep that saw a record unreferenced.
type ReferenceIndex struct {
	db      *gorm.DB
	refs    []Reference
	minAge  time.Duration
	records domain.RecordLister
	now     func() time.Time

	mu        sync.Mutex
	firstSeen map[int64]time.Time
}

type ReferenceOption func(*ReferenceIndex)

// WithMinAge leaves records younger than d alone, giving callers in other
// processes time to store their reference after creating a record.
func WithMinAge(d time.Duration) ReferenceOption {
	return func(r *ReferenceIndex) { r.minAge = d }
}

// WithRecords lists candidate records from l instead of the identity_records
// table, for record stores kept outside the database.
func WithRecords(l domain.RecordLister) ReferenceOption {
	return func(r *ReferenceIndex) { r.records = l }
}

func NewReferenceIndex(db *gorm.DB, refs []Reference, opts ...ReferenceOption) *ReferenceIndex {
	r := &ReferenceIndex{db: db, refs: refs, now: time.Now, firstSeen: make(map[int64]time.Time)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ReferenceIndex) UnreferencedIDs(ctx context.Context) ([]int64, error) {
	if r.records != nil {
		return r.unreferencedExternal(ctx)
	}

	q := r.db.WithContext(ctx).Model(&gormRecord{})
	for _, ref := range r.refs {
		sub := r.db.Table(ref.Table).
			Select(ref.Column).
			Where(clause.Neq{Column: clause.Column{Name: ref.Column}, Value: nil})
		q = q.Where("id NOT IN (?)", sub)
	}
	if r.minAge > 0 {
		q = q.Where("created_at < ?", r.now().Add(-r.minAge))
	}

	var ids []int64
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("gorm: unreferenced records: %w", err)
	}
	return ids, nil
}

func (r *ReferenceIndex) unreferencedExternal(ctx context.Context) ([]int64, error) {
	ids, err := r.records.RecordIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("gorm: list records: %w", err)
	}

	referenced := make(map[int64]struct{})
	for _, ref := range r.refs {
		var col []int64
		err := r.db.WithContext(ctx).Table(ref.Table).
			Where(clause.Neq{Column: clause.Column{Name: ref.Column}, Value: nil}).
			Distinct().
			Pluck(ref.Column, &col).Error
		if err != nil {
			return nil, fmt.Errorf("gorm: references %s: %w", ref, err)
		}
		for _, id := range col {
			referenced[id] = struct{}{}
		}
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int64]time.Time, len(ids))
	var out []int64
	for _, id := range ids {
		if _, ok := referenced[id]; ok {
			continue
		}
		first, ok := r.firstSeen[id]
		if !ok {
			first = now
		}
		seen[id] = first
		if now.Sub(first) >= r.minAge {
			out = append(out, id)
		}
	}
	r.firstSeen = seen
	slices.Sort(out)
	return out, nil
}
