/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/rulego/tsstream/types"
)

var (
	ErrClosed           = errors.New("storage closed")
	ErrTableNotFound    = errors.New("table not found")
	ErrSubtableNotFound = errors.New("subtable not found")
	ErrTableExists      = errors.New("table already exists")
)

// Schema lists the columns and tags of a super table.
type Schema struct {
	Columns []string
	Tags    []string
}

// ScanOptions bounds a range scan. Rows come back ordered by (Ts, Seq).
type ScanOptions struct {
	// After skips rows at or before the cursor.
	After *types.Cursor
	// MinSeq is inclusive, MaxSeq exclusive; a zero MaxSeq means unbounded.
	MinSeq uint64
	MaxSeq uint64
	Limit  int
}

func (o ScanOptions) admits(r *types.Row) bool {
	if r.Seq < o.MinSeq {
		return false
	}
	if o.MaxSeq > 0 && r.Seq >= o.MaxSeq {
		return false
	}
	return true
}

// Faults injects failures into scans and upserts. Nil funcs never fail.
type Faults struct {
	Scan   func(ref types.TableRef) error
	Upsert func(ref types.TableRef, subtable string) error
}

// Store holds every table of the engine.
type Store struct {
	mu     sync.RWMutex
	closed bool
	tables map[types.TableRef]*superTable
	faults Faults
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[types.TableRef]*superTable)}
}

// CreateSuperTable creates ref, failing with ErrTableExists when it is already present.
func (s *Store) CreateSuperTable(ref types.TableRef, schema Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.tables[ref]; ok {
		return errors.Wrapf(ErrTableExists, "create %s", ref)
	}
	s.tables[ref] = newSuperTable(ref, schema)
	return nil
}

// EnsureSuperTable creates ref if it does not exist yet.
func (s *Store) EnsureSuperTable(ref types.TableRef, schema Schema) error {
	err := s.CreateSuperTable(ref, schema)
	if errors.Is(err, ErrTableExists) {
		return nil
	}
	return err
}

// HasTable reports whether ref exists.
func (s *Store) HasTable(ref types.TableRef) bool {
	_, err := s.table(ref)
	return err == nil
}

// SetFaults installs failure hooks, used by tests.
func (s *Store) SetFaults(f Faults) {
	s.mu.Lock()
	s.faults = f
	s.mu.Unlock()
}

func (s *Store) table(ref types.TableRef) (*superTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	t, ok := s.tables[ref]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "%s", ref)
	}
	return t, nil
}

func (s *Store) currentFaults() Faults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faults
}

// Insert commits rows into the child tables of ref, creating child tables on first use.
// Every row is assigned the next commit sequence number; subscriptions observe the rows in
// that order.
func (s *Store) Insert(ctx context.Context, ref types.TableRef, rows []types.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := s.table(ref)
	if err != nil {
		return errors.Wrap(err, "insert")
	}
	t.insert(rows)
	return nil
}

// SubscribeSnapshot registers a subscription and returns the commit position it starts at.
// Both happen under the table lock so no commit can fall between them.
func (s *Store) SubscribeSnapshot(ref types.TableRef) (*Subscription, types.Position, error) {
	t, err := s.table(ref)
	if err != nil {
		return nil, types.Position{}, errors.Wrap(err, "subscribe")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sub := newSubscription(t)
	t.subs[sub] = struct{}{}
	return sub, types.Position{Seq: t.nextSeq, Ts: t.maxTs}, nil
}

// Snapshot returns the current commit position without subscribing.
func (s *Store) Snapshot(ref types.TableRef) (types.Position, error) {
	t, err := s.table(ref)
	if err != nil {
		return types.Position{}, errors.Wrap(err, "snapshot")
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return types.Position{Seq: t.nextSeq, Ts: t.maxTs}, nil
}

// Scan returns committed rows of ref ordered by (Ts, Seq).
func (s *Store) Scan(ctx context.Context, ref types.TableRef, opts ScanOptions) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.table(ref)
	if err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	if f := s.currentFaults().Scan; f != nil {
		if err := f(ref); err != nil {
			return nil, errors.Wrapf(err, "scan %s", ref)
		}
	}
	return t.scan(opts), nil
}

// Count returns the number of committed rows of ref.
func (s *Store) Count(ref types.TableRef) (int, error) {
	t, err := s.table(ref)
	if err != nil {
		return 0, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byTime), nil
}

// Close releases every subscription; later calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tables := make([]*superTable, 0, len(s.tables))
	for _, t := range s.tables {
		tables = append(tables, t)
	}
	s.mu.Unlock()

	for _, t := range tables {
		t.mu.Lock()
		for sub := range t.subs {
			sub.terminate()
		}
		t.subs = map[*Subscription]struct{}{}
		t.mu.Unlock()
	}
	return nil
}

type childTable struct {
	name string
	tags map[string]interface{}
	// destination rows keyed by timestamp
	values map[int64]map[string]interface{}
}

type superTable struct {
	ref    types.TableRef
	schema Schema

	mu       sync.RWMutex
	nextSeq  uint64
	maxTs    int64
	byTime   []*types.Row
	children map[string]*childTable
	subs     map[*Subscription]struct{}
}

func newSuperTable(ref types.TableRef, schema Schema) *superTable {
	return &superTable{
		ref:      ref,
		schema:   schema,
		nextSeq:  1,
		children: make(map[string]*childTable),
		subs:     make(map[*Subscription]struct{}),
	}
}

func (t *superTable) child(name string, tags map[string]interface{}) *childTable {
	c, ok := t.children[name]
	if !ok {
		c = &childTable{name: name, tags: copyMap(tags), values: make(map[int64]map[string]interface{})}
		t.children[name] = c
	}
	return c
}

func (t *superTable) insert(rows []types.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	committed := make([]types.Row, 0, len(rows))
	for i := range rows {
		r := rows[i]
		c := t.child(r.Table, r.Tags)
		// tags belong to the child table
		r.Tags = c.tags
		r.Cols = copyMap(r.Cols)
		r.Seq = t.nextSeq
		t.nextSeq++
		if len(t.byTime) == 0 || r.Ts > t.maxTs {
			t.maxTs = r.Ts
		}
		t.index(&r)
		committed = append(committed, r)
	}
	for sub := range t.subs {
		sub.push(committed)
	}
}

func (t *superTable) index(r *types.Row) {
	n := len(t.byTime)
	if n == 0 || t.byTime[n-1].Less(r) {
		t.byTime = append(t.byTime, r)
		return
	}
	i := sort.Search(n, func(i int) bool { return r.Less(t.byTime[i]) })
	t.byTime = append(t.byTime, nil)
	copy(t.byTime[i+1:], t.byTime[i:])
	t.byTime[i] = r
}

func (t *superTable) scan(opts ScanOptions) []types.Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	start := 0
	if opts.After != nil {
		c := *opts.After
		start = sort.Search(len(t.byTime), func(i int) bool { return c.After(t.byTime[i]) })
	}
	var out []types.Row
	for _, r := range t.byTime[start:] {
		if !opts.admits(r) {
			continue
		}
		out = append(out, *r)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out
}

func (t *superTable) unsubscribe(sub *Subscription) {
	t.mu.Lock()
	delete(t.subs, sub)
	t.mu.Unlock()
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
