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

	"github.com/pkg/errors"

	"github.com/rulego/tsstream/types"
)

// Subtable describes a child table of a destination super table.
type Subtable struct {
	Name string
	Tags map[string]interface{}
}

// ResultRow is one destination row.
type ResultRow struct {
	Subtable string
	Ts       int64
	Values   map[string]interface{}
}

// EnsureSubtable creates the child table name under ref with the given tags. It reports
// whether the table was created by this call.
func (s *Store) EnsureSubtable(ctx context.Context, ref types.TableRef, name string, tags map[string]interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t, err := s.table(ref)
	if err != nil {
		return false, errors.Wrapf(err, "ensure subtable %s", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.children[name]; ok {
		return false, nil
	}
	t.child(name, tags)
	return true, nil
}

// Upsert writes values into subtable at ts, replacing any previous row with that timestamp.
// The whole row is applied under the table lock.
func (s *Store) Upsert(ctx context.Context, ref types.TableRef, subtable string, ts int64, values map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := s.table(ref)
	if err != nil {
		return errors.Wrapf(err, "upsert %s", subtable)
	}
	if f := s.currentFaults().Upsert; f != nil {
		if err := f(ref, subtable); err != nil {
			return errors.Wrapf(err, "upsert %s.%s", ref, subtable)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.children[subtable]
	if !ok {
		return errors.Wrapf(ErrSubtableNotFound, "upsert %s.%s", ref, subtable)
	}
	c.values[ts] = copyMap(values)
	return nil
}

// Subtables lists the child tables of ref sorted by name.
func (s *Store) Subtables(ref types.TableRef) ([]Subtable, error) {
	t, err := s.table(ref)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Subtable, 0, len(t.children))
	for _, c := range t.children {
		out = append(out, Subtable{Name: c.name, Tags: copyMap(c.tags)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Results returns destination rows of ref ordered by subtable then timestamp. An empty
// subtable selects every child table.
func (s *Store) Results(ref types.TableRef, subtable string) ([]ResultRow, error) {
	t, err := s.table(ref)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []ResultRow
	for _, c := range t.children {
		if subtable != "" && c.name != subtable {
			continue
		}
		for ts, v := range c.values {
			out = append(out, ResultRow{Subtable: c.name, Ts: ts, Values: copyMap(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subtable != out[j].Subtable {
			return out[i].Subtable < out[j].Subtable
		}
		return out[i].Ts < out[j].Ts
	})
	return out, nil
}

// Schema returns the schema ref was created with.
func (s *Store) Schema(ref types.TableRef) (Schema, error) {
	t, err := s.table(ref)
	if err != nil {
		return Schema{}, err
	}
	return t.schema, nil
}
