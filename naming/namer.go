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

package naming

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rulego/tsstream/types"
)

// Namer maps partition keys of one stream to destination subtable names. Names are a pure
// function of the key, the cache only saves re-evaluation.
type Namer struct {
	streamID string
	account  int
	dest     string
	expr     *Expression
	cache    *lru.Cache[string, string]
}

// NewNamer compiles the SUBTABLE expression of def. account is the owning account id that
// prefixes the destination in generated names.
func NewNamer(def *types.StreamDefinition, account, cacheSize int) (*Namer, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	n := &Namer{streamID: def.ID, account: account, dest: def.Destination.String(), cache: cache}
	if def.SubtableExpr != "" {
		n.expr, err = Compile(def.SubtableExpr, PartitionRefs(def)...)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// PartitionRefs returns the identifiers a SUBTABLE expression may use to refer to the
// partition value of def.
func PartitionRefs(def *types.StreamDefinition) []string {
	if def.Partition == nil {
		return nil
	}
	refs := []string{def.Partition.Alias}
	if types.IsIdentifier(def.Partition.Expr) {
		refs = append(refs, def.Partition.Expr)
	}
	return refs
}

// Name returns the destination subtable name of key: <expr>_<account>.<db>.<stable>_<hash>
// with a SUBTABLE expression, t_<hash> without.
func (n *Namer) Name(key string) string {
	if name, ok := n.cache.Get(key); ok {
		return name
	}
	var name string
	if n.expr == nil {
		name = fmt.Sprintf("t_%016x", xxhash.Sum64String(n.streamID+key))
	} else {
		name = fmt.Sprintf("%s_%d.%s_%016x", n.expr.Eval(key), n.account, n.dest, xxhash.Sum64String(key))
	}
	n.cache.Add(key, name)
	return name
}
