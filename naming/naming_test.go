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
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/tsstream/types"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name   string
		source string
		key    string
		want   string
		ok     bool
	}{
		{"concat alias", "concat('new-', tname)", "t1", "new-t1", true},
		{"double quoted", `concat("a", tname, "b")`, "x", "axb", true},
		{"plus", "'p_' + tname", "t2", "p_t2", true},
		{"nested", "concat(concat('a', tname), 1)", "k", "ak1", true},
		{"tbname", "concat('n', tbname)", "t3", "nt3", true},
		{"bare ref", "tname", "t4", "t4", true},
		{"unknown ident", "concat('x', other)", "", "", false},
		{"other function", "upper(tname)", "", "", false},
		{"arithmetic", "tname - 1", "", "", false},
		{"empty concat", "concat()", "", "", false},
		{"syntax", "concat('x', ", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.source, "tname", "tbname")
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Eval(tt.key))
		})
	}
}

func TestConcatString(t *testing.T) {
	e, err := Compile("concat('new-', tname)", "tname")
	require.NoError(t, err)
	assert.Equal(t, `concat("new-", tname)`, e.Root.String())
}

func TestCompileBuiltinConcat(t *testing.T) {
	tree, err := parser.Parse("concat('new-', tname)")
	require.NoError(t, err)
	builtin, ok := tree.Node.(*ast.BuiltinNode)
	require.True(t, ok, "%T", tree.Node)
	assert.Equal(t, "concat", builtin.Name)

	e, err := Compile("concat('new-', tname)", "tname")
	require.NoError(t, err)
	assert.Equal(t, "new-t1", e.Eval("t1"))

	for _, source := range []string{"concat()", "len(tname)", "upper(tname)"} {
		_, err := Compile(source, "tname")
		assert.Error(t, err, source)
	}
}

func TestNamerAccount(t *testing.T) {
	def := definition("concat('new-', tname)")
	n1, err := NewNamer(def, 1, 16)
	require.NoError(t, err)
	n7, err := NewNamer(def, 7, 16)
	require.NoError(t, err)

	name := n1.Name("t1")
	assert.Equal(t, fmt.Sprintf("new-t1_1.d1.sta_%016x", xxhash.Sum64String("t1")), name)
	assert.True(t, strings.HasPrefix(n7.Name("t1"), "new-t1_7.d1.sta_"))
	assert.Equal(t, name[len("new-t1_1."):], n7.Name("t1")[len("new-t1_7."):])
}

func definition(subtable string) *types.StreamDefinition {
	return &types.StreamDefinition{
		ID:           "6f1c2b3a",
		Name:         "s1",
		Destination:  types.TableRef{DB: "d1", Name: "sta"},
		Partition:    &types.PartitionSpec{Expr: "tbname", Alias: "tname"},
		SubtableExpr: subtable,
	}
}

func TestNamerFanOut(t *testing.T) {
	n, err := NewNamer(definition("concat('new-', tname)"), 1, 2)
	require.NoError(t, err)

	seen := map[string]string{}
	for i := 1; i <= 3; i++ {
		key := fmt.Sprintf("t%d", i)
		name := n.Name(key)
		assert.True(t, strings.HasPrefix(name, "new-"+key+"_1.d1.sta_"), name)
		seen[name] = key
	}
	assert.Len(t, seen, 3)

	// evicted entries are recomputed to the same value
	for name, key := range seen {
		assert.Equal(t, name, n.Name(key))
	}
}

func TestNamerWithoutExpression(t *testing.T) {
	n, err := NewNamer(definition(""), 1, 16)
	require.NoError(t, err)
	a := n.Name("t1")
	assert.True(t, strings.HasPrefix(a, "t_"))
	assert.Len(t, a, 18)
	assert.NotEqual(t, a, n.Name("t2"))

	other := definition("")
	other.ID = "another"
	n2, err := NewNamer(other, 1, 16)
	require.NoError(t, err)
	assert.NotEqual(t, a, n2.Name("t1"))
}

func TestNamerRejectsUnknownReference(t *testing.T) {
	_, err := NewNamer(definition("concat('x', tag2)"), 1, 16)
	assert.Error(t, err)
}
