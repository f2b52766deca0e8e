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

// Package naming derives destination subtable names from partition keys.
//
// A SUBTABLE expression is compiled once into a small closed AST. Only string and integer
// literals, the partition column (its alias, the bare partition identifier or tbname) and
// concat(...) or '+' are accepted, so evaluation can never fail at write time.
package naming

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Node is one element of a compiled naming expression.
type Node interface {
	eval(key string) string
	String() string
}

// Literal is a constant string part.
type Literal struct {
	Value string
}

func (l Literal) eval(string) string { return l.Value }
func (l Literal) String() string     { return strconv.Quote(l.Value) }

// PartitionRef is replaced by the partition key.
type PartitionRef struct {
	Name string
}

func (p PartitionRef) eval(key string) string { return key }
func (p PartitionRef) String() string         { return p.Name }

// Concat joins its parts in order.
type Concat struct {
	Parts []Node
}

func (c Concat) eval(key string) string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.eval(key))
	}
	return b.String()
}

func (c Concat) String() string {
	parts := make([]string, len(c.Parts))
	for i, p := range c.Parts {
		parts[i] = p.String()
	}
	return "concat(" + strings.Join(parts, ", ") + ")"
}

// Expression is a compiled SUBTABLE expression.
type Expression struct {
	Source string
	Root   Node
}

// Eval returns the expression value for a partition key.
func (e *Expression) Eval(key string) string {
	return e.Root.eval(key)
}

// Compile parses source. refs lists the identifiers that denote the partition column.
func Compile(source string, refs ...string) (*Expression, error) {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("subtable expression %q: %w", source, err)
	}
	c := &compiler{refs: refs}
	root, err := c.compile(tree.Node)
	if err != nil {
		return nil, fmt.Errorf("subtable expression %q: %w", source, err)
	}
	return &Expression{Source: source, Root: root}, nil
}

type compiler struct {
	refs []string
}

func (c *compiler) isRef(name string) bool {
	for _, r := range c.refs {
		if r != "" && strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

func (c *compiler) compile(node ast.Node) (Node, error) {
	switch n := node.(type) {
	case *ast.StringNode:
		return Literal{Value: n.Value}, nil
	case *ast.IntegerNode:
		return Literal{Value: strconv.Itoa(n.Value)}, nil
	case *ast.IdentifierNode:
		if !c.isRef(n.Value) {
			return nil, fmt.Errorf("identifier %q is not the partition column (allowed: %s)", n.Value, strings.Join(c.allowed(), ", "))
		}
		return PartitionRef{Name: n.Value}, nil
	case *ast.BinaryNode:
		if n.Operator != "+" {
			return nil, fmt.Errorf("operator %q is not allowed", n.Operator)
		}
		return c.concat([]ast.Node{n.Left, n.Right})
	case *ast.BuiltinNode:
		// concat is an expr builtin, so the parser never yields a CallNode for it
		if n.Name != "concat" {
			return nil, fmt.Errorf("only concat() may be called")
		}
		return c.call(n.Arguments)
	case *ast.CallNode:
		callee, ok := n.Callee.(*ast.IdentifierNode)
		if !ok || !strings.EqualFold(callee.Value, "concat") {
			return nil, fmt.Errorf("only concat() may be called")
		}
		return c.call(n.Arguments)
	default:
		return nil, fmt.Errorf("unsupported expression %T", node)
	}
}

func (c *compiler) call(args []ast.Node) (Node, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("concat() needs at least one argument")
	}
	return c.concat(args)
}

func (c *compiler) concat(args []ast.Node) (Node, error) {
	parts := make([]Node, 0, len(args))
	for _, arg := range args {
		p, err := c.compile(arg)
		if err != nil {
			return nil, err
		}
		// flatten nested concatenations
		if inner, ok := p.(Concat); ok {
			parts = append(parts, inner.Parts...)
			continue
		}
		parts = append(parts, p)
	}
	return Concat{Parts: parts}, nil
}

func (c *compiler) allowed() []string {
	var out []string
	for _, r := range c.refs {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
