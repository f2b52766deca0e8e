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

package aggregator

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"

	"github.com/rulego/tsstream/types"
)

// Evaluator computes an expression over a source row.
type Evaluator struct {
	Source  string
	star    bool
	field   string
	program *vm.Program
}

// CompileExpression compiles source. "*" evaluates to a constant non-NULL value and bare
// identifiers are looked up directly without running the VM.
func CompileExpression(source string) (*Evaluator, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return nil, fmt.Errorf("empty expression")
	case source == "*":
		return &Evaluator{Source: source, star: true}, nil
	case types.IsIdentifier(source):
		return &Evaluator{Source: source, field: source}, nil
	}
	program, err := expr.Compile(source, exprOptions()...)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	return &Evaluator{Source: source, program: program}, nil
}

func exprOptions() []expr.Option {
	return []expr.Option{
		expr.Function("concat", func(params ...any) (any, error) {
			var b strings.Builder
			for _, p := range params {
				if p == nil {
					continue
				}
				b.WriteString(cast.ToString(p))
			}
			return b.String(), nil
		}),
		expr.Function("coalesce", func(params ...any) (any, error) {
			for _, p := range params {
				if p != nil {
					return p, nil
				}
			}
			return nil, nil
		}),
		expr.AllowUndefinedVariables(),
	}
}

// Eval evaluates the expression on row. Unknown columns evaluate to nil.
func (e *Evaluator) Eval(row *types.Row) (interface{}, error) {
	switch {
	case e.star:
		return int64(1), nil
	case e.program == nil:
		v, _ := row.Lookup(e.field)
		return v, nil
	}
	return expr.Run(e.program, row.Env())
}

// PartitionKey renders a partition value as the string key used for routing and naming.
func PartitionKey(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return cast.ToString(v)
}
