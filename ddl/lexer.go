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

package ddl

import (
	"errors"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

var lex = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "Duration", Pattern: `[0-9]+(?:a|s|m|h|d)\b`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
	{Name: "Ident", Pattern: "[a-zA-Z_][a-zA-Z0-9_]*|`[^`]+`"},
	{Name: "Operator", Pattern: `<=|>=|!=|<>|==|&&|\|\||[-+*/%<>=!]`},
	{Name: "Punct", Pattern: `[(),.;]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

var (
	stringToken     = lex.Symbols()["String"]
	durationToken   = lex.Symbols()["Duration"]
	numberToken     = lex.Symbols()["Number"]
	identToken      = lex.Symbols()["Ident"]
	operatorToken   = lex.Symbols()["Operator"]
	punctToken      = lex.Symbols()["Punct"]
	whitespaceToken = lex.Symbols()["Whitespace"]
)

// Lex splits input into tokens, dropping whitespace.
func Lex(input string) ([]lexer.Token, error) {
	l, err := lex.Lex("", strings.NewReader(input))
	if err != nil {
		return nil, err
	}
	tokens := make([]lexer.Token, 0, 32)
	for {
		token, err := l.Next()
		if err != nil {
			var le *lexer.Error
			if errors.As(err, &le) {
				return nil, &ParseError{
					Type:    ErrorTypeLexical,
					Message: "invalid input text",
					Line:    le.Pos.Line,
					Column:  le.Pos.Column,
					Context: lineWithPosHighlight(input, le.Pos),
				}
			}
			return nil, err
		}
		if token.EOF() {
			break
		}
		if token.Type != whitespaceToken {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

// unquote strips backticks from an identifier.
func unquote(ident string) string {
	if len(ident) >= 2 && ident[0] == '`' {
		return ident[1 : len(ident)-1]
	}
	return ident
}

func lineWithPosHighlight(input string, pos lexer.Position) string {
	if input == "" || pos.Line < 1 {
		return ""
	}
	lines := strings.Split(input, "\n")
	if pos.Line > len(lines) {
		return ""
	}
	line := strings.NewReplacer("\t", " ", "\r", " ").Replace(lines[pos.Line-1])
	if pos.Column < 1 {
		return line
	}
	return line + "\n" + strings.Repeat(" ", pos.Column-1) + "^"
}
