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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/rulego/tsstream/types"
)

// Parser is a recursive descent parser over the token stream of one statement.
type Parser struct {
	input     string
	tokens    []lexer.Token
	pos       int
	defaultDB string
}

// Parse parses one statement. Table names without a database get defaultDB.
func Parse(sql, defaultDB string) (Statement, error) {
	tokens, err := Lex(sql)
	if err != nil {
		return nil, err
	}
	p := &Parser{input: sql, tokens: tokens, defaultDB: defaultDB}
	return p.Parse()
}

func (p *Parser) Parse() (Statement, error) {
	var stmt Statement
	var err error
	switch {
	case p.acceptKeyword("CREATE"):
		stmt, err = p.parseCreate()
	case p.acceptKeyword("DROP"):
		stmt, err = p.parseDrop()
	case p.acceptKeyword("SHOW"):
		stmt, err = p.parseShow()
	default:
		return nil, p.unexpected("CREATE", "DROP", "SHOW")
	}
	if err != nil {
		return nil, err
	}
	p.accept(punctToken, ";")
	if !p.peek().EOF() {
		return nil, p.unexpected("end of statement")
	}
	return stmt, nil
}

func (p *Parser) parseShow() (Statement, error) {
	switch {
	case p.acceptKeyword("STREAMS"):
		return &ShowStreams{}, nil
	case p.acceptKeyword("TRANSACTIONS"):
		return &ShowTransactions{}, nil
	}
	return nil, p.unexpected("STREAMS", "TRANSACTIONS")
}

func (p *Parser) parseDrop() (Statement, error) {
	if err := p.expectKeyword("STREAM"); err != nil {
		return nil, err
	}
	stmt := &DropStream{}
	if p.acceptKeyword("IF") {
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		stmt.IfExists = true
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	stmt.Name = name
	return stmt, nil
}

func (p *Parser) parseCreate() (Statement, error) {
	if err := p.expectKeyword("STREAM"); err != nil {
		return nil, err
	}
	stmt := &CreateStream{Def: &types.StreamDefinition{Trigger: types.TriggerSpec{Mode: types.TriggerAtOnce}}}
	def := stmt.Def
	if p.acceptKeyword("IF") {
		if err := p.expectKeyword("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		stmt.IfNotExists = true
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	def.Name = name

	if err := p.parseOptions(def); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	if def.Destination, err = p.tableRef(); err != nil {
		return nil, err
	}
	if p.acceptKeyword("SUBTABLE") {
		if def.SubtableExpr, err = p.parenthesized(); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	if err := p.parseSelect(def); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseOptions reads the stream options between the stream name and INTO.
func (p *Parser) parseOptions(def *types.StreamDefinition) error {
	for !p.isKeyword(p.peek(), "INTO") {
		switch {
		case p.acceptKeyword("TRIGGER"):
			switch {
			case p.acceptKeyword("AT_ONCE"):
				def.Trigger = types.TriggerSpec{Mode: types.TriggerAtOnce}
			case p.acceptKeyword("WINDOW_CLOSE"):
				def.Trigger = types.TriggerSpec{Mode: types.TriggerWindowClose}
			case p.acceptKeyword("MAX_DELAY"):
				d, err := p.duration()
				if err != nil {
					return err
				}
				def.Trigger = types.TriggerSpec{Mode: types.TriggerMaxDelay, MaxDelay: d}
			default:
				return p.unexpected("AT_ONCE", "WINDOW_CLOSE", "MAX_DELAY")
			}
		case p.acceptKeyword("WATERMARK"):
			d, err := p.duration()
			if err != nil {
				return err
			}
			def.Watermark = d
		case p.acceptKeyword("IGNORE"):
			if err := p.expectKeyword("EXPIRED"); err != nil {
				return err
			}
			on, err := p.flag()
			if err != nil {
				return err
			}
			def.LatePolicy = types.LatePolicyUpdate
			if on {
				def.LatePolicy = types.LatePolicyDrop
			}
		case p.acceptKeyword("FILL_HISTORY"):
			on, err := p.flag()
			if err != nil {
				return err
			}
			def.FillHistory = on
		default:
			return p.unexpected("TRIGGER", "WATERMARK", "IGNORE EXPIRED", "FILL_HISTORY", "INTO")
		}
	}
	return nil
}

func (p *Parser) parseSelect(def *types.StreamDefinition) error {
	if err := p.expectKeyword("SELECT"); err != nil {
		return err
	}
	for {
		item, err := p.selectItem()
		if err != nil {
			return err
		}
		def.Select = append(def.Select, item)
		if !p.accept(punctToken, ",") {
			break
		}
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return err
	}
	var err error
	if def.Source, err = p.tableRef(); err != nil {
		return err
	}
	if p.acceptKeyword("PARTITION") {
		if err := p.expectKeyword("BY"); err != nil {
			return err
		}
		if def.Partition, err = p.partition(); err != nil {
			return err
		}
	}
	if err := p.expectKeyword("INTERVAL"); err != nil {
		return err
	}
	if err := p.expect(punctToken, "("); err != nil {
		return err
	}
	if def.Window.Interval, err = p.duration(); err != nil {
		return err
	}
	if p.accept(punctToken, ",") {
		if def.Window.Offset, err = p.duration(); err != nil {
			return err
		}
	}
	if err := p.expect(punctToken, ")"); err != nil {
		return err
	}
	if p.acceptKeyword("SLIDING") {
		if err := p.expect(punctToken, "("); err != nil {
			return err
		}
		if def.Window.Sliding, err = p.duration(); err != nil {
			return err
		}
		if err := p.expect(punctToken, ")"); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) selectItem() (types.SelectItem, error) {
	tok := p.peek()
	if tok.Type != identToken {
		return types.SelectItem{}, p.unexpected("select item")
	}
	p.next()
	var item types.SelectItem
	switch {
	case strings.EqualFold(tok.Value, types.WindowStartColumn) && !p.is(punctToken, "("):
		item = types.WindowStart("")
	case strings.EqualFold(tok.Value, types.WindowEndColumn) && !p.is(punctToken, "("):
		item = types.WindowEnd("")
	default:
		arg, err := p.parenthesized()
		if err != nil {
			return types.SelectItem{}, err
		}
		item = types.Aggregate(tok.Value, arg, "")
	}
	alias, err := p.alias()
	if err != nil {
		return types.SelectItem{}, err
	}
	item.Alias = alias
	return item, nil
}

// alias reads an optional "[AS] name" after a select item.
func (p *Parser) alias() (string, error) {
	if p.acceptKeyword("AS") {
		return p.ident()
	}
	tok := p.peek()
	if tok.Type == identToken && !p.isKeyword(tok, "FROM") {
		p.next()
		return unquote(tok.Value), nil
	}
	return "", nil
}

// partition reads "expr [[AS] alias]" up to INTERVAL.
func (p *Parser) partition() (*types.PartitionSpec, error) {
	start := p.pos
	depth := 0
	for {
		tok := p.peek()
		if tok.EOF() {
			return nil, p.unexpected("INTERVAL")
		}
		if depth == 0 && p.isKeyword(tok, "INTERVAL") {
			break
		}
		switch {
		case tok.Type == punctToken && tok.Value == "(":
			depth++
		case tok.Type == punctToken && tok.Value == ")":
			depth--
		}
		p.next()
	}
	toks := p.tokens[start:p.pos]
	if len(toks) == 0 {
		return nil, p.unexpected("partition expression")
	}
	spec := &types.PartitionSpec{}
	n := len(toks)
	last := toks[n-1]
	switch {
	case n >= 3 && last.Type == identToken && p.isKeyword(toks[n-2], "AS"):
		spec.Alias = unquote(last.Value)
		toks = toks[:n-2]
	case n >= 2 && last.Type == identToken && endsOperand(toks[n-2]):
		spec.Alias = unquote(last.Value)
		toks = toks[:n-1]
	}
	spec.Expr = p.text(toks)
	return spec, nil
}

// endsOperand reports whether tok can be the last token of an expression.
func endsOperand(tok lexer.Token) bool {
	switch tok.Type {
	case identToken, stringToken, numberToken:
		return true
	case punctToken:
		return tok.Value == ")"
	}
	return false
}

// parenthesized reads "( ... )" with balanced parentheses and returns the inner source text.
func (p *Parser) parenthesized() (string, error) {
	if err := p.expect(punctToken, "("); err != nil {
		return "", err
	}
	start := p.pos
	depth := 1
	for {
		tok := p.peek()
		if tok.EOF() {
			return "", p.unexpected(")")
		}
		if tok.Type == punctToken {
			switch tok.Value {
			case "(":
				depth++
			case ")":
				depth--
			}
		}
		if depth == 0 {
			break
		}
		p.next()
	}
	inner := p.tokens[start:p.pos]
	p.next()
	if len(inner) == 0 {
		return "", p.errorAt(p.tokens[p.pos-1], ErrorTypeMissingToken, "empty parentheses")
	}
	return p.text(inner), nil
}

// text returns the source text spanned by toks.
func (p *Parser) text(toks []lexer.Token) string {
	first, last := toks[0], toks[len(toks)-1]
	return strings.TrimSpace(p.input[first.Pos.Offset : last.Pos.Offset+len(last.Value)])
}

func (p *Parser) tableRef() (types.TableRef, error) {
	name, err := p.ident()
	if err != nil {
		return types.TableRef{}, err
	}
	if p.accept(punctToken, ".") {
		table, err := p.ident()
		if err != nil {
			return types.TableRef{}, err
		}
		return types.TableRef{DB: name, Name: table}, nil
	}
	return types.TableRef{DB: p.defaultDB, Name: name}, nil
}

func (p *Parser) ident() (string, error) {
	tok := p.peek()
	if tok.Type != identToken {
		return "", p.unexpected("identifier")
	}
	p.next()
	return unquote(tok.Value), nil
}

// flag reads 0 or 1.
func (p *Parser) flag() (bool, error) {
	tok := p.peek()
	if tok.Type != numberToken || (tok.Value != "0" && tok.Value != "1") {
		return false, p.unexpected("0", "1")
	}
	p.next()
	return tok.Value == "1", nil
}

// duration reads "<n><unit>" with unit a (milliseconds), s, m, h or d.
func (p *Parser) duration() (time.Duration, error) {
	tok := p.peek()
	if tok.Type != durationToken {
		return 0, p.unexpected("duration")
	}
	p.next()
	d, err := ParseDuration(tok.Value)
	if err != nil {
		return 0, p.errorAt(tok, ErrorTypeInvalidDuration, err.Error())
	}
	return d, nil
}

// ParseDuration converts "<n><unit>" into a duration.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 'a':
		unit = time.Millisecond
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown duration unit in %q", s)
	}
	return time.Duration(n) * unit, nil
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) next() lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) is(tt lexer.TokenType, value string) bool {
	tok := p.peek()
	return tok.Type == tt && tok.Value == value
}

func (p *Parser) accept(tt lexer.TokenType, value string) bool {
	if p.is(tt, value) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expect(tt lexer.TokenType, value string) error {
	if !p.accept(tt, value) {
		return p.unexpected(value)
	}
	return nil
}

func (p *Parser) isKeyword(tok lexer.Token, kw string) bool {
	return tok.Type == identToken && strings.EqualFold(tok.Value, kw)
}

func (p *Parser) acceptKeyword(kw string) bool {
	if p.isKeyword(p.peek(), kw) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return p.unexpected(kw)
	}
	return nil
}

func (p *Parser) unexpected(expected ...string) error {
	tok := p.peek()
	if tok.EOF() {
		return &ParseError{
			Type:     ErrorTypeMissingToken,
			Message:  "unexpected end of statement",
			Expected: expected,
		}
	}
	e := p.errorAt(tok, ErrorTypeUnexpectedToken, "unexpected token")
	e.Expected = expected
	return e
}

func (p *Parser) errorAt(tok lexer.Token, typ ErrorType, msg string) *ParseError {
	return &ParseError{
		Type:    typ,
		Message: msg,
		Line:    tok.Pos.Line,
		Column:  tok.Pos.Column,
		Token:   tok.Value,
		Context: lineWithPosHighlight(p.input, tok.Pos),
	}
}
