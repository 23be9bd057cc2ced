// Package parser converts a lexer.Token stream into an ast.Template, with
// full Jinja2 statement and expression support and the operator precedence
// table from spec.md §4.2. Grounded on deicod-gojinja's three-file split
// (core.go token-stream plumbing / expressions.go precedence climbing /
// statements.go tag dispatch) layered over the richer node set miya's
// parser/ast.go models.
package parser

import (
	"fmt"

	"github.com/kilnjinja/kiln/ast"
	"github.com/kilnjinja/kiln/lexer"
)

// Error is ParseError{line, template, message} from spec.md §4.2.
type Error struct {
	Line     int
	Template string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error in %q at line %d: %s", e.Template, e.Line, e.Message)
}

// Extension lets a registered extension claim a tag it names and produce an
// ast.Statement, per spec.md §6's Extension hook.
type Extension interface {
	Name() string
	Tags() []string
	Parse(p *Parser, tag string) (ast.Statement, error)
}

// Parser holds the token cursor and per-parse configuration.
type Parser struct {
	toks       []lexer.Token
	pos        int
	template   string
	extensions map[string]Extension
}

// Options configures a Parse call with environment-provided extensions.
type Options struct {
	TemplateName string
	Extensions   []Extension
}

// Parse tokenizes src with cfg and parses it into an ast.Template.
func Parse(src string, cfg *lexer.Config, opts Options) (*ast.Template, error) {
	toks, err := lexer.Tokenize(src, cfg)
	if err != nil {
		return nil, wrapLexError(err, opts.TemplateName)
	}
	p := &Parser{toks: toks, template: opts.TemplateName, extensions: map[string]Extension{}}
	for _, ext := range opts.Extensions {
		for _, tag := range ext.Tags() {
			p.extensions[tag] = ext
		}
	}
	body, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	return ast.NewTemplate(1, p.template, body), nil
}

func wrapLexError(err error, tmpl string) error {
	if le, ok := err.(*lexer.Error); ok {
		return &Error{Line: le.Line, Template: tmpl, Message: le.Message}
	}
	return err
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return &Error{Line: p.curLine(), Template: p.template, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) curLine() int {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].Line
	}
	if len(p.toks) > 0 {
		return p.toks[len(p.toks)-1].Line
	}
	return 1
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Type: lexer.TokenEOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peekAt(offset int) lexer.Token {
	i := p.pos + offset
	if i >= len(p.toks) {
		return lexer.Token{Type: lexer.TokenEOF}
	}
	return p.toks[i]
}

func (p *Parser) advance() lexer.Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) at(tt lexer.TokenType) bool { return p.peek().Type == tt }

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	if !p.at(tt) {
		return lexer.Token{}, p.errf("expected %s, got %s", tt, p.peek().Type)
	}
	return p.advance(), nil
}

// atVarEnd/atBlockEnd treat the trim variants as equivalent to the plain
// delimiter for grammar purposes (whitespace stripping already happened in
// the lexer).
func (p *Parser) atVarEnd() bool {
	t := p.peek().Type
	return t == lexer.TokenVarEnd || t == lexer.TokenVarEndTrim
}
func (p *Parser) atBlockEnd() bool {
	t := p.peek().Type
	return t == lexer.TokenBlockEnd || t == lexer.TokenBlockEndTrim
}
func (p *Parser) atBlockStart() bool {
	t := p.peek().Type
	return t == lexer.TokenBlockStart || t == lexer.TokenBlockStartTrim
}
func (p *Parser) atVarStart() bool {
	t := p.peek().Type
	return t == lexer.TokenVarStart || t == lexer.TokenVarStartTrim
}

func (p *Parser) expectVarEnd() error {
	if !p.atVarEnd() {
		return p.errf("expected }}, got %s", p.peek().Type)
	}
	p.advance()
	return nil
}
func (p *Parser) expectBlockEnd() error {
	if !p.atBlockEnd() {
		return p.errf("expected %%}, got %s", p.peek().Type)
	}
	p.advance()
	return nil
}

// identValue returns the text of the current identifier token, or "" if the
// current token is not an identifier.
func (p *Parser) identValue() string {
	t := p.peek()
	if t.Type == lexer.TokenIdentifier {
		return t.Value
	}
	return ""
}

// atKeyword reports whether the current token is the identifier kw
// (statement-tag dispatch is by identifier text, not a reserved-word
// TokenType, per spec.md §4.2).
func (p *Parser) atKeyword(kw string) bool {
	return p.peek().Type == lexer.TokenIdentifier && p.peek().Value == kw
}

// expectKeyword checks that the current token is the identifier kw without
// consuming it; callers advance past it themselves.
func (p *Parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return p.errf("expected '%s', got %s", kw, p.peek().Type)
	}
	return nil
}

func (p *Parser) pos_() ast.Position { return ast.Position{Line: p.curLine(), Template: p.template} }
