package parser

import (
	"github.com/kilnjinja/kiln/ast"
	"github.com/kilnjinja/kiln/lexer"
)

// parseStatements parses the top-level run of template body content (DATA,
// {{ expr }}, {% tag %}) through to EOF, matching spec.md §4.2's
// tag-by-identifier dispatch. Nested, block-scoped bodies (if/for/block/...)
// use parseUntilAny instead, since they must stop at a specific end tag
// rather than at EOF.
func (p *Parser) parseStatements() ([]ast.Statement, error) {
	var out []ast.Statement
	for {
		t := p.peek()
		switch t.Type {
		case lexer.TokenEOF:
			return out, nil
		case lexer.TokenData:
			p.advance()
			out = append(out, &ast.Output{Position: p.posAt(t), Nodes: []ast.Expression{&ast.StringLit{Position: p.posAt(t), Value: t.Value}}})
		case lexer.TokenVarStart, lexer.TokenVarStartTrim:
			stmt, err := p.parseOutputTag()
			if err != nil {
				return nil, err
			}
			out = append(out, stmt)
		case lexer.TokenBlockStart, lexer.TokenBlockStartTrim:
			pos := p.pos_()
			p.advance()
			kw := p.identValue()
			if kw == "" {
				return nil, p.errf("expected tag name after '{%%'")
			}
			p.advance()
			stmt, err := p.parseTag(pos, kw)
			if err != nil {
				return nil, err
			}
			out = append(out, stmt)
		default:
			return nil, p.errf("unexpected token %s", t.Type)
		}
	}
}

func (p *Parser) posAt(t lexer.Token) ast.Position {
	return ast.Position{Line: t.Line, Template: p.template}
}

// parseOutputTag parses `{{ expr }}` (with optional filters already folded
// into expr by the expression parser's postfix filter handling).
func (p *Parser) parseOutputTag() (ast.Statement, error) {
	pos := p.pos_()
	p.advance() // '{{' or '{{-'
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectVarEnd(); err != nil {
		return nil, err
	}
	return &ast.Output{Position: pos, Nodes: []ast.Expression{expr}}, nil
}

// parseTag dispatches on the tag keyword already consumed by the caller
// (kw), parsing through to its own {% ... %} close.
func (p *Parser) parseTag(pos ast.Position, kw string) (ast.Statement, error) {
	switch kw {
	case "if":
		return p.parseIf(pos)
	case "for":
		return p.parseFor(pos)
	case "block":
		return p.parseBlock(pos)
	case "extends":
		return p.parseExtends(pos)
	case "include":
		return p.parseInclude(pos)
	case "import":
		return p.parseImport(pos)
	case "from":
		return p.parseFromImport(pos)
	case "macro":
		return p.parseMacro(pos)
	case "call":
		return p.parseCallBlock(pos)
	case "set":
		return p.parseSet(pos)
	case "with":
		return p.parseWith(pos)
	case "filter":
		return p.parseFilterBlock(pos)
	case "autoescape":
		return p.parseAutoescape(pos)
	case "raw":
		return p.parseRaw(pos)
	case "do":
		return p.parseDo(pos)
	case "break":
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		return &ast.Break{Position: pos}, nil
	case "continue":
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		return &ast.Continue{Position: pos}, nil
	case "debug":
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		return &ast.Debug{Position: pos}, nil
	default:
		if ext, ok := p.extensions[kw]; ok {
			return ext.Parse(p, kw)
		}
		return nil, p.errf("unknown tag %q", kw)
	}
}

func (p *Parser) parseIf(pos ast.Position) (ast.Statement, error) {
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	node := &ast.If{Position: pos, Cond: cond}
	body, ender, err := p.parseUntilAny([]string{"elif", "else", "endif"})
	if err != nil {
		return nil, err
	}
	node.Body = body
	for ender == "elif" {
		eiPos := p.pos_()
		p.advance() // consume 'elif'
		eiCond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		eiBody, nextEnder, err := p.parseUntilAny([]string{"elif", "else", "endif"})
		if err != nil {
			return nil, err
		}
		node.Elifs = append(node.Elifs, ast.ElseIf{Position: eiPos, Cond: eiCond, Body: eiBody})
		ender = nextEnder
	}
	if ender == "else" {
		p.advance() // 'else'
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		elseBody, _, err := p.parseUntilAny([]string{"endif"})
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
	}
	if err := p.expectKeyword("endif"); err != nil {
		return nil, err
	}
	p.advance()
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

// parseUntilAny parses statements until one of the given tag keywords is
// seen at the current block-tag position, returning which one matched. It
// consumes that tag's opening delimiter and leaves the keyword as the
// current token.
func (p *Parser) parseUntilAny(enders []string) ([]ast.Statement, string, error) {
	var out []ast.Statement
	for {
		t := p.peek()
		if t.Type == lexer.TokenEOF {
			return nil, "", p.errf("unexpected end of template, expected one of %v", enders)
		}
		if (t.Type == lexer.TokenBlockStart || t.Type == lexer.TokenBlockStartTrim) && p.peekAt(1).Type == lexer.TokenIdentifier {
			kw := p.peekAt(1).Value
			for _, e := range enders {
				if kw == e {
					p.advance() // '{%'
					return out, kw, nil
				}
			}
		}
		switch t.Type {
		case lexer.TokenData:
			p.advance()
			out = append(out, &ast.Output{Position: p.posAt(t), Nodes: []ast.Expression{&ast.StringLit{Position: p.posAt(t), Value: t.Value}}})
		case lexer.TokenVarStart, lexer.TokenVarStartTrim:
			stmt, err := p.parseOutputTag()
			if err != nil {
				return nil, "", err
			}
			out = append(out, stmt)
		case lexer.TokenBlockStart, lexer.TokenBlockStartTrim:
			pos := p.pos_()
			p.advance()
			kw := p.identValue()
			if kw == "" {
				return nil, "", p.errf("expected tag name after '{%%'")
			}
			p.advance()
			stmt, err := p.parseTag(pos, kw)
			if err != nil {
				return nil, "", err
			}
			out = append(out, stmt)
		default:
			return nil, "", p.errf("unexpected token %s", t.Type)
		}
	}
}

func (p *Parser) parseFor(pos ast.Position) (ast.Statement, error) {
	var targets []string
	for {
		name := p.identValue()
		if name == "" {
			return nil, p.errf("expected loop variable name")
		}
		p.advance()
		targets = append(targets, name)
		if p.peek().Type == lexer.TokenComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	p.advance()
	iter, err := p.parseOr() // stop before "if"/"recursive" keywords which parseExpression's ternary would otherwise try to eat
	if err != nil {
		return nil, err
	}
	node := &ast.For{Position: pos, Target: targets, Iter: iter}
	if p.atKeyword("if") {
		p.advance()
		filt, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		node.Filter = filt
	}
	if p.atKeyword("recursive") {
		p.advance()
		node.Recursive = true
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	body, ender, err := p.parseUntilAny([]string{"else", "endfor"})
	if err != nil {
		return nil, err
	}
	node.Body = body
	if ender == "else" {
		p.advance()
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		elseBody, _, err := p.parseUntilAny([]string{"endfor"})
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
	}
	if err := p.expectKeyword("endfor"); err != nil {
		return nil, err
	}
	p.advance()
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseBlock(pos ast.Position) (ast.Statement, error) {
	name := p.identValue()
	if name == "" {
		return nil, p.errf("expected block name")
	}
	p.advance()
	node := &ast.Block{Position: pos, Name: name}
	for p.atKeyword("scoped") || p.atKeyword("required") {
		if p.atKeyword("scoped") {
			node.Scoped = true
		} else {
			node.Required = true
		}
		p.advance()
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	body, _, err := p.parseUntilAny([]string{"endblock"})
	if err != nil {
		return nil, err
	}
	node.Body = body
	p.advance() // 'endblock'
	if p.identValue() == name {
		p.advance()
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseExtends(pos ast.Position) (ast.Statement, error) {
	tmpl, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return &ast.Extends{Position: pos, Template: tmpl}, nil
}

func (p *Parser) parseInclude(pos ast.Position) (ast.Statement, error) {
	tmpl, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	node := &ast.Include{Position: pos, Template: tmpl, WithContext: true}
	if p.atKeyword("ignore") {
		p.advance()
		if err := p.expectKeyword("missing"); err != nil {
			return nil, err
		}
		p.advance()
		node.IgnoreMissing = true
	}
	if p.atKeyword("without") {
		p.advance()
		if err := p.expectKeyword("context"); err != nil {
			return nil, err
		}
		p.advance()
		node.WithContext = false
	} else if p.atKeyword("with") {
		p.advance()
		if err := p.expectKeyword("context"); err != nil {
			return nil, err
		}
		p.advance()
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseImport(pos ast.Position) (ast.Statement, error) {
	tmpl, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("as"); err != nil {
		return nil, err
	}
	p.advance()
	target := p.identValue()
	if target == "" {
		return nil, p.errf("expected alias name after 'as'")
	}
	p.advance()
	node := &ast.ImportAs{Position: pos, Template: tmpl, Target: target}
	if p.atKeyword("with") {
		p.advance()
		p.advance() // 'context'
		node.WithContext = true
	} else if p.atKeyword("without") {
		p.advance()
		p.advance() // 'context'
		node.WithContext = false
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseFromImport(pos ast.Position) (ast.Statement, error) {
	tmpl, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("import"); err != nil {
		return nil, err
	}
	p.advance()
	node := &ast.FromImport{Position: pos, Template: tmpl}
	for {
		name := p.identValue()
		if name == "" {
			return nil, p.errf("expected imported name")
		}
		p.advance()
		alias := name
		if p.atKeyword("as") {
			p.advance()
			alias = p.identValue()
			if alias == "" {
				return nil, p.errf("expected alias after 'as'")
			}
			p.advance()
		}
		node.Names = append(node.Names, ast.ImportedName{Name: name, Alias: alias})
		if p.peek().Type == lexer.TokenComma {
			p.advance()
			continue
		}
		break
	}
	if p.atKeyword("with") {
		p.advance()
		p.advance()
		node.WithContext = true
	} else if p.atKeyword("without") {
		p.advance()
		p.advance()
		node.WithContext = false
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseMacroParams() ([]ast.MacroParam, error) {
	if _, err := p.expect(lexer.TokenLeftParen); err != nil {
		return nil, err
	}
	var params []ast.MacroParam
	for p.peek().Type != lexer.TokenRightParen {
		name := p.identValue()
		if name == "" {
			return nil, p.errf("expected parameter name")
		}
		p.advance()
		var def ast.Expression
		if p.peek().Type == lexer.TokenAssign {
			p.advance()
			var err error
			def, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		params = append(params, ast.MacroParam{Name: name, Default: def})
		if p.peek().Type == lexer.TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.TokenRightParen); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseMacro(pos ast.Position) (ast.Statement, error) {
	name := p.identValue()
	if name == "" {
		return nil, p.errf("expected macro name")
	}
	p.advance()
	params, err := p.parseMacroParams()
	if err != nil {
		return nil, err
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	body, _, err := p.parseUntilAny([]string{"endmacro"})
	if err != nil {
		return nil, err
	}
	p.advance() // 'endmacro'
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return &ast.Macro{Position: pos, Name: name, Params: params, Body: body}, nil
}

func (p *Parser) parseCallBlock(pos ast.Position) (ast.Statement, error) {
	var callerParams []ast.MacroParam
	if p.peek().Type == lexer.TokenLeftParen {
		var err error
		callerParams, err = p.parseMacroParams()
		if err != nil {
			return nil, err
		}
	}
	callee, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	call, ok := callee.(*ast.Call)
	if !ok {
		return nil, p.errf("expected macro call after 'call'")
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	body, _, err := p.parseUntilAny([]string{"endcall"})
	if err != nil {
		return nil, err
	}
	p.advance() // 'endcall'
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return &ast.CallBlock{Position: pos, Call: call, Params: callerParams, Body: body}, nil
}

func (p *Parser) parseSet(pos ast.Position) (ast.Statement, error) {
	name := p.identValue()
	if name == "" {
		return nil, p.errf("expected variable name after 'set'")
	}
	p.advance()
	node := &ast.Set{Position: pos, Target: name}
	for p.peek().Type == lexer.TokenDot {
		p.advance()
		attr := p.identValue()
		if attr == "" {
			return nil, p.errf("expected attribute name after '.'")
		}
		p.advance()
		node.Attr = append(node.Attr, attr)
	}
	if p.peek().Type == lexer.TokenPipe {
		// block-form with filters: {% set x | filter %}...{% endset %}
		for p.peek().Type == lexer.TokenPipe {
			p.advance()
			fc, err := p.parseFilterCall()
			if err != nil {
				return nil, err
			}
			node.Filters = append(node.Filters, fc)
		}
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		body, _, err := p.parseUntilAny([]string{"endset"})
		if err != nil {
			return nil, err
		}
		node.Body = body
		p.advance() // 'endset'
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		return node, nil
	}
	if p.peek().Type == lexer.TokenAssign {
		p.advance()
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		node.Value = val
		if err := p.expectBlockEnd(); err != nil {
			return nil, err
		}
		return node, nil
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	body, _, err := p.parseUntilAny([]string{"endset"})
	if err != nil {
		return nil, err
	}
	node.Body = body
	p.advance() // 'endset'
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseWith(pos ast.Position) (ast.Statement, error) {
	node := &ast.With{Position: pos}
	if !p.atBlockEnd() {
		for {
			name := p.identValue()
			if name == "" {
				return nil, p.errf("expected name in 'with'")
			}
			p.advance()
			if _, err := p.expect(lexer.TokenAssign); err != nil {
				return nil, err
			}
			val, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			node.Names = append(node.Names, name)
			node.Values = append(node.Values, val)
			if p.peek().Type == lexer.TokenComma {
				p.advance()
				continue
			}
			break
		}
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	body, _, err := p.parseUntilAny([]string{"endwith"})
	if err != nil {
		return nil, err
	}
	node.Body = body
	p.advance() // 'endwith'
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseFilterBlock(pos ast.Position) (ast.Statement, error) {
	node := &ast.FilterBlock{Position: pos}
	for {
		fc, err := p.parseFilterCall()
		if err != nil {
			return nil, err
		}
		node.Filters = append(node.Filters, fc)
		if p.peek().Type == lexer.TokenPipe {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	body, _, err := p.parseUntilAny([]string{"endfilter"})
	if err != nil {
		return nil, err
	}
	node.Body = body
	p.advance() // 'endfilter'
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseAutoescape(pos ast.Position) (ast.Statement, error) {
	enabled, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	body, _, err := p.parseUntilAny([]string{"endautoescape"})
	if err != nil {
		return nil, err
	}
	p.advance() // 'endautoescape'
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return &ast.Autoescape{Position: pos, Enabled: enabled, Body: body}, nil
}

// parseRaw consumes the matching {% endraw %} tag itself because the lexer
// already emitted everything between as a single DATA token (see
// lexer.lexRawBlock), so there is no nested statement parsing to do here.
func (p *Parser) parseRaw(pos ast.Position) (ast.Statement, error) {
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	content := ""
	if p.peek().Type == lexer.TokenData {
		content = p.advance().Value
	}
	if t := p.peek().Type; t == lexer.TokenBlockStart || t == lexer.TokenBlockStartTrim {
		p.advance()
	}
	if err := p.expectKeyword("endraw"); err != nil {
		return nil, err
	}
	p.advance()
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return &ast.Raw{Position: pos, Content: content}, nil
}

func (p *Parser) parseDo(pos ast.Position) (ast.Statement, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectBlockEnd(); err != nil {
		return nil, err
	}
	return &ast.Do{Position: pos, Expr: expr}, nil
}
