package parser

import (
	"strconv"

	"github.com/kilnjinja/kiln/ast"
	"github.com/kilnjinja/kiln/lexer"
)

// parseExpression is the grammar entry point: ternary over the `or` level,
// matching Jinja2's `A if B else C` conditional expression.
func (p *Parser) parseExpression() (ast.Expression, error) {
	pos := p.pos_()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.atKeyword("if") {
		p.advance()
		test, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		var elseExpr ast.Expression
		if p.atKeyword("else") {
			p.advance()
			elseExpr, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		return &ast.Conditional{Position: pos, Cond: test, IfTrue: cond, IfFalse: elseExpr}, nil
	}
	return cond, nil
}

func (p *Parser) parseOr() (ast.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		pos := p.pos_()
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Op: ast.OpOr, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		pos := p.pos_()
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Op: ast.OpAnd, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expression, error) {
	if p.atKeyword("not") {
		pos := p.pos_()
		p.advance()
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: ast.OpNot, Expr: e, Position: pos}, nil
	}
	return p.parseCompare()
}

func (p *Parser) parseCompare() (ast.Expression, error) {
	pos := p.pos_()
	first, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	var links []ast.CompareLink
	for {
		op, ok, err := p.tryCompareOp()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		links = append(links, ast.CompareLink{Op: op, Right: right})
	}
	if len(links) == 0 {
		return first, nil
	}
	return &ast.Compare{First: first, Links: links, Position: pos}, nil
}

func (p *Parser) tryCompareOp() (ast.CompareOpKind, bool, error) {
	switch p.peek().Type {
	case lexer.TokenEqual:
		p.advance()
		return ast.CmpEq, true, nil
	case lexer.TokenNotEqual:
		p.advance()
		return ast.CmpNe, true, nil
	case lexer.TokenLess:
		p.advance()
		return ast.CmpLt, true, nil
	case lexer.TokenLessEqual:
		p.advance()
		return ast.CmpLe, true, nil
	case lexer.TokenGreater:
		p.advance()
		return ast.CmpGt, true, nil
	case lexer.TokenGreaterEqual:
		p.advance()
		return ast.CmpGe, true, nil
	case lexer.TokenIdentifier:
		if p.peek().Value == "in" {
			p.advance()
			return ast.CmpIn, true, nil
		}
		if p.peek().Value == "not" && p.peekAt(1).Type == lexer.TokenIdentifier && p.peekAt(1).Value == "in" {
			p.advance()
			p.advance()
			return ast.CmpNotIn, true, nil
		}
	}
	return 0, false, nil
}

func (p *Parser) parseConcat() (ast.Expression, error) {
	pos := p.pos_()
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != lexer.TokenTilde {
		return left, nil
	}
	parts := []ast.Expression{left}
	for p.peek().Type == lexer.TokenTilde {
		p.advance()
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	return &ast.Concat{Parts: parts, Position: pos}, nil
}

func (p *Parser) parseAdd() (ast.Expression, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == lexer.TokenPlus || p.peek().Type == lexer.TokenMinus {
		pos := p.pos_()
		op := ast.OpAdd
		if p.peek().Type == lexer.TokenMinus {
			op = ast.OpSub
		}
		p.advance()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Op: op, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *Parser) parseMul() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOpKind
		switch p.peek().Type {
		case lexer.TokenMultiply:
			op = ast.OpMul
		case lexer.TokenDivide:
			op = ast.OpDiv
		case lexer.TokenFloorDivide:
			op = ast.OpFloorDiv
		case lexer.TokenModulo:
			op = ast.OpMod
		default:
			return left, nil
		}
		pos := p.pos_()
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Op: op, Left: left, Right: right, Position: pos}
	}
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	if p.peek().Type == lexer.TokenMinus || p.peek().Type == lexer.TokenPlus {
		pos := p.pos_()
		op := ast.OpNeg
		if p.peek().Type == lexer.TokenPlus {
			op = ast.OpPos
		}
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: op, Expr: e, Position: pos}, nil
	}
	return p.parsePow()
}

func (p *Parser) parsePow() (ast.Expression, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != lexer.TokenPower {
		return base, nil
	}
	pos := p.pos_()
	p.advance()
	exp, err := p.parseUnary() // right-associative
	if err != nil {
		return nil, err
	}
	return &ast.BinOp{Op: ast.OpPow, Left: base, Right: exp, Position: pos}, nil
}

// parsePostfix applies attribute/subscript/call/filter/test suffixes
// left-associatively to a primary expression, per spec.md §4.2's precedence
// table (filter | and test `is` bind at the postfix level, same as real
// Jinja2's grammar).
func (p *Parser) parsePostfix() (ast.Expression, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case lexer.TokenDot:
			pos := p.pos_()
			p.advance()
			name := p.identValue()
			if name == "" {
				return nil, p.errf("expected attribute name after '.'")
			}
			p.advance()
			e = &ast.Getattr{Target: e, Name: name, Position: pos}
		case lexer.TokenLeftBracket:
			e, err = p.parseSubscript(e)
			if err != nil {
				return nil, err
			}
		case lexer.TokenLeftParen:
			e, err = p.parseCallArgs(e)
			if err != nil {
				return nil, err
			}
		case lexer.TokenPipe:
			pos := p.pos_()
			p.advance()
			fc, err := p.parseFilterCall()
			if err != nil {
				return nil, err
			}
			e = &ast.Filter{Target: e, Call: fc, Position: pos}
		case lexer.TokenIdentifier:
			if p.peek().Value != "is" {
				return e, nil
			}
			pos := p.pos_()
			p.advance()
			not := false
			if p.atKeyword("not") {
				not = true
				p.advance()
			}
			name := p.identValue()
			if name == "" {
				return nil, p.errf("expected test name after 'is'")
			}
			p.advance()
			var args []ast.FilterArg
			if p.peek().Type == lexer.TokenLeftParen {
				args, err = p.parseParenArgs()
				if err != nil {
					return nil, err
				}
			} else if canStartTestArg(p.peek().Type) {
				arg, err := p.parseConcat()
				if err != nil {
					return nil, err
				}
				args = append(args, ast.FilterArg{Value: arg})
			}
			e = &ast.Test{Target: e, Call: ast.TestCall{Name: name, Args: args, Not: not}, Position: pos}
		default:
			return e, nil
		}
	}
}

func canStartTestArg(t lexer.TokenType) bool {
	switch t {
	case lexer.TokenInteger, lexer.TokenFloat, lexer.TokenString, lexer.TokenIdentifier,
		lexer.TokenMinus, lexer.TokenLeftParen, lexer.TokenLeftBracket, lexer.TokenLeftBrace:
		return true
	}
	return false
}

// parseSubscript parses `target[expr]` or `target[a:b:c]` slice syntax, per
// spec.md §4.2.
func (p *Parser) parseSubscript(target ast.Expression) (ast.Expression, error) {
	pos := p.pos_()
	p.advance() // consume '['

	var start, stop, step ast.Expression
	var err error
	isSlice := false

	if p.peek().Type != lexer.TokenColon {
		start, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if p.peek().Type == lexer.TokenColon {
		isSlice = true
		p.advance()
		if p.peek().Type != lexer.TokenColon && p.peek().Type != lexer.TokenRightBracket {
			stop, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		if p.peek().Type == lexer.TokenColon {
			p.advance()
			if p.peek().Type != lexer.TokenRightBracket {
				step, err = p.parseExpression()
				if err != nil {
					return nil, err
				}
			}
		}
	}
	if _, err := p.expect(lexer.TokenRightBracket); err != nil {
		return nil, err
	}
	if isSlice {
		return &ast.Slice{Target: target, Start: start, Stop: stop, Step: step, Position: pos}, nil
	}
	return &ast.Getitem{Target: target, Key: start, Position: pos}, nil
}

func (p *Parser) parseCallArgs(callee ast.Expression) (ast.Expression, error) {
	pos := p.pos_()
	args, err := p.parseParenArgsNamed()
	if err != nil {
		return nil, err
	}
	return &ast.Call{Callee: callee, Args: args, Position: pos}, nil
}

func (p *Parser) parseParenArgsNamed() ([]ast.Arg, error) {
	if _, err := p.expect(lexer.TokenLeftParen); err != nil {
		return nil, err
	}
	var args []ast.Arg
	for p.peek().Type != lexer.TokenRightParen {
		name := ""
		if p.peek().Type == lexer.TokenIdentifier && p.peekAt(1).Type == lexer.TokenAssign {
			name = p.advance().Value
			p.advance() // '='
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, ast.Arg{Name: name, Value: val})
		if p.peek().Type == lexer.TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.TokenRightParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseParenArgs() ([]ast.FilterArg, error) {
	named, err := p.parseParenArgsNamed()
	if err != nil {
		return nil, err
	}
	out := make([]ast.FilterArg, len(named))
	for i, a := range named {
		out[i] = ast.FilterArg{Name: a.Name, Value: a.Value}
	}
	return out, nil
}

func (p *Parser) parseFilterCall() (ast.FilterCall, error) {
	name := p.identValue()
	if name == "" {
		return ast.FilterCall{}, p.errf("expected filter name")
	}
	p.advance()
	var args []ast.FilterArg
	if p.peek().Type == lexer.TokenLeftParen {
		var err error
		args, err = p.parseParenArgs()
		if err != nil {
			return ast.FilterCall{}, err
		}
	}
	return ast.FilterCall{Name: name, Args: args}, nil
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	pos := p.pos_()
	t := p.peek()
	switch t.Type {
	case lexer.TokenInteger:
		p.advance()
		n, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal %q", t.Value)
		}
		return &ast.IntLit{Value: n, Position: pos}, nil
	case lexer.TokenFloat:
		p.advance()
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, p.errf("invalid float literal %q", t.Value)
		}
		return &ast.FloatLit{Value: f, Position: pos}, nil
	case lexer.TokenString:
		p.advance()
		s := t.Value
		for p.peek().Type == lexer.TokenString { // adjacent string literal concatenation
			s += p.advance().Value
		}
		return &ast.StringLit{Value: s, Position: pos}, nil
	case lexer.TokenIdentifier:
		switch t.Value {
		case "true", "True":
			p.advance()
			return &ast.BoolLit{Value: true, Position: pos}, nil
		case "false", "False":
			p.advance()
			return &ast.BoolLit{Value: false, Position: pos}, nil
		case "none", "None", "null":
			p.advance()
			return &ast.NullLit{Position: pos}, nil
		default:
			p.advance()
			return ast.NewName(pos.Line, pos.Template, t.Value), nil
		}
	case lexer.TokenLeftParen:
		return p.parseParenOrTuple()
	case lexer.TokenLeftBracket:
		return p.parseListLit()
	case lexer.TokenLeftBrace:
		return p.parseDictLit()
	default:
		return nil, p.errf("unexpected token %s in expression", t.Type)
	}
}

func (p *Parser) parseParenOrTuple() (ast.Expression, error) {
	pos := p.pos_()
	p.advance() // '('
	if p.peek().Type == lexer.TokenRightParen {
		p.advance()
		return &ast.TupleLit{Position: pos}, nil
	}
	first, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != lexer.TokenComma {
		if _, err := p.expect(lexer.TokenRightParen); err != nil {
			return nil, err
		}
		return first, nil
	}
	items := []ast.Expression{first}
	for p.peek().Type == lexer.TokenComma {
		p.advance()
		if p.peek().Type == lexer.TokenRightParen {
			break
		}
		item, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if _, err := p.expect(lexer.TokenRightParen); err != nil {
		return nil, err
	}
	return &ast.TupleLit{Items: items, Position: pos}, nil
}

func (p *Parser) parseListLit() (ast.Expression, error) {
	pos := p.pos_()
	p.advance() // '['
	var items []ast.Expression
	for p.peek().Type != lexer.TokenRightBracket {
		item, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.peek().Type == lexer.TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.TokenRightBracket); err != nil {
		return nil, err
	}
	return &ast.ListLit{Items: items, Position: pos}, nil
}

func (p *Parser) parseDictLit() (ast.Expression, error) {
	pos := p.pos_()
	p.advance() // '{'
	var entries []ast.DictEntry
	for p.peek().Type != lexer.TokenRightBrace {
		key, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenColon); err != nil {
			return nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ast.DictEntry{Key: key, Value: val})
		if p.peek().Type == lexer.TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.TokenRightBrace); err != nil {
		return nil, err
	}
	return &ast.DictLit{Entries: entries, Position: pos}, nil
}
