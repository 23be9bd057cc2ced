// Package lexer tokenizes template source text against a configurable set
// of delimiters, grounded on the teacher's lexer/token.go + lexer/lexer.go
// state machine (stateText/stateVariable/stateBlock/stateComment) and
// extended per spec.md §4.1 with line-statement/line-comment prefixes and
// raw-block delimiter suppression (lexRawBlock, run from the text state).
package lexer

import "fmt"

// TokenType discriminates lexical token kinds.
type TokenType int

const (
	TokenError TokenType = iota
	TokenEOF

	TokenData // raw template text between delimiters
	TokenInteger
	TokenFloat
	TokenString
	TokenIdentifier

	TokenVarStart
	TokenVarEnd
	TokenBlockStart
	TokenBlockEnd
	TokenCommentStart
	TokenCommentEnd

	// Whitespace-control variants: a trailing '-' on an opening delimiter or
	// a leading '-' on a closing delimiter.
	TokenVarStartTrim
	TokenVarEndTrim
	TokenBlockStartTrim
	TokenBlockEndTrim

	TokenAssign      // =
	TokenPlus        // +
	TokenMinus       // -
	TokenMultiply    // *
	TokenDivide      // /
	TokenFloorDivide // //
	TokenModulo      // %
	TokenPower       // **
	TokenPipe        // |
	TokenTilde       // ~

	TokenEqual
	TokenNotEqual
	TokenLess
	TokenLessEqual
	TokenGreater
	TokenGreaterEqual

	TokenDot
	TokenComma
	TokenColon
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenLeftBrace
	TokenRightBrace
)

var names = map[TokenType]string{
	TokenError: "ERROR", TokenEOF: "EOF", TokenData: "DATA",
	TokenInteger: "INTEGER", TokenFloat: "FLOAT", TokenString: "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenVarStart: "VAR_START", TokenVarEnd: "VAR_END",
	TokenBlockStart: "BLOCK_START", TokenBlockEnd: "BLOCK_END",
	TokenCommentStart: "COMMENT_START", TokenCommentEnd: "COMMENT_END",
	TokenVarStartTrim: "VAR_START_TRIM", TokenVarEndTrim: "VAR_END_TRIM",
	TokenBlockStartTrim: "BLOCK_START_TRIM", TokenBlockEndTrim: "BLOCK_END_TRIM",
	TokenAssign: "ASSIGN", TokenPlus: "PLUS", TokenMinus: "MINUS",
	TokenMultiply: "MULTIPLY", TokenDivide: "DIVIDE", TokenFloorDivide: "FLOOR_DIVIDE",
	TokenModulo: "MODULO", TokenPower: "POWER", TokenPipe: "PIPE", TokenTilde: "TILDE",
	TokenEqual: "EQUAL", TokenNotEqual: "NOT_EQUAL", TokenLess: "LESS",
	TokenLessEqual: "LESS_EQUAL", TokenGreater: "GREATER", TokenGreaterEqual: "GREATER_EQUAL",
	TokenDot: "DOT", TokenComma: "COMMA", TokenColon: "COLON",
	TokenLeftParen: "LEFT_PAREN", TokenRightParen: "RIGHT_PAREN",
	TokenLeftBracket: "LEFT_BRACKET", TokenRightBracket: "RIGHT_BRACKET",
	TokenLeftBrace: "LEFT_BRACE", TokenRightBrace: "RIGHT_BRACE",
}

func (t TokenType) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token is a single lexical unit: kind, source slice, and position.
type Token struct {
	Type TokenType
	// Value holds decoded literal content for STRING/INTEGER/FLOAT/
	// IDENTIFIER/DATA; it is the raw identifier text for TokenIdentifier
	// (keyword classification happens in the parser, per spec.md §4.2's
	// "Statement dispatch is by the first identifier").
	Value string
	Line  int

	// TrimLeft/TrimRight record whether the adjacent DATA token should be
	// whitespace-trimmed because of a '-' marker on this delimiter token.
	TrimLeft  bool
	TrimRight bool
}

func (t Token) String() string {
	if t.Value != "" {
		return fmt.Sprintf("%s(%q)@%d", t.Type, t.Value, t.Line)
	}
	return fmt.Sprintf("%s@%d", t.Type, t.Line)
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "else": true, "true": true, "True": true,
	"false": true, "False": true, "none": true, "None": true, "null": true,
}

// IsKeyword reports whether ident is one of the reserved expression
// keywords (spec.md §4.1); the parser still receives it as TokenIdentifier
// and classifies it by text, matching how statement-tag dispatch also works
// purely on identifier text.
func IsKeyword(ident string) bool { return keywords[ident] }
