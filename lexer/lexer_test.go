package lexer

import "testing"

func tokenTypes(t *testing.T, src string, cfg *Config) []TokenType {
	t.Helper()
	toks, err := Tokenize(src, cfg)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", src, err)
	}
	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestTokenizeDataAndVariable(t *testing.T) {
	toks, err := Tokenize("hi {{ name }}!", nil)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []TokenType{TokenData, TokenVarStart, TokenIdentifier, TokenVarEnd, TokenData, TokenEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Type, tt)
		}
	}
	if toks[0].Value != "hi " {
		t.Errorf("data 0: got %q", toks[0].Value)
	}
	if toks[2].Value != "name" {
		t.Errorf("identifier: got %q", toks[2].Value)
	}
}

func TestTokenizeBlockAndComment(t *testing.T) {
	types := tokenTypes(t, "{% if x %}{# note #}y{% endif %}", nil)
	want := []TokenType{
		TokenBlockStart, TokenIdentifier, TokenIdentifier, TokenBlockEnd,
		TokenCommentStart, TokenData, TokenBlockStart, TokenIdentifier, TokenBlockEnd, TokenEOF,
	}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i, tt := range want {
		if types[i] != tt {
			t.Errorf("token %d: got %s, want %s", i, types[i], tt)
		}
	}
}

func TestNumberLiterals(t *testing.T) {
	cases := map[string]TokenType{
		"123":    TokenInteger,
		"1_000":  TokenInteger,
		"1.5":    TokenFloat,
		"1e3":    TokenFloat,
		"1.5e-2": TokenFloat,
	}
	for src, want := range cases {
		toks, err := Tokenize("{{ "+src+" }}", nil)
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", src, err)
		}
		if toks[1].Type != want {
			t.Errorf("%q: got %s, want %s", src, toks[1].Type, want)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	toks, err := Tokenize(`{{ "a\nb\tc\\d\x41" }}`, nil)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := "a\nb\tc\\d\x41"
	if toks[1].Value != want {
		t.Errorf("got %q, want %q", toks[1].Value, want)
	}
}

func TestUnterminatedStringErrors(t *testing.T) {
	_, err := Tokenize(`{{ "abc }}`, nil)
	if err == nil {
		t.Fatal("expected an unterminated-string error")
	}
}

func TestRawBlockSuppressesDelimiters(t *testing.T) {
	toks, err := Tokenize("{% raw %}{{ not an expr }}{% endraw %}", nil)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var data []string
	for _, tok := range toks {
		if tok.Type == TokenData {
			data = append(data, tok.Value)
		}
	}
	if len(data) != 1 || data[0] != "{{ not an expr }}" {
		t.Errorf("got data tokens %v", data)
	}
}

func TestUnterminatedRawBlockErrors(t *testing.T) {
	_, err := Tokenize("{% raw %}body without end", nil)
	if err == nil {
		t.Fatal("expected an unterminated raw-block error")
	}
}

func TestInlineTrimMarkers(t *testing.T) {
	toks, err := Tokenize("a  \n  {%- if x -%}  \n  b", nil)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Type != TokenData || toks[0].Value != "a  \n" {
		t.Errorf("leading data not trimmed to last newline: %q", toks[0].Value)
	}
	var tailData string
	for _, tok := range toks {
		if tok.Type == TokenData && tok.Value != toks[0].Value {
			tailData = tok.Value
		}
	}
	if tailData != "b" {
		t.Errorf("trailing data not right-trimmed: %q", tailData)
	}
}

func TestGlobalTrimBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrimBlocks = true
	toks, err := Tokenize("{% if x %}\ny", cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	for _, tok := range toks {
		if tok.Type == TokenData && tok.Value != "y" {
			t.Errorf("expected the newline right after %%} to be consumed, got data %q", tok.Value)
		}
	}
}

func TestGlobalLstripBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LstripBlocks = true
	toks, err := Tokenize("x\n   {% if y %}z", cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Value != "x\n" {
		t.Errorf("expected leading indentation before the block tag to be stripped, got %q", toks[0].Value)
	}
}

func TestKeepTrailingNewlineDefaultStripsOne(t *testing.T) {
	toks, err := Tokenize("hello\n", nil)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Value != "hello" {
		t.Errorf("expected the trailing newline to be stripped by default, got %q", toks[0].Value)
	}
}

func TestKeepTrailingNewlineOptedIn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepTrailingNewline = true
	toks, err := Tokenize("hello\n", cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Value != "hello\n" {
		t.Errorf("expected the trailing newline to survive, got %q", toks[0].Value)
	}
}

func TestLineStatementPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LineStatementPrefix = "#"
	src := "before\n# if x\n  body\n# endif\nafter"
	toks, err := Tokenize(src, cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var types []TokenType
	for _, tok := range toks {
		types = append(types, tok.Type)
	}
	foundIf := false
	for i, tok := range toks {
		if tok.Type == TokenBlockStart && i+1 < len(toks) && toks[i+1].Value == "if" {
			foundIf = true
		}
	}
	if !foundIf {
		t.Errorf("expected a BLOCK_START/if pair from the line statement, got %v", types)
	}
}

func TestLineCommentPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LineCommentPrefix = "##"
	src := "keep\n## dropped entirely\nkeep2"
	toks, err := Tokenize(src, cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	for _, tok := range toks {
		if tok.Type == TokenData {
			if tok.Value == "keep\n## dropped entirely\nkeep2" {
				t.Fatalf("line comment was not stripped: %q", tok.Value)
			}
		}
	}
}

func TestCustomDelimiters(t *testing.T) {
	cfg := &Config{VarStart: "<<", VarEnd: ">>", BlockStart: "[%", BlockEnd: "%]", CommentStart: "[#", CommentEnd: "#]"}
	toks, err := Tokenize("[% if x %]<< y >>[% endif %]", cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Type != TokenBlockStart || toks[4].Type != TokenVarStart {
		t.Errorf("custom delimiters not recognized: %v", toks)
	}
}

func TestIsKeyword(t *testing.T) {
	for _, kw := range []string{"and", "or", "not", "if", "true", "none"} {
		if !IsKeyword(kw) {
			t.Errorf("expected %q to be a keyword", kw)
		}
	}
	if IsKeyword("banana") {
		t.Error("banana should not be a keyword")
	}
}
