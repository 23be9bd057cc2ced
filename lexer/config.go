package lexer

// Config holds the per-Environment delimiter and whitespace-control
// settings, grounded on the teacher's LexerConfig struct and extended with
// the line-statement/line-comment prefixes spec.md §4.1 requires.
type Config struct {
	VarStart     string
	VarEnd       string
	BlockStart   string
	BlockEnd     string
	CommentStart string
	CommentEnd   string

	// LineStatementPrefix, when non-empty, makes a line whose first
	// non-whitespace characters match the prefix behave as if it were
	// wrapped in BlockStart/BlockEnd, up to the end of the physical line.
	LineStatementPrefix string
	// LineCommentPrefix, when non-empty, makes the rest of a physical line
	// from the prefix onward a comment.
	LineCommentPrefix string

	TrimBlocks          bool
	LstripBlocks        bool
	KeepTrailingNewline bool
}

// DefaultConfig returns Jinja2's standard delimiter set.
func DefaultConfig() *Config {
	return &Config{
		VarStart: "{{", VarEnd: "}}",
		BlockStart: "{%", BlockEnd: "%}",
		CommentStart: "{#", CommentEnd: "#}",
	}
}
