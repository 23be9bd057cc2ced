package kiln

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is an Environment's settings in externalized form, loadable from a
// YAML file per SPEC_FULL.md §2 — grounded on the teacher's
// EnvironmentOption family (environment.go's WithAutoescape/WithTrimBlocks/
// etc.) flattened into one struct a deployment can check into source
// control instead of wiring functional options by hand at every call site.
type Config struct {
	VarStart     string `yaml:"var_start"`
	VarEnd       string `yaml:"var_end"`
	BlockStart   string `yaml:"block_start"`
	BlockEnd     string `yaml:"block_end"`
	CommentStart string `yaml:"comment_start"`
	CommentEnd   string `yaml:"comment_end"`

	LineStatementPrefix string `yaml:"line_statement_prefix"`
	LineCommentPrefix   string `yaml:"line_comment_prefix"`

	TrimBlocks          bool `yaml:"trim_blocks"`
	LstripBlocks        bool `yaml:"lstrip_blocks"`
	KeepTrailingNewline bool `yaml:"keep_trailing_newline"`

	Autoescape        bool     `yaml:"autoescape"`
	AutoescapeExtensions []string `yaml:"autoescape_extensions"`

	UndefinedPolicy string `yaml:"undefined_policy"` // "strict" | "chainable" | "lenient" | "debug"
	MaxRecursion    int    `yaml:"max_recursion"`

	TemplateCacheSize int    `yaml:"template_cache_size"`
	BytecodeCacheDir  string `yaml:"bytecode_cache_dir"`

	Sandboxed bool `yaml:"sandboxed"`

	SearchPaths []string `yaml:"search_paths"`
}

// DefaultConfig mirrors lexer.DefaultConfig's delimiter choice plus kiln's
// own defaults for the settings the lexer config doesn't cover.
func DefaultConfig() *Config {
	return &Config{
		VarStart: "{{", VarEnd: "}}",
		BlockStart: "{%", BlockEnd: "%}",
		CommentStart: "{#", CommentEnd: "#}",
		UndefinedPolicy:   "lenient",
		MaxRecursion:      100,
		TemplateCacheSize: 256,
		AutoescapeExtensions: []string{".html", ".htm", ".xml"},
	}
}

// LoadConfig reads and parses a YAML config file, filling any field the file
// omits from DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kiln: load config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("kiln: parse config %s: %w", path, err)
	}
	return cfg, nil
}
