// Package loader implements spec.md §6's source-loading contract: a Loader
// resolves a template name to source text and can tell the environment
// whether a previously-fetched copy is still current, grounded on miya's
// loader/loader.go (FileSystemLoader/EmbedLoader/ChainLoader family) with the
// parsed-template caching stripped out — compiling and caching bytecode is
// the environment's job (§4.6/§4.7), not the loader's.
package loader

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Loader resolves template names to source text.
type Loader interface {
	// Load returns the current source for name, or an error if it cannot be
	// found.
	Load(name string) (string, error)
	// Uptodate reports whether the copy loaded at lastModified is still
	// current. A loader with no notion of modification time (DictLoader,
	// FuncLoader, PackagedLoader) always returns true: re-fetching costs the
	// same as checking, so there is nothing to check against.
	Uptodate(name string, lastModified time.Time) (bool, error)
}

// FilesystemLoader loads templates from one or more search directories,
// trying each in order and, absent an extension on name, each of extensions
// in turn — grounded on miya's FileSystemLoader.findTemplate.
type FilesystemLoader struct {
	searchPaths []string
	extensions  []string
	followLinks bool
}

// NewFilesystemLoader creates a loader searching searchPaths in order.
func NewFilesystemLoader(searchPaths ...string) *FilesystemLoader {
	return &FilesystemLoader{
		searchPaths: searchPaths,
		extensions:  []string{".html", ".htm", ".jinja", ".jinja2", ".j2", ".txt"},
	}
}

// SetExtensions overrides the extensions tried when name has none.
func (f *FilesystemLoader) SetExtensions(extensions []string) {
	f.extensions = extensions
}

// SetFollowLinks enables or disables following symbolic links when resolving
// a template path.
func (f *FilesystemLoader) SetFollowLinks(follow bool) {
	f.followLinks = follow
}

func (f *FilesystemLoader) Load(name string) (string, error) {
	path, err := f.resolve(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", name, err)
	}
	return string(content), nil
}

func (f *FilesystemLoader) Uptodate(name string, lastModified time.Time) (bool, error) {
	path, err := f.resolve(name)
	if err != nil {
		return false, nil
	}
	stat, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	return !stat.ModTime().After(lastModified), nil
}

// ListTemplates walks every search path and returns every file whose
// extension is in extensions, relative to its search path.
func (f *FilesystemLoader) ListTemplates() ([]string, error) {
	var templates []string
	seen := make(map[string]bool)

	for _, searchPath := range f.searchPaths {
		err := filepath.WalkDir(searchPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if !f.hasValidExtension(path) {
				return nil
			}
			relPath, err := filepath.Rel(searchPath, path)
			if err != nil {
				return nil
			}
			name := filepath.ToSlash(relPath)
			if !seen[name] {
				templates = append(templates, name)
				seen[name] = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", searchPath, err)
		}
	}
	return templates, nil
}

func (f *FilesystemLoader) hasValidExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, valid := range f.extensions {
		if ext == valid {
			return true
		}
	}
	return false
}

func (f *FilesystemLoader) resolve(name string) (string, error) {
	name = resolveTemplateName(name)
	if name == "" {
		return "", fmt.Errorf("invalid template name")
	}
	for _, searchPath := range f.searchPaths {
		full := filepath.Join(searchPath, name)
		if f.fileExists(full) {
			return full, nil
		}
		if filepath.Ext(name) == "" {
			for _, ext := range f.extensions {
				withExt := full + ext
				if f.fileExists(withExt) {
					return withExt, nil
				}
			}
		}
	}
	return "", fmt.Errorf("template not found: %s", name)
}

func (f *FilesystemLoader) fileExists(path string) bool {
	stat, err := os.Lstat(path)
	if err != nil {
		return false
	}
	if stat.Mode()&os.ModeSymlink != 0 {
		if !f.followLinks {
			return false
		}
		stat, err = os.Stat(path)
		if err != nil {
			return false
		}
	}
	return !stat.IsDir()
}

// resolveTemplateName cleans a template name and rejects directory
// traversal, shared by FilesystemLoader and PackagedLoader.
func resolveTemplateName(name string) string {
	name = filepath.Clean(name)
	name = strings.TrimPrefix(name, "/")
	if strings.Contains(name, "..") {
		return ""
	}
	return name
}

// DictLoader serves templates from an in-memory map — useful for tests and
// for applications that assemble templates programmatically rather than
// from files.
type DictLoader struct {
	templates map[string]string
}

// NewDictLoader creates a loader over the given name->source map. The map
// is used directly (not copied): callers may keep mutating it to simulate a
// changing template source.
func NewDictLoader(templates map[string]string) *DictLoader {
	if templates == nil {
		templates = make(map[string]string)
	}
	return &DictLoader{templates: templates}
}

func (d *DictLoader) Load(name string) (string, error) {
	content, ok := d.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}
	return content, nil
}

func (d *DictLoader) Uptodate(name string, lastModified time.Time) (bool, error) {
	return true, nil
}

// Set adds or replaces a template's source.
func (d *DictLoader) Set(name, content string) {
	d.templates[name] = content
}

func (d *DictLoader) ListTemplates() ([]string, error) {
	names := make([]string, 0, len(d.templates))
	for name := range d.templates {
		names = append(names, name)
	}
	return names, nil
}

// FuncLoader adapts a plain callback into a Loader, mirroring miya's
// LoaderFunc but kept to the new two-method contract.
type FuncLoader func(name string) (string, error)

func (f FuncLoader) Load(name string) (string, error) {
	return f(name)
}

func (f FuncLoader) Uptodate(name string, lastModified time.Time) (bool, error) {
	return true, nil
}

// ChoiceLoader tries a list of loaders in order and returns the first
// successful result, grounded on miya's ChainLoader.
type ChoiceLoader struct {
	loaders []Loader
}

func NewChoiceLoader(loaders ...Loader) *ChoiceLoader {
	return &ChoiceLoader{loaders: loaders}
}

func (c *ChoiceLoader) Load(name string) (string, error) {
	var lastErr error
	for _, l := range c.loaders {
		source, err := l.Load(name)
		if err == nil {
			return source, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("template not found: %s", name)
}

// Uptodate asks the first loader that can currently serve name whether the
// previously loaded copy is still current.
func (c *ChoiceLoader) Uptodate(name string, lastModified time.Time) (bool, error) {
	for _, l := range c.loaders {
		if _, err := l.Load(name); err != nil {
			continue
		}
		return l.Uptodate(name, lastModified)
	}
	return false, fmt.Errorf("template not found: %s", name)
}

// PrefixLoader routes "prefix/name" to the sub-loader registered under
// prefix, stripping the prefix before delegating.
type PrefixLoader struct {
	delimiter string
	loaders   map[string]Loader
}

// NewPrefixLoader creates a loader routing on delimiter-separated prefixes
// ("/" is the conventional choice, matching Jinja2's PrefixLoader).
func NewPrefixLoader(delimiter string, loaders map[string]Loader) *PrefixLoader {
	if delimiter == "" {
		delimiter = "/"
	}
	return &PrefixLoader{delimiter: delimiter, loaders: loaders}
}

func (p *PrefixLoader) split(name string) (Loader, string, error) {
	parts := strings.SplitN(name, p.delimiter, 2)
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("no prefix delimiter in template name: %s", name)
	}
	sub, ok := p.loaders[parts[0]]
	if !ok {
		return nil, "", fmt.Errorf("no loader registered for prefix %q", parts[0])
	}
	return sub, parts[1], nil
}

func (p *PrefixLoader) Load(name string) (string, error) {
	sub, rest, err := p.split(name)
	if err != nil {
		return "", err
	}
	return sub.Load(rest)
}

func (p *PrefixLoader) Uptodate(name string, lastModified time.Time) (bool, error) {
	sub, rest, err := p.split(name)
	if err != nil {
		return false, err
	}
	return sub.Uptodate(rest, lastModified)
}

// PackagedLoader serves templates from a compiled-in embed.FS, grounded on
// miya's EmbedLoader. Embedded content never changes at runtime, so Uptodate
// is always true.
type PackagedLoader struct {
	fs         embed.FS
	prefix     string
	extensions []string
}

func NewPackagedLoader(fsys embed.FS, prefix string) *PackagedLoader {
	return &PackagedLoader{
		fs:         fsys,
		prefix:     prefix,
		extensions: []string{".html", ".htm", ".jinja", ".jinja2", ".j2", ".txt"},
	}
}

func (p *PackagedLoader) SetExtensions(extensions []string) {
	p.extensions = extensions
}

func (p *PackagedLoader) Load(name string) (string, error) {
	path := p.resolve(name)
	content, err := p.fs.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("template not found: %s", name)
	}
	return string(content), nil
}

func (p *PackagedLoader) Uptodate(name string, lastModified time.Time) (bool, error) {
	return true, nil
}

func (p *PackagedLoader) resolve(name string) string {
	name = resolveTemplateName(name)
	if name == "" {
		return ""
	}
	path := filepath.Join(p.prefix, name)
	if p.fileExists(path) {
		return path
	}
	if filepath.Ext(name) == "" {
		for _, ext := range p.extensions {
			withExt := path + ext
			if p.fileExists(withExt) {
				return withExt
			}
		}
	}
	return path
}

func (p *PackagedLoader) fileExists(path string) bool {
	f, err := p.fs.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (p *PackagedLoader) ListTemplates() ([]string, error) {
	var templates []string
	err := fs.WalkDir(p.fs, p.prefix, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		valid := false
		for _, e := range p.extensions {
			if ext == e {
				valid = true
				break
			}
		}
		if !valid {
			return nil
		}
		name := strings.TrimPrefix(path, p.prefix)
		name = strings.TrimPrefix(name, "/")
		templates = append(templates, filepath.ToSlash(name))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk embedded filesystem: %w", err)
	}
	return templates, nil
}
