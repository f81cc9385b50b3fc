// Package i18n renders protocol error kinds into localized messages.
// Catalogs are flat JSON maps of kind -> template with Fluent-style
// `{ $name }` placeholders. Built-in catalogs are embedded; an optional
// override directory layers on top and is hot-reloaded on change.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/outbound"
)

// DefaultLocale is the fallback for missing locales and missing keys.
const DefaultLocale = "en"

//go:embed catalogs/*.json
var catalogFS embed.FS

// Formatter is a pure (kind, params, locale) -> string function over the
// loaded catalogs. Lookup order: requested locale, its base language, then
// English; a key missing everywhere renders as the kind name itself.
type Formatter struct {
	logger outbound.Logger

	mu      sync.RWMutex
	locales map[string]map[string]string
}

var _ outbound.Localizer = (*Formatter)(nil)

func NewFormatter(logger outbound.Logger) (*Formatter, error) {
	f := &Formatter{
		logger:  logger,
		locales: make(map[string]map[string]string),
	}
	if err := f.loadFS(catalogFS, "catalogs"); err != nil {
		return nil, fmt.Errorf("loading embedded catalogs: %w", err)
	}
	if _, ok := f.locales[DefaultLocale]; !ok {
		return nil, fmt.Errorf("embedded catalogs missing %q", DefaultLocale)
	}
	return f, nil
}

// Locales returns the loaded locale codes, sorted.
func (f *Formatter) Locales() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	codes := make([]string, 0, len(f.locales))
	for code := range f.locales {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Localize renders the kind in the requested locale, substituting
// placeholders from params.
func (f *Formatter) Localize(locale string, kind model.ErrorKind, params map[string]string) string {
	template, ok := f.lookup(locale, string(kind))
	if !ok {
		return string(kind)
	}
	return substitute(template, params)
}

func (f *Formatter) lookup(locale, key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, code := range candidates(locale) {
		if catalog, ok := f.locales[code]; ok {
			if template, ok := catalog[key]; ok {
				return template, true
			}
		}
	}
	return "", false
}

// candidates orders locale codes from most to least specific, always ending
// in English.
func candidates(locale string) []string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	out := make([]string, 0, 3)
	if locale != "" {
		out = append(out, locale)
		if base, _, found := strings.Cut(locale, "-"); found && base != "" {
			out = append(out, base)
		}
	}
	if len(out) == 0 || out[len(out)-1] != DefaultLocale {
		out = append(out, DefaultLocale)
	}
	return out
}

func substitute(template string, params map[string]string) string {
	if len(params) == 0 || !strings.Contains(template, "{") {
		return template
	}
	for key, value := range params {
		template = strings.ReplaceAll(template, "{ $"+key+" }", value)
		template = strings.ReplaceAll(template, "{$"+key+"}", value)
	}
	return template
}

// LoadOverrides merges every *.json catalog in dir over the current set.
// Files load in lexicographic order, so for duplicate locales the later
// file wins key by key.
func (f *Formatter) LoadOverrides(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := f.merge(localeFromFilename(name), data); err != nil {
			return fmt.Errorf("catalog %s: %w", name, err)
		}
	}
	return nil
}

func (f *Formatter) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		if err := f.merge(localeFromFilename(e.Name()), data); err != nil {
			return fmt.Errorf("catalog %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (f *Formatter) merge(locale string, data []byte) error {
	var catalog map[string]string
	if err := json.Unmarshal(data, &catalog); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.locales[locale]
	if existing == nil {
		existing = make(map[string]string, len(catalog))
		f.locales[locale] = existing
	}
	for key, template := range catalog {
		existing[key] = template
	}
	return nil
}

// localeFromFilename maps "pt-BR.json" to "pt-br".
func localeFromFilename(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, ".json"))
}
