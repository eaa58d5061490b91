// Package importer knows the CSV layouts of common banks and reads export
// files into header-keyed rows.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cleared-dev/finscan/internal/model"
)

// Preset is a known bank export layout.
type Preset struct {
	Name        string
	Institution string
	// Identifiers are headers that together single out this layout.
	Identifiers []string
	Mapping     model.CsvMapping
}

// NewMapping returns a copy of the preset mapping under the given name.
func (p Preset) NewMapping(name string) model.CsvMapping {
	m := p.Mapping
	if name == "" {
		name = p.Name
	}
	m.Name = name
	m.Columns = append([]model.ColumnBinding(nil), p.Mapping.Columns...)
	m.DebitKeywords = append([]string(nil), p.Mapping.DebitKeywords...)
	if len(m.DebitKeywords) == 0 {
		m.DebitKeywords = nil
	}
	return m
}

// Registry holds named presets.
type Registry struct {
	presets map[string]Preset
}

// FileInfo describes a CSV file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty preset registry.
func NewRegistry() *Registry {
	return &Registry{presets: make(map[string]Preset)}
}

// Register adds a preset. Panics on duplicate name.
func (r *Registry) Register(p Preset) {
	key := strings.ToLower(p.Name)
	if _, ok := r.presets[key]; ok {
		panic("duplicate preset: " + key)
	}
	r.presets[key] = p
}

// Get returns the preset with the given name.
func (r *Registry) Get(name string) (Preset, bool) {
	p, ok := r.presets[strings.ToLower(name)]
	return p, ok
}

// Names lists registered presets in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.presets))
	for _, p := range r.presets {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Detect returns the preset whose identifiers all appear in headers. When
// several match, the one with the most identifiers wins.
func (r *Registry) Detect(headers []string) (Preset, bool) {
	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[strings.ToLower(strings.TrimSpace(h))] = true
	}

	var (
		best  Preset
		found bool
	)
	for _, name := range r.Names() {
		p := r.presets[strings.ToLower(name)]
		if !matches(p.Identifiers, have) {
			continue
		}
		if !found || len(p.Identifiers) > len(best.Identifiers) {
			best, found = p, true
		}
	}
	return best, found
}

func matches(ids []string, have map[string]bool) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !have[strings.ToLower(id)] {
			return false
		}
	}
	return true
}

// DefaultRegistry returns a registry with all built-in presets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range builtinPresets() {
		r.Register(p)
	}
	return r
}

// processedDir is the subdirectory of the import dir that receives imported files.
const processedDir = "processed"

// Scan returns CSV files directly inside dir.
func Scan(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves dir/fileName into dir/processed/.
func MarkProcessed(dir, fileName string) error {
	dstDir := filepath.Join(dir, processedDir)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	if err := os.Rename(filepath.Join(dir, fileName), filepath.Join(dstDir, fileName)); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
