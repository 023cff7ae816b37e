package core

// presets.go stores named column mappings so a broker that exports the same
// spreadsheet layout every month maps it once. Presets are YAML files in a
// directory, one per preset, and are matched against uploaded headers by
// overlap.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// PresetMatchThreshold is the minimum header overlap for a preset to match.
const PresetMatchThreshold = 0.7

// ErrPresetNotFound is returned for unknown preset names.
var ErrPresetNotFound = errors.New("mapping preset not found")

// MappingPreset is a saved mapping together with the headers it was made for.
type MappingPreset struct {
	Name      string        `yaml:"name" json:"name"`
	Headers   []string      `yaml:"headers" json:"headers"`
	Mapping   ColumnMapping `yaml:"mapping" json:"mapping"`
	CreatedAt time.Time     `yaml:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `yaml:"updated_at" json:"updatedAt"`
}

// PresetMatch is a preset scored against a file's headers.
type PresetMatch struct {
	Preset     MappingPreset `json:"preset"`
	MatchScore float64       `json:"matchScore"`
}

// PresetStore keeps presets as YAML files in a directory.
type PresetStore struct {
	dir string
	mu  sync.RWMutex
}

// NewPresetStore opens dir, creating it if needed.
func NewPresetStore(dir string) (*PresetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preset dir: %w", err)
	}
	return &PresetStore{dir: dir}, nil
}

// Save creates or replaces the preset with p.Name.
func (s *PresetStore) Save(p MappingPreset) (*MappingPreset, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("preset name is required")
	}
	if err := p.Mapping.Validate(p.Headers); err != nil {
		return nil, fmt.Errorf("save preset %q: %w", p.Name, err)
	}
	p.Mapping = p.Mapping.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if existing, err := s.read(s.path(p.Name)); err == nil {
		p.CreatedAt = existing.CreatedAt
	}

	data, err := yaml.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("marshal preset: %w", err)
	}
	if err := os.WriteFile(s.path(p.Name), data, 0o644); err != nil {
		return nil, fmt.Errorf("write preset: %w", err)
	}
	return &p, nil
}

// Get returns the preset with the given name.
func (s *PresetStore) Get(name string) (*MappingPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.read(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	return p, err
}

// List returns every preset sorted by name. Unreadable files are skipped.
func (s *PresetStore) List() ([]MappingPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths, err := filepath.Glob(filepath.Join(s.dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}

	presets := make([]MappingPreset, 0, len(paths))
	for _, path := range paths {
		p, err := s.read(path)
		if err != nil {
			continue
		}
		presets = append(presets, *p)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets, nil
}

// Delete removes a preset.
func (s *PresetStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	return err
}

// Match returns presets whose headers overlap headers by at least
// PresetMatchThreshold, best first.
func (s *PresetStore) Match(headers []string) ([]PresetMatch, error) {
	presets, err := s.List()
	if err != nil {
		return nil, err
	}

	var matches []PresetMatch
	for _, p := range presets {
		score := matchPresetHeaders(headers, p.Headers)
		if score >= PresetMatchThreshold {
			matches = append(matches, PresetMatch{Preset: p, MatchScore: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches, nil
}

// MappingFor returns the preset's mapping restricted to headers present in
// the file; entries for missing headers become unmapped.
func (p MappingPreset) MappingFor(headers []string) ColumnMapping {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	m := p.Mapping.Normalize()
	for f, h := range m {
		if !present[h] {
			m[f] = ""
		}
	}
	return m
}

// matchPresetHeaders returns the share of preset headers found in the file,
// compared case-insensitively.
func matchPresetHeaders(fileHeaders, presetHeaders []string) float64 {
	if len(presetHeaders) == 0 {
		return 0
	}

	fileSet := make(map[string]bool, len(fileHeaders))
	for _, h := range fileHeaders {
		fileSet[strings.ToLower(strings.TrimSpace(h))] = true
	}

	matched := 0
	for _, h := range presetHeaders {
		if fileSet[strings.ToLower(strings.TrimSpace(h))] {
			matched++
		}
	}

	return float64(matched) / float64(len(presetHeaders))
}

func (s *PresetStore) path(name string) string {
	return filepath.Join(s.dir, presetSlug(name)+".yaml")
}

func (s *PresetStore) read(path string) (*MappingPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p MappingPreset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", filepath.Base(path), err)
	}
	return &p, nil
}

// presetSlug turns a preset name into a file name stem.
func presetSlug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "preset"
	}
	return slug
}

// LoadMappingFile reads a YAML mapping of target field to header.
func LoadMappingFile(path string) (ColumnMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	var m ColumnMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// WriteMappingFile writes m as YAML in canonical field order.
func WriteMappingFile(path string, m ColumnMapping) error {
	var node yaml.Node
	node.Kind = yaml.MappingNode
	for _, f := range AllFields() {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: string(f)},
			&yaml.Node{Kind: yaml.ScalarNode, Value: m[f], Style: yaml.DoubleQuotedStyle},
		)
	}
	data, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}
	return nil
}
