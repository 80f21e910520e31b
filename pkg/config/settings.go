// Package config provides file-backed settings for the content memory
// engine: which tags are tracked, which elements are excluded, and the
// budgets applied when rendering accumulated content.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPruneMaxAge is the retention window applied when the caller
	// enables age-based pruning without configuring one.
	DefaultPruneMaxAge = 30 * time.Minute

	// DefaultMaxRenderTokens caps rendered views when no explicit budget
	// is set. Zero disables the cap.
	DefaultMaxRenderTokens = 0

	// DefaultTokenizerEncoding is the token encoding used for estimates.
	DefaultTokenizerEncoding = "cl100k_base"
)

// defaultTrackedTags are the content-bearing tags captured when no explicit
// identity attribute is present.
var defaultTrackedTags = []string{
	"h1", "h2", "h3", "h4", "h5", "h6",
	"p", "li", "td", "th", "blockquote", "pre",
	"a", "button", "input", "select", "textarea", "label",
	"img", "summary", "figcaption",
}

// Settings holds the engine configuration. A zero Settings is not usable;
// obtain one from DefaultSettings, Parse, or Load.
type Settings struct {
	// TrackedTags lists element tags captured even without an identity
	// attribute. Tags are matched case-insensitively.
	TrackedTags []string

	// ExcludePatterns holds glob patterns matched against "tag", "tag#id",
	// and "tag.class" keys. Matching elements are dropped at capture time.
	ExcludePatterns []string

	// Sanitize runs incoming markup through the capture sanitization
	// policy before parsing.
	Sanitize bool

	// PruneMaxAge is the retention window used by callers that prune on a
	// schedule. Zero disables scheduled pruning.
	PruneMaxAge time.Duration

	// MaxRenderTokens caps rendered views at a token budget. Zero means
	// unbounded.
	MaxRenderTokens int

	// TokenizerEncoding names the token encoding used for statistics and
	// render budgets.
	TokenizerEncoding string
}

// settingsFile is the YAML shape of a settings file. Pointer and string
// fields distinguish "absent" from "zero" so partial files overlay the
// defaults instead of clearing them.
type settingsFile struct {
	TrackedTags       []string `yaml:"tracked_tags"`
	ExcludePatterns   []string `yaml:"exclude_patterns"`
	Sanitize          *bool    `yaml:"sanitize"`
	PruneMaxAge       string   `yaml:"prune_max_age"`
	MaxRenderTokens   *int     `yaml:"max_render_tokens"`
	TokenizerEncoding string   `yaml:"tokenizer_encoding"`
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() *Settings {
	return &Settings{
		TrackedTags:       append([]string(nil), defaultTrackedTags...),
		Sanitize:          true,
		PruneMaxAge:       DefaultPruneMaxAge,
		MaxRenderTokens:   DefaultMaxRenderTokens,
		TokenizerEncoding: DefaultTokenizerEncoding,
	}
}

// Load reads settings from a YAML file. A missing file is not an error:
// the defaults are returned so configuration stays optional.
func Load(path string) (*Settings, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".pagemem", "settings.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, fmt.Errorf("failed to read settings from %s: %w", path, err)
	}

	settings, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings from %s: %w", path, err)
	}
	return settings, nil
}

// Parse decodes YAML settings and overlays them on the defaults. Keys
// absent from the document keep their default values.
func Parse(data []byte) (*Settings, error) {
	var file settingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	settings := DefaultSettings()
	if file.TrackedTags != nil {
		settings.TrackedTags = normalizeTags(file.TrackedTags)
	}
	if file.ExcludePatterns != nil {
		settings.ExcludePatterns = append([]string(nil), file.ExcludePatterns...)
	}
	if file.Sanitize != nil {
		settings.Sanitize = *file.Sanitize
	}
	if file.PruneMaxAge != "" {
		age, err := time.ParseDuration(file.PruneMaxAge)
		if err != nil {
			return nil, fmt.Errorf("invalid prune_max_age '%s': %w", file.PruneMaxAge, err)
		}
		settings.PruneMaxAge = age
	}
	if file.MaxRenderTokens != nil {
		settings.MaxRenderTokens = *file.MaxRenderTokens
	}
	if file.TokenizerEncoding != "" {
		settings.TokenizerEncoding = file.TokenizerEncoding
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Save writes the settings to a YAML file using a temp-file rename so a
// crash mid-write never leaves a truncated file behind.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	// An absent prune_max_age key reads back as the default, so the zero
	// value is written out explicitly as "0s".
	file := settingsFile{
		TrackedTags:       s.TrackedTags,
		ExcludePatterns:   s.ExcludePatterns,
		Sanitize:          &s.Sanitize,
		PruneMaxAge:       s.PruneMaxAge.String(),
		MaxRenderTokens:   &s.MaxRenderTokens,
		TokenizerEncoding: s.TokenizerEncoding,
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp settings file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp settings file: %w", err)
	}
	return nil
}

// Validate checks the settings for values the engine cannot operate with.
func (s *Settings) Validate() error {
	if s.PruneMaxAge < 0 {
		return fmt.Errorf("prune_max_age must not be negative, got %s", s.PruneMaxAge)
	}
	if s.MaxRenderTokens < 0 {
		return fmt.Errorf("max_render_tokens must not be negative, got %d", s.MaxRenderTokens)
	}
	for _, tag := range s.TrackedTags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tracked_tags must not contain empty entries")
		}
	}
	return nil
}

// Clone returns a deep copy so callers can derive variants without
// mutating shared settings.
func (s *Settings) Clone() *Settings {
	clone := *s
	clone.TrackedTags = append([]string(nil), s.TrackedTags...)
	clone.ExcludePatterns = append([]string(nil), s.ExcludePatterns...)
	return &clone
}

// normalizeTags lowercases and trims tag names, dropping empties that come
// from stray YAML list items.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
