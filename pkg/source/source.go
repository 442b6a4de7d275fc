package source

import (
	"path/filepath"
	"strings"
)

// Unit represents one compilation unit with its content and metadata.
type Unit struct {
	Name    string   // Display name (e.g. "main.ks", "<inline>")
	Path    string   // Full file path (empty for inline/test units)
	Content string   // The source text
	lines   []string // Cached split lines (lazy)
}

// NewUnit creates a unit with an explicit display name.
func NewUnit(name, path, content string) *Unit {
	return &Unit{
		Name:    name,
		Path:    path,
		Content: content,
	}
}

// Inline creates a unit for source text that has no backing file.
func Inline(content string) *Unit {
	return &Unit{
		Name:    "<inline>",
		Path:    "",
		Content: content,
	}
}

// FromFile creates a unit from a file path and its content.
func FromFile(filePath, content string) *Unit {
	return &Unit{
		Name:    filepath.Base(filePath),
		Path:    filePath,
		Content: content,
	}
}

// Lines returns the source split into lines (cached).
func (u *Unit) Lines() []string {
	if u.lines == nil {
		u.lines = strings.Split(u.Content, "\n")
	}
	return u.lines
}

// DisplayPath returns the best path for display (prefers Path, falls back to Name).
func (u *Unit) DisplayPath() string {
	if u.Path != "" {
		return u.Path
	}
	return u.Name
}

// IsFile returns true if this unit is backed by an actual file.
func (u *Unit) IsFile() bool {
	return u.Path != ""
}
