// Package mdfs handles the on-disk shape of a mirrored workspace: markdown
// files with YAML frontmatter, slugified page paths, ignore patterns, the
// state directory and the daemon lockfile.
package mdfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// ImmutableFrontmatterKeys cannot be changed by hand; the sync engine rejects
// pushes that alter them.
var ImmutableFrontmatterKeys = []string{"id", "space"}

var (
	// ErrFrontmatterMissing indicates markdown frontmatter was not found.
	ErrFrontmatterMissing = errors.New("missing YAML frontmatter")
	// ErrFrontmatterInvalid indicates markdown frontmatter is malformed.
	ErrFrontmatterInvalid = errors.New("invalid YAML frontmatter")
)

// Frontmatter binds a local markdown file to a remote page. ID and Title are
// the authoritative keys; unknown keys survive round-trips via Extra.
type Frontmatter struct {
	ID      string
	Title   string
	Space   string
	Version int

	Extra map[string]any
}

type frontmatterYAML struct {
	ID      string `yaml:"id,omitempty"`
	Title   string `yaml:"title,omitempty"`
	Space   string `yaml:"space,omitempty"`
	Version int    `yaml:"version,omitempty"`

	Extra map[string]any `yaml:",inline"`
}

func (fm Frontmatter) MarshalYAML() (any, error) {
	extra := map[string]any{}
	for key, value := range fm.Extra {
		switch key {
		case "id", "title", "space", "version":
			continue
		default:
			extra[key] = value
		}
	}

	return frontmatterYAML{
		ID:      fm.ID,
		Title:   fm.Title,
		Space:   fm.Space,
		Version: fm.Version,
		Extra:   extra,
	}, nil
}

func (fm *Frontmatter) UnmarshalYAML(value *yaml.Node) error {
	var decoded frontmatterYAML
	if err := value.Decode(&decoded); err != nil {
		return err
	}

	fm.ID = strings.TrimSpace(decoded.ID)
	fm.Title = strings.TrimSpace(decoded.Title)
	fm.Space = strings.TrimSpace(decoded.Space)
	fm.Version = decoded.Version

	if decoded.Extra == nil {
		fm.Extra = map[string]any{}
		return nil
	}
	delete(decoded.Extra, "id")
	delete(decoded.Extra, "title")
	delete(decoded.Extra, "space")
	delete(decoded.Extra, "version")
	fm.Extra = decoded.Extra
	return nil
}

// Document represents a markdown file with YAML frontmatter.
type Document struct {
	Frontmatter Frontmatter
	Body        string
}

// ReadDocument reads and parses a markdown file.
func ReadDocument(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return ParseDocument(raw)
}

// WriteDocument writes a markdown file from structured data, creating parent
// directories as needed.
func WriteDocument(path string, doc Document) error {
	raw, err := FormatDocument(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// ParseDocument parses a markdown document with YAML frontmatter.
func ParseDocument(raw []byte) (Document, error) {
	content := strings.TrimPrefix(string(raw), "\uFEFF")
	block, body, err := splitFrontmatter(content)
	if err != nil {
		return Document{}, err
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFrontmatterInvalid, err)
	}
	if fm.Extra == nil {
		fm.Extra = map[string]any{}
	}
	return Document{Frontmatter: fm, Body: body}, nil
}

// FormatDocument renders a markdown document with YAML frontmatter.
func FormatDocument(doc Document) ([]byte, error) {
	rawFrontmatter, err := yaml.Marshal(doc.Frontmatter)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}
	if len(rawFrontmatter) == 0 {
		rawFrontmatter = []byte("\n")
	}

	var builder strings.Builder
	builder.WriteString(frontmatterDelimiter)
	builder.WriteString("\n")
	builder.Write(rawFrontmatter)
	if !strings.HasSuffix(builder.String(), "\n") {
		builder.WriteString("\n")
	}
	builder.WriteString(frontmatterDelimiter)
	builder.WriteString("\n")
	builder.WriteString(doc.Body)

	return []byte(builder.String()), nil
}

// ReadFrontmatterHead reads only the frontmatter of a markdown file. It reads
// just the beginning of the file to avoid loading large bodies.
func ReadFrontmatterHead(path string) (Frontmatter, error) {
	file, err := os.Open(path)
	if err != nil {
		return Frontmatter{}, err
	}
	defer file.Close()

	// 8KB is plenty for any sane frontmatter block.
	buf := make([]byte, 8192)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return Frontmatter{}, err
	}
	content := strings.TrimPrefix(string(buf[:n]), "\uFEFF")

	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return Frontmatter{}, ErrFrontmatterMissing
	}

	var blockLines []string
	foundEnd := false
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			foundEnd = true
			break
		}
		blockLines = append(blockLines, lines[i])
	}
	if !foundEnd {
		return Frontmatter{}, fmt.Errorf("%w or exceeds 8KB limit", ErrFrontmatterInvalid)
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(blockLines, "")), &fm); err != nil {
		return Frontmatter{}, fmt.Errorf("%w: %v", ErrFrontmatterInvalid, err)
	}
	if fm.Extra == nil {
		fm.Extra = map[string]any{}
	}
	return fm, nil
}

// ValidationIssue captures a schema or invariants validation issue.
type ValidationIssue struct {
	Field   string
	Code    string
	Message string
}

// ValidationResult is a list of validation issues.
type ValidationResult struct {
	Issues []ValidationIssue
}

// IsValid reports whether validation produced no issues.
func (r ValidationResult) IsValid() bool {
	return len(r.Issues) == 0
}

// ValidateFrontmatterSchema validates required sync metadata. ID is optional
// (new local pages have none yet) but tracked pages need a positive version.
func ValidateFrontmatterSchema(fm Frontmatter) ValidationResult {
	result := ValidationResult{}

	if strings.TrimSpace(fm.Title) == "" {
		result.Issues = append(result.Issues, ValidationIssue{
			Field:   "title",
			Code:    "required",
			Message: "title is required",
		})
	}
	if strings.TrimSpace(fm.ID) != "" && fm.Version <= 0 {
		result.Issues = append(result.Issues, ValidationIssue{
			Field:   "version",
			Code:    "invalid",
			Message: "version must be greater than zero for tracked pages",
		})
	}

	return result
}

// ValidateImmutableFrontmatter checks immutable keys between the previously
// synced metadata and the current file contents.
func ValidateImmutableFrontmatter(previous, current Frontmatter) ValidationResult {
	result := ValidationResult{}

	if strings.TrimSpace(previous.ID) != strings.TrimSpace(current.ID) {
		result.Issues = append(result.Issues, ValidationIssue{
			Field:   "id",
			Code:    "immutable",
			Message: "id is immutable and cannot be changed manually",
		})
	}
	if strings.TrimSpace(previous.Space) != strings.TrimSpace(current.Space) {
		result.Issues = append(result.Issues, ValidationIssue{
			Field:   "space",
			Code:    "immutable",
			Message: "space is immutable and cannot be changed manually",
		})
	}

	return result
}

func splitFrontmatter(content string) (frontmatter string, body string, err error) {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return "", "", ErrFrontmatterMissing
	}

	var blockLines []string
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			return strings.Join(blockLines, ""), strings.Join(lines[i+1:], ""), nil
		}
		blockLines = append(blockLines, lines[i])
	}
	return "", "", fmt.Errorf("%w: missing closing delimiter", ErrFrontmatterInvalid)
}
