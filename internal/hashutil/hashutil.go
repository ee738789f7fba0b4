// Package hashutil provides markdown normalization and the content
// fingerprint used for change detection across the sync engine.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const frontmatterDelimiter = "---"

// Algorithm identifies the digest recorded in the state store meta table so a
// future migration can detect fingerprints produced by an older scheme.
const Algorithm = "sha256"

// Normalize produces the canonical form of a markdown document used for
// hashing: the frontmatter block is stripped, line endings collapse to LF,
// trailing whitespace is trimmed per line, and the result carries exactly one
// trailing newline. Normalize is a pure function of its input.
func Normalize(markdown string) string {
	body := stripFrontmatter(markdown)
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	body = strings.Join(lines, "\n")

	body = strings.TrimRight(body, "\n")
	if body == "" {
		return "\n"
	}
	return body + "\n"
}

// Hash returns the hex-encoded SHA-256 digest of text. Every content
// comparison in the engine goes through this single function.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashNormalized is shorthand for Hash(Normalize(markdown)).
func HashNormalized(markdown string) string {
	return Hash(Normalize(markdown))
}

// stripFrontmatter removes a leading YAML frontmatter block delimited by
// "---" fences, including the fences themselves. Content without a leading
// fence is returned unchanged.
func stripFrontmatter(markdown string) string {
	content := strings.TrimPrefix(markdown, "\uFEFF")
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(strings.TrimSuffix(lines[0], "\n")) != frontmatterDelimiter {
		return content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(strings.TrimSuffix(lines[i], "\n")) == frontmatterDelimiter {
			return strings.Join(lines[i+1:], "")
		}
	}
	// No closing fence: treat the document as body only.
	return content
}
