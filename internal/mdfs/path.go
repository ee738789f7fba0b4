package mdfs

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"unicode"
)

// AttachmentsSuffix names the sibling directory holding a page's attachments.
const AttachmentsSuffix = ".attachments"

// Slugify converts a page title into a path segment: lowercase, whitespace
// collapsed to single hyphens, everything but letters, digits and hyphens
// dropped, leading and trailing hyphens trimmed.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case unicode.IsSpace(r) || r == '-':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// PathIndex is the injective relative-path <-> page-id map. At most one page
// occupies any path; the resolver consults it to disambiguate collisions.
// Safe for concurrent use.
type PathIndex struct {
	mu     sync.RWMutex
	byPath map[string]string
	byPage map[string]string
}

// NewPathIndex returns an empty index.
func NewPathIndex() *PathIndex {
	return &PathIndex{
		byPath: map[string]string{},
		byPage: map[string]string{},
	}
}

// Bind records pageID at relPath, replacing any previous binding for the same
// page. Binding a path already held by a different page is an error; callers
// resolve collisions before binding.
func (ix *PathIndex) Bind(pageID, relPath string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if holder, ok := ix.byPath[relPath]; ok && holder != pageID {
		return fmt.Errorf("path %q already bound to page %s", relPath, holder)
	}
	if prev, ok := ix.byPage[pageID]; ok {
		delete(ix.byPath, prev)
	}
	ix.byPage[pageID] = relPath
	ix.byPath[relPath] = pageID
	return nil
}

// Unbind removes the binding for pageID, if any.
func (ix *PathIndex) Unbind(pageID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if prev, ok := ix.byPage[pageID]; ok {
		delete(ix.byPath, prev)
		delete(ix.byPage, pageID)
	}
}

// PathFor returns the relative path bound to pageID.
func (ix *PathIndex) PathFor(pageID string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.byPage[pageID]
	return p, ok
}

// PageAt returns the page id bound to relPath.
func (ix *PathIndex) PageAt(relPath string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.byPath[relPath]
	return id, ok
}

// Snapshot returns a copy of the page-id -> path map, for persistence.
func (ix *PathIndex) Snapshot() map[string]string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string]string, len(ix.byPage))
	for id, p := range ix.byPage {
		out[id] = p
	}
	return out
}

// Restore replaces the index contents from a persisted page-id -> path map.
func (ix *PathIndex) Restore(byPage map[string]string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.byPage = make(map[string]string, len(byPage))
	ix.byPath = make(map[string]string, len(byPage))
	for id, p := range byPage {
		ix.byPage[id] = p
		ix.byPath[p] = id
	}
}

// PageLocation describes where a page sits in the remote hierarchy. The
// ancestor titles are ordered root first and must already exclude the
// designated home page, whose children collapse to the workspace root.
type PageLocation struct {
	AncestorTitles []string
	Title          string
	HasChildren    bool
}

// ResolvePath computes the relative path for pageID at loc, consulting and
// updating the index. Pages with children become slug/index.md. Colliding
// leaf slugs get deterministic numeric suffixes starting at 2.
func ResolvePath(ix *PathIndex, pageID string, loc PageLocation) (string, error) {
	segments := make([]string, 0, len(loc.AncestorTitles))
	for _, title := range loc.AncestorTitles {
		segments = append(segments, Slugify(title))
	}
	dir := path.Join(segments...)
	slug := Slugify(loc.Title)

	candidate := leafPath(dir, slug, loc.HasChildren)
	for n := 2; ; n++ {
		holder, taken := ix.PageAt(candidate)
		if !taken || holder == pageID {
			break
		}
		candidate = leafPath(dir, fmt.Sprintf("%s-%d", slug, n), loc.HasChildren)
	}

	if err := ix.Bind(pageID, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

func leafPath(dir, slug string, hasChildren bool) string {
	if hasChildren {
		return path.Join(dir, slug, "index.md")
	}
	return path.Join(dir, slug+".md")
}

// AttachmentsDir returns the attachments directory for a page file:
// foo/bar.md owns foo/bar.attachments.
func AttachmentsDir(pagePath string) string {
	return strings.TrimSuffix(pagePath, ".md") + AttachmentsSuffix
}

// OwningPage maps a path under an attachments directory back to its page
// file. It returns false for paths not inside any *.attachments directory.
func OwningPage(relPath string) (string, bool) {
	clean := path.Clean(relPath)
	for dir := path.Dir(clean); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if strings.HasSuffix(dir, AttachmentsSuffix) {
			return strings.TrimSuffix(dir, AttachmentsSuffix) + ".md", true
		}
	}
	return "", false
}

// AncestorsChanged reports whether a page has moved: the previous and current
// ancestor id chains differ.
func AncestorsChanged(previous, current []string) bool {
	if len(previous) != len(current) {
		return true
	}
	for i := range previous {
		if previous[i] != current[i] {
			return true
		}
	}
	return false
}
