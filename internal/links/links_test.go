package links

import "testing"

func TestExtract(t *testing.T) {
	markdown := "# Title\n" +
		"\n" +
		"See [the guide](guides/api-guide.md) for details.\n" +
		"\n" +
		"External: [docs](https://example.com/docs)\n" +
		"\n" +
		"![diagram](hello.attachments/diagram.png)\n"

	got := Extract(markdown)
	if len(got) != 3 {
		t.Fatalf("extracted %d links, want 3: %+v", len(got), got)
	}

	internal := got[0]
	if internal.Target != "guides/api-guide.md" || internal.Type != TypeInternal {
		t.Errorf("internal = %+v", internal)
	}
	if internal.Text != "the guide" {
		t.Errorf("internal text = %q", internal.Text)
	}
	if internal.Line != 3 {
		t.Errorf("internal line = %d, want 3", internal.Line)
	}

	external := got[1]
	if external.Target != "https://example.com/docs" || external.Type != TypeExternal {
		t.Errorf("external = %+v", external)
	}
	if external.Line != 5 {
		t.Errorf("external line = %d, want 5", external.Line)
	}

	attachment := got[2]
	if attachment.Target != "hello.attachments/diagram.png" || attachment.Type != TypeAttachment {
		t.Errorf("attachment = %+v", attachment)
	}
	if attachment.Line != 7 {
		t.Errorf("attachment line = %d, want 7", attachment.Line)
	}
}

func TestExtractAutoLink(t *testing.T) {
	got := Extract("Visit <https://example.com> now.\n")
	if len(got) != 1 {
		t.Fatalf("extracted %d links, want 1", len(got))
	}
	if got[0].Type != TypeExternal || got[0].Target != "https://example.com" {
		t.Errorf("autolink = %+v", got[0])
	}
}

func TestExtractSkipsAnchors(t *testing.T) {
	got := Extract("Jump to [section](#section).\n")
	if len(got) != 0 {
		t.Fatalf("anchors should not be edges: %+v", got)
	}
}

func TestExtractEmpty(t *testing.T) {
	if got := Extract(""); len(got) != 0 {
		t.Fatalf("empty body produced %+v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		target string
		want   Type
	}{
		{"https://example.com", TypeExternal},
		{"http://example.com/page", TypeExternal},
		{"mailto:dev@example.com", TypeExternal},
		{"other-page.md", TypeInternal},
		{"guides/setup.md", TypeInternal},
		{"page.attachments/file.pdf", TypeAttachment},
		{"deep/dir/page.attachments/img.png", TypeAttachment},
	}
	for _, tc := range tests {
		if got := Classify(tc.target); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.target, got, tc.want)
		}
	}
}
