package merge

import (
	"strings"
	"testing"
)

func TestMergeTrivialCases(t *testing.T) {
	cases := []struct {
		name   string
		base   string
		local  string
		remote string
		want   string
	}{
		{"all identical", "A\nB\n", "A\nB\n", "A\nB\n", "A\nB\n"},
		{"only remote changed", "A\nB\n", "A\nB\n", "A\nB2\n", "A\nB2\n"},
		{"only local changed", "A\nB\n", "A2\nB\n", "A\nB\n", "A2\nB\n"},
		{"both sides made the same change", "A\n", "A\nB\n", "A\nB\n", "A\nB\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Merge(tc.base, tc.local, tc.remote)
			if !res.Success {
				t.Fatalf("merge failed with %d conflicts: %q", res.ConflictCount, res.Content)
			}
			if res.Content != tc.want {
				t.Errorf("merged content = %q, want %q", res.Content, tc.want)
			}
		})
	}
}

func TestMergeNonOverlappingEdits(t *testing.T) {
	base := "A\nB\nC\n"
	local := "A1\nA\nB\nC\n"  // prepend a line
	remote := "A\nB\nC\nC1\n" // append a line

	res := Merge(base, local, remote)
	if !res.Success {
		t.Fatalf("expected clean merge, got %d conflicts: %q", res.ConflictCount, res.Content)
	}
	if res.Content != "A1\nA\nB\nC\nC1\n" {
		t.Errorf("merged content = %q", res.Content)
	}
}

func TestMergeDistantEdits(t *testing.T) {
	base := "one\ntwo\nthree\nfour\nfive\n"
	local := "ONE\ntwo\nthree\nfour\nfive\n"
	remote := "one\ntwo\nthree\nfour\nFIVE\n"

	res := Merge(base, local, remote)
	if !res.Success {
		t.Fatalf("expected clean merge, got: %q", res.Content)
	}
	if res.Content != "ONE\ntwo\nthree\nfour\nFIVE\n" {
		t.Errorf("merged content = %q", res.Content)
	}
}

func TestMergeConflict(t *testing.T) {
	res := Merge("X\n", "L\n", "R\n")
	if res.Success {
		t.Fatalf("expected conflict, got clean merge: %q", res.Content)
	}
	if res.ConflictCount != 1 {
		t.Errorf("ConflictCount = %d, want 1", res.ConflictCount)
	}
	want := MarkerLocal + "\nL\n" + MarkerSeparator + "\nR\n" + MarkerRemote + "\n"
	if res.Content != want {
		t.Errorf("conflict content = %q, want %q", res.Content, want)
	}
}

func TestMergeConflictKeepsSurroundingLines(t *testing.T) {
	base := "head\nmiddle\ntail\n"
	local := "head\nlocal middle\ntail\n"
	remote := "head\nremote middle\ntail\n"

	res := Merge(base, local, remote)
	if res.Success {
		t.Fatal("expected conflict")
	}
	lines := strings.Split(strings.TrimSuffix(res.Content, "\n"), "\n")
	if lines[0] != "head" || lines[len(lines)-1] != "tail" {
		t.Errorf("context lines lost: %q", res.Content)
	}
	if !strings.Contains(res.Content, "local middle") || !strings.Contains(res.Content, "remote middle") {
		t.Errorf("conflict hunk missing a side: %q", res.Content)
	}
}

func TestMergeMixedCleanAndConflict(t *testing.T) {
	base := "A\nB\nC\nD\n"
	local := "A\nB-local\nC\nD2\n"
	remote := "A\nB-remote\nC\nD\n"

	res := Merge(base, local, remote)
	if res.Success {
		t.Fatal("expected conflict")
	}
	if res.ConflictCount != 1 {
		t.Errorf("ConflictCount = %d, want 1", res.ConflictCount)
	}
	// The non-conflicting local edit to D still applies.
	if !strings.Contains(res.Content, "D2") {
		t.Errorf("clean edit dropped: %q", res.Content)
	}
	if !strings.Contains(res.Content, "B-local") || !strings.Contains(res.Content, "B-remote") {
		t.Errorf("conflict hunk incomplete: %q", res.Content)
	}
}

func TestMergeOverlappingRewriteConflicts(t *testing.T) {
	// Local rewrote the whole document; remote edited one line inside the
	// span local replaced. Neither edit may be applied without the other.
	base := "a\nb\nc\nd\ne\n"
	local := "X\n"
	remote := "a\nb\nC\nd\ne\n"

	res := Merge(base, local, remote)
	if res.Success {
		t.Fatalf("overlapping edits merged cleanly: %q", res.Content)
	}
	if res.ConflictCount != 1 {
		t.Errorf("ConflictCount = %d, want 1", res.ConflictCount)
	}
	if !strings.Contains(res.Content, "X\n") || !strings.Contains(res.Content, "C\n") {
		t.Errorf("hunk missing a side: %q", res.Content)
	}
	if strings.Contains(res.Content, "X\nC\n") {
		t.Errorf("sides spliced together outside a conflict hunk: %q", res.Content)
	}

	// The same overlap with the sides swapped conflicts too.
	mirrored := Merge(base, remote, local)
	if mirrored.Success {
		t.Fatalf("mirrored overlap merged cleanly: %q", mirrored.Content)
	}
}

func TestMergeAdjacentEditsStayIndependent(t *testing.T) {
	base := "one\ntwo\nthree\n"
	local := "ONE\ntwo\nthree\n"
	remote := "one\nTWO\nthree\n"

	res := Merge(base, local, remote)
	if !res.Success {
		t.Fatalf("adjacent edits should merge cleanly, got: %q", res.Content)
	}
	if res.Content != "ONE\nTWO\nthree\n" {
		t.Errorf("merged content = %q", res.Content)
	}
}

func TestMergeDeletionVersusEdit(t *testing.T) {
	base := "A\nB\nC\n"
	local := "A\nC\n" // deleted B
	remote := "A\nB edited\nC\n"

	res := Merge(base, local, remote)
	if res.Success {
		t.Fatalf("delete-vs-edit should conflict, got: %q", res.Content)
	}
	if !strings.Contains(res.Content, "B edited") {
		t.Errorf("remote side missing from hunk: %q", res.Content)
	}
}

func TestMergeEmptyBase(t *testing.T) {
	res := Merge("", "local\n", "remote\n")
	if res.Success {
		t.Fatalf("expected conflict, got: %q", res.Content)
	}
	if !strings.Contains(res.Content, "local") || !strings.Contains(res.Content, "remote") {
		t.Errorf("hunk missing a side: %q", res.Content)
	}
}

func TestHasConflictMarkers(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"clean", "just\nnormal\ntext\n", false},
		{"merge output", Merge("X\n", "L\n", "R\n").Content, true},
		{"marker mid-document", "a\n<<<<<<< LOCAL\nb\n", true},
		{"marker not at line start", "a <<<<<<< b\n", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasConflictMarkers(tc.text); got != tc.want {
				t.Errorf("HasConflictMarkers(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}
