// Package merge implements a line-based three-way merge with git-style
// conflict markers. It is used by the sync engine when both the local file
// and the remote page diverged from the last-synced base.
package merge

import (
	"strings"
)

const (
	// MarkerLocal opens a conflict hunk.
	MarkerLocal = "<<<<<<< LOCAL"
	// MarkerSeparator separates the local and remote sides of a hunk.
	MarkerSeparator = "======="
	// MarkerRemote closes a conflict hunk.
	MarkerRemote = ">>>>>>> REMOTE"
)

// Result holds the outcome of a three-way merge.
type Result struct {
	Content       string
	Success       bool
	ConflictCount int
}

// Merge performs a line-based three-way merge of local and remote against
// their common ancestor base. The trivial cases resolve without diffing:
// identical sides, or one side unchanged from base. Otherwise both sides are
// aligned against base via a longest-common-subsequence diff and regions
// where both sides diverge become conflict hunks.
func Merge(base, local, remote string) Result {
	switch {
	case local == remote:
		return Result{Content: local, Success: true}
	case local == base:
		return Result{Content: remote, Success: true}
	case remote == base:
		return Result{Content: local, Success: true}
	}

	baseLines := splitLines(base)
	localLines := splitLines(local)
	remoteLines := splitLines(remote)

	localHunks := diffHunks(baseLines, localLines)
	remoteHunks := diffHunks(baseLines, remoteLines)

	merged, conflicts := weave(baseLines, localLines, remoteLines, localHunks, remoteHunks)

	content := strings.Join(merged, "\n")
	if strings.HasSuffix(local, "\n") || strings.HasSuffix(remote, "\n") {
		content += "\n"
	}

	return Result{
		Content:       content,
		Success:       conflicts == 0,
		ConflictCount: conflicts,
	}
}

// HasConflictMarkers reports whether text contains an unresolved conflict
// hunk. A single pass over the lines looks for the opening marker; pushes of
// files that still carry markers are rejected upstream.
func HasConflictMarkers(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "<<<<<<<") {
			return true
		}
	}
	return false
}

// hunk describes one contiguous edit against base: base lines [BaseStart,
// BaseEnd) are replaced by side lines [SideStart, SideEnd).
type hunk struct {
	BaseStart, BaseEnd int
	SideStart, SideEnd int
}

// splitLines splits text into lines without trailing newline artifacts. An
// empty document maps to no lines so that pure insertions align cleanly.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// diffHunks computes the edit regions turning base into side using an LCS
// alignment. Matched lines advance both cursors; mismatched regions between
// matches become hunks.
func diffHunks(base, side []string) []hunk {
	lcs := lcsTable(base, side)

	hunks := []hunk{}
	i, j := 0, 0
	bi, si := 0, 0 // start of the current mismatched region

	flush := func() {
		if bi < i || si < j {
			hunks = append(hunks, hunk{BaseStart: bi, BaseEnd: i, SideStart: si, SideEnd: j})
		}
	}

	for i < len(base) && j < len(side) {
		if base[i] == side[j] {
			flush()
			i++
			j++
			bi, si = i, j
			continue
		}
		if lcs[i+1][j] >= lcs[i][j+1] {
			i++
		} else {
			j++
		}
	}
	i, j = len(base), len(side)
	flush()

	return hunks
}

// lcsTable builds the standard dynamic-programming table where table[i][j] is
// the LCS length of base[i:] and side[j:].
func lcsTable(base, side []string) [][]int {
	table := make([][]int, len(base)+1)
	for i := range table {
		table[i] = make([]int, len(side)+1)
	}
	for i := len(base) - 1; i >= 0; i-- {
		for j := len(side) - 1; j >= 0; j-- {
			if base[i] == side[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}
	return table
}

// weave walks base start to end, applying non-overlapping hunks from either
// side directly and emitting conflict hunks where regions overlap with
// different replacement content.
func weave(base, local, remote []string, localHunks, remoteHunks []hunk) ([]string, int) {
	out := []string{}
	conflicts := 0

	li, ri := 0, 0
	pos := 0

	for pos <= len(base) {
		var lh, rh *hunk
		if li < len(localHunks) {
			lh = &localHunks[li]
		}
		if ri < len(remoteHunks) {
			rh = &remoteHunks[ri]
		}

		if lh == nil && rh == nil {
			break
		}

		next := len(base)
		if lh != nil && lh.BaseStart < next {
			next = lh.BaseStart
		}
		if rh != nil && rh.BaseStart < next {
			next = rh.BaseStart
		}

		// Copy untouched base lines up to the next hunk.
		for ; pos < next; pos++ {
			out = append(out, base[pos])
		}

		localActive := lh != nil && lh.BaseStart <= pos
		remoteActive := rh != nil && rh.BaseStart <= pos

		// A hunk spanning past the start of the other side's next hunk
		// overlaps it; both must resolve in the same region or one side's
		// edit is silently spliced into lines the other side rewrote.
		if localActive && rh != nil && rh.BaseStart < lh.BaseEnd {
			remoteActive = true
		}
		if remoteActive && lh != nil && lh.BaseStart < rh.BaseEnd {
			localActive = true
		}

		switch {
		case localActive && !remoteActive:
			out = append(out, local[lh.SideStart:lh.SideEnd]...)
			pos = lh.BaseEnd
			li++
		case remoteActive && !localActive:
			out = append(out, remote[rh.SideStart:rh.SideEnd]...)
			pos = rh.BaseEnd
			ri++
		default:
			// Both sides touch this region: extend it to cover every
			// overlapping hunk from either side, then map the base
			// region into each side's coordinates through the
			// alignment (outside a hunk, side lines track base lines
			// one-to-one).
			regionStart := pos
			regionEnd := maxInt(lh.BaseEnd, rh.BaseEnd)
			lhFirst, rhFirst := *lh, *rh
			lhLast, rhLast := *lh, *rh
			li++
			ri++
			for {
				grew := false
				if li < len(localHunks) && localHunks[li].BaseStart <= regionEnd {
					regionEnd = maxInt(regionEnd, localHunks[li].BaseEnd)
					lhLast = localHunks[li]
					li++
					grew = true
				}
				if ri < len(remoteHunks) && remoteHunks[ri].BaseStart <= regionEnd {
					regionEnd = maxInt(regionEnd, remoteHunks[ri].BaseEnd)
					rhLast = remoteHunks[ri]
					ri++
					grew = true
				}
				if !grew {
					break
				}
			}

			localStart := lhFirst.SideStart - (lhFirst.BaseStart - regionStart)
			localEnd := lhLast.SideEnd + (regionEnd - lhLast.BaseEnd)
			remoteStart := rhFirst.SideStart - (rhFirst.BaseStart - regionStart)
			remoteEnd := rhLast.SideEnd + (regionEnd - rhLast.BaseEnd)

			localSide := local[localStart:localEnd]
			remoteSide := remote[remoteStart:remoteEnd]

			if linesEqual(localSide, remoteSide) {
				out = append(out, localSide...)
			} else {
				out = append(out, MarkerLocal)
				out = append(out, localSide...)
				out = append(out, MarkerSeparator)
				out = append(out, remoteSide...)
				out = append(out, MarkerRemote)
				conflicts++
			}
			pos = regionEnd
		}
	}

	for ; pos < len(base); pos++ {
		out = append(out, base[pos])
	}

	return out, conflicts
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
