package specstore

import "strings"

// DiffOp tags one line of a textual diff.
type DiffOp int

const (
	DiffEqual DiffOp = iota
	DiffRemove
	DiffAdd
)

// DiffLine is one line of a line-level grammar text diff.
type DiffLine struct {
	Op   DiffOp
	Text string
}

// lineDiff computes a minimal line-level edit script from a's lines to
// b's lines via a classic O(n*m) longest-common-subsequence table. Grammar
// documents are small (tens to low hundreds of lines), so the quadratic
// cost is not a concern here.
func lineDiff(a, b string) []DiffLine {
	aLines := splitLines(a)
	bLines := splitLines(b)

	n, m := len(aLines), len(bLines)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if aLines[i] == bLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []DiffLine
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case aLines[i] == bLines[j]:
			out = append(out, DiffLine{Op: DiffEqual, Text: aLines[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, DiffLine{Op: DiffRemove, Text: aLines[i]})
			i++
		default:
			out = append(out, DiffLine{Op: DiffAdd, Text: bLines[j]})
			j++
		}
	}
	for ; i < n; i++ {
		out = append(out, DiffLine{Op: DiffRemove, Text: aLines[i]})
	}
	for ; j < m; j++ {
		out = append(out, DiffLine{Op: DiffAdd, Text: bLines[j]})
	}
	return out
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}
