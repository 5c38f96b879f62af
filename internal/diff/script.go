package diff

import "bytes"

// lcsTable returns t where t[i][j] is the length of the longest common
// subsequence of oldLines[i:] and newLines[j:].
func lcsTable(oldLines, newLines [][]byte) [][]int {
	t := make([][]int, len(oldLines)+1)
	for i := range t {
		t[i] = make([]int, len(newLines)+1)
	}

	for i := len(oldLines) - 1; i >= 0; i-- {
		for j := len(newLines) - 1; j >= 0; j-- {
			if bytes.Equal(oldLines[i], newLines[j]) {
				t[i][j] = t[i+1][j+1] + 1
			} else {
				t[i][j] = max(t[i+1][j], t[i][j+1])
			}
		}
	}
	return t
}

// editScript walks the LCS table front to back. Deletions are emitted before
// additions within a changed region.
func (e *Engine) editScript(oldLines, newLines [][]byte) []Line {
	t := lcsTable(oldLines, newLines)
	script := make([]Line, 0, len(oldLines)+len(newLines))

	i, j := 0, 0
	for i < len(oldLines) || j < len(newLines) {
		switch {
		case i < len(oldLines) && j < len(newLines) && bytes.Equal(oldLines[i], newLines[j]):
			script = append(script, Line{Type: Context, Content: string(oldLines[i]), OldNum: i + 1, NewNum: j + 1})
			i++
			j++
		case i < len(oldLines) && (j == len(newLines) || t[i+1][j] >= t[i][j+1]):
			script = append(script, Line{Type: Deletion, Content: string(oldLines[i]), OldNum: i + 1})
			i++
		default:
			script = append(script, Line{Type: Addition, Content: string(newLines[j]), NewNum: j + 1})
			j++
		}
	}
	return script
}

// group cuts the edit script into hunks, keeping contextLines unchanged
// lines around each change. Changes separated by at most twice that many
// unchanged lines share a hunk.
func (e *Engine) group(script []Line) []Hunk {
	var hunks []Hunk

	n := len(script)
	for k := 0; k < n; {
		if script[k].Type == Context {
			k++
			continue
		}

		start := max(0, k-e.contextLines)
		end := k
		for end < n {
			if script[end].Type != Context {
				end++
				continue
			}
			run := end
			for run < n && script[run].Type == Context {
				run++
			}
			if run == n || run-end > 2*e.contextLines {
				break
			}
			end = run
		}
		stop := min(n, end+e.contextLines)

		hunks = append(hunks, newHunk(script, start, stop))
		k = stop
	}
	return hunks
}

// newHunk builds a hunk from script[start:stop] and computes its header.
func newHunk(script []Line, start, stop int) Hunk {
	h := Hunk{Lines: append([]Line(nil), script[start:stop]...)}

	// Lines consumed on each side before the hunk begins.
	var oldBefore, newBefore int
	for _, l := range script[:start] {
		if l.OldNum > 0 {
			oldBefore = l.OldNum
		}
		if l.NewNum > 0 {
			newBefore = l.NewNum
		}
	}

	for _, l := range h.Lines {
		if l.Type != Addition {
			h.OldLines++
		}
		if l.Type != Deletion {
			h.NewLines++
		}
	}

	h.OldStart = oldBefore
	if h.OldLines > 0 {
		h.OldStart++
	}
	h.NewStart = newBefore
	if h.NewLines > 0 {
		h.NewStart++
	}
	return h
}
