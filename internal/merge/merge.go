// Package merge decides, path by path, how a three-way merge of tracked-sets
// resolves.
package merge

import (
	"bytes"
	"sort"
)

// Action is the resolution chosen for one path.
type Action int

const (
	// Keep leaves the current branch's version (or absence) in place.
	Keep Action = iota
	// TakeGiven checks out and stages the given branch's version.
	TakeGiven
	// Remove deletes the file and stages its removal.
	Remove
	// Conflict writes a conflict-marked file and stages it.
	Conflict
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case TakeGiven:
		return "take-given"
	case Remove:
		return "remove"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Decision is the resolution for one path together with the digests it was
// derived from. An empty digest means the path is absent on that side.
type Decision struct {
	Path    string
	Action  Action
	Current string
	Split   string
	Given   string
}

// Classify resolves one path from its current, split and given digests.
func Classify(current, split, given string) Action {
	switch {
	case current == given:
		// Unchanged on both sides, changed identically, or deleted on both.
		return Keep
	case current == split:
		if given == "" {
			return Remove
		}
		return TakeGiven
	case given == split:
		return Keep
	default:
		return Conflict
	}
}

// Plan classifies every path in the union of the three tracked-sets. The
// result is sorted by path.
func Plan(current, split, given map[string]string) []Decision {
	paths := make(map[string]struct{}, len(current)+len(given))
	for _, m := range []map[string]string{current, split, given} {
		for p := range m {
			paths[p] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	decisions := make([]Decision, 0, len(sorted))
	for _, p := range sorted {
		c, s, g := current[p], split[p], given[p]
		decisions = append(decisions, Decision{
			Path:    p,
			Action:  Classify(c, s, g),
			Current: c,
			Split:   s,
			Given:   g,
		})
	}
	return decisions
}

// Conflicts returns the paths of the conflicting decisions.
func Conflicts(decisions []Decision) []string {
	var paths []string
	for _, d := range decisions {
		if d.Action == Conflict {
			paths = append(paths, d.Path)
		}
	}
	return paths
}

// ConflictContent renders the conflict-marked file for a path. A nil side
// stands for a deleted file and renders as an empty section.
func ConflictContent(current, given []byte, branch string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<<<<<<< HEAD\n")
	writeSection(&buf, current)
	buf.WriteString("=======\n")
	writeSection(&buf, given)
	buf.WriteString(">>>>>>> " + branch + "\n")
	return buf.Bytes()
}

func writeSection(buf *bytes.Buffer, content []byte) {
	buf.Write(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		buf.WriteByte('\n')
	}
}
