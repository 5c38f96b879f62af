// Package commit defines the immutable snapshot records that make up the
// commit graph.
package commit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gitlet/internal/errors"
	"gitlet/internal/safe"
)

// MaxParents is the number of parents a merge commit has.
const MaxParents = 2

// ShortIDLen is the abbreviation length used in log output.
const ShortIDLen = 7

// InitialMessage is the message of the root commit.
const InitialMessage = "initial commit"

// Epoch is the timestamp of the root commit.
var Epoch = time.Unix(0, 0).UTC()

// Commit is an immutable snapshot. Tracked maps every tracked path to the
// digest of its blob; it is a complete snapshot, never a diff against a parent.
type Commit struct {
	id        string
	message   string
	timestamp time.Time
	parents   []string
	tracked   map[string]string
}

// record is the canonical serialized form. Its digest is the commit id.
type record struct {
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Parents   []string          `json:"parents"`
	Tracked   map[string]string `json:"tracked"`
}

// New builds a commit and computes its id from the four logical fields.
func New(message string, timestamp time.Time, parents []string, tracked map[string]string) (*Commit, error) {
	if message == "" {
		return nil, errors.InvalidArgument("commit message cannot be empty", nil)
	}
	if len(parents) > MaxParents {
		return nil, errors.InvalidArgument(
			fmt.Sprintf("commit cannot have more than %d parents", MaxParents), parents)
	}
	for _, p := range parents {
		if !safe.ValidDigest(p) {
			return nil, errors.InvalidArgument("invalid parent id", p)
		}
	}

	c := &Commit{
		message:   message,
		timestamp: timestamp.UTC(),
		parents:   append([]string{}, parents...),
		tracked:   make(map[string]string, len(tracked)),
	}
	for path, digest := range tracked {
		c.tracked[path] = digest
	}

	data, err := c.Encode()
	if err != nil {
		return nil, err
	}
	c.id = safe.Digest(data)
	return c, nil
}

// Initial returns the root commit every repository starts from.
func Initial() *Commit {
	c, err := New(InitialMessage, Epoch, nil, nil)
	if err != nil {
		panic(fmt.Sprintf("building initial commit: %v", err))
	}
	return c
}

// Decode parses a serialized commit and recomputes its id.
func Decode(data []byte) (*Commit, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding commit: %w", err)
	}
	if r.Message == "" {
		return nil, errors.InvalidArgument("data is not a commit", nil)
	}
	if len(r.Parents) > MaxParents {
		return nil, errors.Internal("decoded commit has too many parents", nil)
	}

	c := &Commit{
		message:   r.Message,
		timestamp: r.Timestamp.UTC(),
		parents:   append([]string{}, r.Parents...),
		tracked:   r.Tracked,
	}
	if c.tracked == nil {
		c.tracked = map[string]string{}
	}
	c.id = safe.Digest(data)
	return c, nil
}

// Encode returns the canonical serialization. encoding/json sorts map keys,
// so equal commits always encode to equal bytes.
func (c *Commit) Encode() ([]byte, error) {
	data, err := json.Marshal(record{
		Message:   c.message,
		Timestamp: c.timestamp,
		Parents:   c.parents,
		Tracked:   c.tracked,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding commit: %w", err)
	}
	return data, nil
}

func (c *Commit) ID() string { return c.id }

func (c *Commit) ShortID() string {
	if len(c.id) < ShortIDLen {
		return c.id
	}
	return c.id[:ShortIDLen]
}

func (c *Commit) Message() string      { return c.message }
func (c *Commit) Timestamp() time.Time { return c.timestamp }

// Parents returns a copy of the parent ids, first parent first.
func (c *Commit) Parents() []string {
	return append([]string{}, c.parents...)
}

// FirstParent returns the first parent id, or "" for the root commit.
func (c *Commit) FirstParent() string {
	if len(c.parents) == 0 {
		return ""
	}
	return c.parents[0]
}

// IsMerge reports whether the commit has two parents.
func (c *Commit) IsMerge() bool {
	return len(c.parents) == MaxParents
}

// Tracks returns the blob digest recorded for path.
func (c *Commit) Tracks(path string) (string, bool) {
	digest, ok := c.tracked[path]
	return digest, ok
}

// Tracked returns a copy of the tracked-set.
func (c *Commit) Tracked() map[string]string {
	out := make(map[string]string, len(c.tracked))
	for path, digest := range c.tracked {
		out[path] = digest
	}
	return out
}

// Paths returns the tracked paths in sorted order.
func (c *Commit) Paths() []string {
	paths := make([]string, 0, len(c.tracked))
	for path := range c.tracked {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// MergeLine returns the "Merge: a b" header used in log output, or "".
func (c *Commit) MergeLine() string {
	if !c.IsMerge() {
		return ""
	}
	short := make([]string, len(c.parents))
	for i, p := range c.parents {
		short[i] = p[:ShortIDLen]
	}
	return "Merge: " + strings.Join(short, " ")
}
