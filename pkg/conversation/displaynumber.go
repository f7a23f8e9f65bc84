package conversation

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DisplayNumber is the hierarchical position of a node: a single segment on
// the main thread ("3"), and <ancestor chain>.<branch index>.<position> inside
// a branch ("3.1.0", "3.1.0.2.4"). Every nesting level adds two segments.
type DisplayNumber []int

func ParseDisplayNumber(s string) (DisplayNumber, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Wrap(ErrInvalidDisplayNumber, "empty")
	}
	parts := strings.Split(s, ".")
	if len(parts)%2 == 0 {
		return nil, errors.Wrapf(ErrInvalidDisplayNumber, "%q has an even number of segments", s)
	}
	ret := make(DisplayNumber, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return nil, errors.Wrapf(ErrInvalidDisplayNumber, "%q", s)
		}
		ret = append(ret, v)
	}
	return ret, nil
}

func MustParseDisplayNumber(s string) DisplayNumber {
	d, err := ParseDisplayNumber(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d DisplayNumber) String() string {
	parts := make([]string, len(d))
	for i, v := range d {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

func (d DisplayNumber) IsZero() bool {
	return len(d) == 0
}

func (d DisplayNumber) IsBranch() bool {
	return len(d) > 1
}

// HierarchyLevel is 0 on the main thread and the branch nesting depth otherwise.
func (d DisplayNumber) HierarchyLevel() int {
	if len(d) <= 1 {
		return 0
	}
	return (len(d) - 1) / 2
}

// Position is the last segment: the index on the main thread, or the position
// inside the branch.
func (d DisplayNumber) Position() int {
	if len(d) == 0 {
		return 0
	}
	return d[len(d)-1]
}

// ThreadPrefix identifies the thread a node belongs to: every segment except
// the position for branch nodes, and nil for the main thread.
func (d DisplayNumber) ThreadPrefix() DisplayNumber {
	if !d.IsBranch() {
		return nil
	}
	return d.clone()[:len(d)-1]
}

// BranchPrefix is the top-level branch a node belongs to: its first two
// segments, e.g. "3.1." for "3.1.4" and for "3.1.0.2.4". Merges close a whole
// BranchPrefix, nested branches included. Main thread numbers are returned
// unchanged.
func (d DisplayNumber) BranchPrefix() string {
	if !d.IsBranch() {
		return d.String()
	}
	return d[:2].String() + "."
}

// ThreadKey identifies the exact thread of a node, e.g. "3.1.0.2." for
// "3.1.0.2.4". Unlike BranchPrefix it tells nested threads apart.
func (d DisplayNumber) ThreadKey() string {
	if !d.IsBranch() {
		return ""
	}
	return d.ThreadPrefix().String() + "."
}

// Next is the following position in the same thread.
func (d DisplayNumber) Next() DisplayNumber {
	ret := d.clone()
	if len(ret) == 0 {
		return DisplayNumber{0}
	}
	ret[len(ret)-1]++
	return ret
}

// Branch is the root position of branch number index under d.
func (d DisplayNumber) Branch(index int) DisplayNumber {
	ret := make(DisplayNumber, 0, len(d)+2)
	ret = append(ret, d...)
	return append(ret, index, 0)
}

// InThread reports whether d is a direct member of the thread with the given
// prefix (nested branches excluded).
func (d DisplayNumber) InThread(prefix DisplayNumber) bool {
	if len(prefix) == 0 {
		return len(d) == 1
	}
	if len(d) != len(prefix)+1 {
		return false
	}
	for i, v := range prefix {
		if d[i] != v {
			return false
		}
	}
	return true
}

// Compare orders display numbers segment by segment, treating missing trailing
// segments as 0, so that "2" < "2.1.0" < "2.1.1" < "3".
func (d DisplayNumber) Compare(o DisplayNumber) int {
	n := len(d)
	if len(o) > n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(d) {
			a = d[i]
		}
		if i < len(o) {
			b = o[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	// "2" and "2.0.0" compare equal segment-wise; the shorter one goes first.
	switch {
	case len(d) < len(o):
		return -1
	case len(d) > len(o):
		return 1
	}
	return 0
}

func (d DisplayNumber) Equal(o DisplayNumber) bool {
	return d.Compare(o) == 0
}

func (d DisplayNumber) clone() DisplayNumber {
	if d == nil {
		return nil
	}
	ret := make(DisplayNumber, len(d))
	copy(ret, d)
	return ret
}

func (d DisplayNumber) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DisplayNumber) UnmarshalText(data []byte) error {
	v, err := ParseDisplayNumber(string(data))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// IsBranchID reports whether a display number string denotes a branch node.
func IsBranchID(s string) bool {
	return strings.Contains(s, ".")
}

// GenerateNextInBranch increments the final segment of a display number string.
func GenerateNextInBranch(s string) (string, error) {
	d, err := ParseDisplayNumber(s)
	if err != nil {
		return "", err
	}
	return d.Next().String(), nil
}

// GetBranchPrefix returns the first two segments of a display number string
// followed by a dot. A thread prefix without a position ("3.1") is accepted as
// well and yields "3.1.".
func GetBranchPrefix(s string) (string, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if n := strings.Count(s, "."); n%2 == 1 {
		s += ".0"
	}
	d, err := ParseDisplayNumber(s)
	if err != nil {
		return "", err
	}
	return d.BranchPrefix(), nil
}

func GetHierarchyLevel(s string) (int, error) {
	d, err := ParseDisplayNumber(s)
	if err != nil {
		return 0, err
	}
	return d.HierarchyLevel(), nil
}
