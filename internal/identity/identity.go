// Package identity names screenshots. An Identity maps to exactly one
// baseline slot and one current-capture slot.
package identity

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Identity is section/group/sequence/label. Seq is 0 when the screenshot
// is not part of a numbered group.
type Identity struct {
	Section string
	Group   string
	Seq     int
	Label   string
}

// Name is the slash separated name used for artifacts and messages.
func (id Identity) Name() string {
	label := id.Label
	if id.Seq > 0 {
		label = fmt.Sprintf("%02d_%s", id.Seq, id.Label)
	}
	return path.Join(append(id.groupParts(), label)...)
}

// GroupPath is the directory part of Name.
func (id Identity) GroupPath() string {
	return path.Join(id.groupParts()...)
}

func (id Identity) String() string { return id.Name() }

func (id Identity) groupParts() []string {
	var parts []string
	if id.Section != "" {
		parts = append(parts, id.Section)
	}
	if id.Group != "" {
		parts = append(parts, id.Group)
	}
	return parts
}

// Validate rejects identities that could escape the screenshot area or
// collide with another slot.
func (id Identity) Validate() error {
	if id.Label == "" {
		return errors.New("identity: empty label")
	}
	for _, p := range []string{id.Section, id.Group, id.Label} {
		if p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return fmt.Errorf("identity: invalid component %q", p)
		}
	}
	return nil
}

// Parse turns a name such as "login/01_form" back into an Identity. One
// leading component is a group, two are section and group. A "NN_" prefix
// on the last component becomes the sequence number only when Name would
// render it the same way; "001_form" stays a plain label.
func Parse(name string) (Identity, error) {
	name = strings.Trim(path.Clean(strings.ReplaceAll(name, `\`, "/")), "/")
	if name == "" || name == "." {
		return Identity{}, errors.New("identity: empty name")
	}
	parts := strings.Split(name, "/")
	var id Identity
	switch len(parts) {
	case 1:
	case 2:
		id.Group = parts[0]
	case 3:
		id.Section, id.Group = parts[0], parts[1]
	default:
		return Identity{}, fmt.Errorf("identity: too many components in %q", name)
	}
	id.Label = parts[len(parts)-1]
	if seq, label, ok := splitSeq(id.Label); ok && id.Group != "" {
		id.Seq, id.Label = seq, label
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func splitSeq(label string) (int, string, bool) {
	prefix, rest, ok := strings.Cut(label, "_")
	if !ok || len(prefix) < 2 || rest == "" {
		return 0, "", false
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n <= 0 || fmt.Sprintf("%02d", n) != prefix {
		return 0, "", false
	}
	return n, rest, true
}
