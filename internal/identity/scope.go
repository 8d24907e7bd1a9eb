package identity

// Scope is the naming state of a test: current section, group and the
// next sequence number. It is a value; every method returns a new Scope,
// so nothing is shared between tests or goroutines.
type Scope struct {
	section string
	group   string
	next    int
}

func (s Scope) Section() string { return s.section }
func (s Scope) Group() string   { return s.group }

// WithSection sets the section. The sequence counter is kept.
func (s Scope) WithSection(name string) Scope {
	s.section = name
	return s
}

// WithGroup starts a numbered group at sequence 1. Reusing a group name
// restarts numbering; callers are expected to purge the group's artifacts.
func (s Scope) WithGroup(name string) Scope {
	s.group = name
	if name == "" {
		s.next = 0
	} else {
		s.next = 1
	}
	return s
}

// Next returns the identity for label and the scope to use afterwards.
func (s Scope) Next(label string) (Identity, Scope) {
	id := Identity{Section: s.section, Group: s.group, Label: label}
	if s.next > 0 {
		id.Seq = s.next
		s.next++
	}
	return id, s
}
