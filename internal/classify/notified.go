package classify

// notifiedSet remembers the stable ids already pushed during this process.
// Synthesized ids never enter it: a sequence number is reused across
// sessions and would suppress notifications for unrelated messages.
type notifiedSet map[string]struct{}

// claim marks id as notified and reports whether the caller should send.
// It returns false for empty, synthesized or already-notified ids.
func (s notifiedSet) claim(id string, synthesized bool) bool {
	if id == "" || synthesized {
		return false
	}
	if _, seen := s[id]; seen {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s notifiedSet) has(id string) bool {
	_, ok := s[id]
	return ok
}
