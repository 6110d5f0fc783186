package cache

// -------------------- LRU list (allocation lock held) --------------------

// pushFront links e at MRU in O(1).
func (s *Store) pushFront(e *entry) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
	e.linked = true
	s.n++
}

// moveToFront promotes e to MRU in O(1).
func (s *Store) moveToFront(e *entry) {
	if e == s.head {
		return
	}
	s.detach(e)
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

// unlink removes e from the list. Its own links are cleared so a stale walk
// through e ends instead of wandering into live entries.
func (s *Store) unlink(e *entry) {
	s.detach(e)
	e.prev, e.next = nil, nil
	e.linked = false
	s.n--
}

func (s *Store) detach(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
}
