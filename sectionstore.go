package scripturepath

import "sync"

// SectionStore holds the sections of one study, always exactly the canonical
// set in canonical order. It is safe for concurrent use.
type SectionStore struct {
	mu       sync.RWMutex
	sections []Section
	frozen   bool
}

// NewSectionStore returns a store seeded with every canonical section, empty.
func NewSectionStore() *SectionStore {
	s := &SectionStore{sections: make([]Section, len(SectionDefinitions))}
	for i, def := range SectionDefinitions {
		s.sections[i] = Section{SectionID: def.ID, Title: def.Title}
	}
	return s
}

// Get returns a copy of one section.
func (s *SectionStore) Get(id string) (Section, error) {
	i, ok := sectionIndex(id)
	if !ok {
		return Section{}, &UnknownSectionError{SectionID: id}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections[i], nil
}

// Replace sets the content of one section and clears its regeneration flag.
// Only that section changes.
func (s *SectionStore) Replace(id, content string) error {
	i, ok := sectionIndex(id)
	if !ok {
		return &UnknownSectionError{SectionID: id}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ErrStudyLocked
	}
	s.sections[i].Content = content
	s.sections[i].NeedsRegeneration = false
	return nil
}

// MarkNeedsRegeneration empties a section and flags it for regeneration.
func (s *SectionStore) MarkNeedsRegeneration(id string) error {
	i, ok := sectionIndex(id)
	if !ok {
		return &UnknownSectionError{SectionID: id}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ErrStudyLocked
	}
	s.sections[i].Content = ""
	s.sections[i].NeedsRegeneration = true
	return nil
}

// View returns every section in canonical order. An empty title is filled
// from the section id.
func (s *SectionStore) View() []Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Section, len(s.sections))
	copy(out, s.sections)
	for i := range out {
		if out[i].Title == "" {
			out[i].Title = titleFromID(out[i].SectionID)
		}
	}
	return out
}

// PendingRegeneration lists the ids of flagged sections.
func (s *SectionStore) PendingRegeneration() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, sec := range s.sections {
		if sec.NeedsRegeneration {
			ids = append(ids, sec.SectionID)
		}
	}
	return ids
}

// Freeze makes the store read-only. It cannot be undone.
func (s *SectionStore) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Locked reports whether Freeze was called.
func (s *SectionStore) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Clone returns an independent copy, frozen if s is.
func (s *SectionStore) Clone() *SectionStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &SectionStore{sections: make([]Section, len(s.sections)), frozen: s.frozen}
	copy(c.sections, s.sections)
	return c
}

// set overwrites a whole section, ignoring the freeze. Only loading uses it.
func (s *SectionStore) set(sec Section) {
	i, ok := sectionIndex(sec.SectionID)
	if !ok {
		return
	}
	s.mu.Lock()
	s.sections[i] = sec
	s.mu.Unlock()
}
