package scripturepath

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func filledStore(t *testing.T) *SectionStore {
	t.Helper()
	s := NewSectionStore()
	for _, def := range SectionDefinitions {
		if err := s.Replace(def.ID, "<p>"+def.ID+"</p>"); err != nil {
			t.Fatalf("replace %s: %v", def.ID, err)
		}
	}
	return s
}

func TestSectionStoreReplaceIsolated(t *testing.T) {
	s := filledStore(t)
	before := s.View()

	if err := s.Replace(SectionCrossReferences, "<p>new</p>"); err != nil {
		t.Fatalf("replace: %v", err)
	}

	after := s.View()
	for i := range after {
		if after[i].SectionID == SectionCrossReferences {
			if after[i].Content != "<p>new</p>" {
				t.Fatalf("expected new content, got %q", after[i].Content)
			}
			continue
		}
		if after[i] != before[i] {
			t.Fatalf("section %s changed: %+v -> %+v", after[i].SectionID, before[i], after[i])
		}
	}
}

func TestSectionStoreUnknownID(t *testing.T) {
	s := NewSectionStore()
	var ue *UnknownSectionError
	if err := s.Replace("sermon_outline", "x"); !errors.As(err, &ue) {
		t.Fatalf("expected UnknownSectionError, got %v", err)
	}
	if _, err := s.Get("sermon_outline"); !errors.As(err, &ue) {
		t.Fatalf("expected UnknownSectionError, got %v", err)
	}
	if len(s.View()) != len(SectionDefinitions) {
		t.Fatalf("unknown id must not add a section")
	}
}

func TestSectionStoreRegenerationFlag(t *testing.T) {
	s := filledStore(t)
	if err := s.MarkNeedsRegeneration(SectionPrayerGuide); err != nil {
		t.Fatalf("mark: %v", err)
	}
	sec, _ := s.Get(SectionPrayerGuide)
	if !sec.NeedsRegeneration || sec.Content != "" {
		t.Fatalf("expected flagged empty section, got %+v", sec)
	}
	if pending := s.PendingRegeneration(); len(pending) != 1 || pending[0] != SectionPrayerGuide {
		t.Fatalf("unexpected pending %v", pending)
	}

	_ = s.Replace(SectionPrayerGuide, "<p>back</p>")
	if pending := s.PendingRegeneration(); len(pending) != 0 {
		t.Fatalf("expected flag cleared, got %v", pending)
	}
}

func TestSectionStoreFreeze(t *testing.T) {
	s := filledStore(t)
	s.Freeze()
	if !s.Locked() {
		t.Fatalf("expected locked store")
	}
	if err := s.Replace(SectionThemeSummary, "x"); !errors.Is(err, ErrStudyLocked) {
		t.Fatalf("expected ErrStudyLocked, got %v", err)
	}
	if err := s.MarkNeedsRegeneration(SectionThemeSummary); !errors.Is(err, ErrStudyLocked) {
		t.Fatalf("expected ErrStudyLocked, got %v", err)
	}
	sec, _ := s.Get(SectionThemeSummary)
	if sec.Content != "<p>theme_summary</p>" {
		t.Fatalf("locked content changed: %q", sec.Content)
	}
	if !s.Clone().Locked() {
		t.Fatalf("expected clone of a frozen store to stay frozen")
	}
}

func TestSectionStoreClone(t *testing.T) {
	s := filledStore(t)
	c := s.Clone()
	_ = c.Replace(SectionThemeSummary, "<p>changed</p>")
	sec, _ := s.Get(SectionThemeSummary)
	if sec.Content != "<p>theme_summary</p>" {
		t.Fatalf("clone shares state with original: %q", sec.Content)
	}
}

func TestSectionStoreViewSynthesizesTitles(t *testing.T) {
	s := NewSectionStore()
	s.set(Section{SectionID: SectionFurtherStudy, Content: "<p>x</p>"})
	for _, sec := range s.View() {
		if sec.SectionID == SectionFurtherStudy && sec.Title == "" {
			t.Fatalf("expected a synthesized title")
		}
	}
}

func TestSectionStoreConcurrentReplace(t *testing.T) {
	s := NewSectionStore()
	var wg sync.WaitGroup
	for _, def := range SectionDefinitions {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.Replace(id, fmt.Sprintf("<p>%s %d</p>", id, i))
				_ = s.View()
			}
		}(def.ID)
	}
	wg.Wait()

	for _, sec := range s.View() {
		want := fmt.Sprintf("<p>%s 49</p>", sec.SectionID)
		if sec.Content != want {
			t.Fatalf("expected %q, got %q", want, sec.Content)
		}
	}
}
