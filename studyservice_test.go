package scripturepath

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T, gen *fakeGenerator) (*StudyService, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	n := 0
	svc := NewStudyService(repo, gen, ServiceOptions{
		Validator: testValidator(),
		Now:       func() time.Time { return testNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	return svc, repo
}

func createStudy(t *testing.T, svc *StudyService, owner string) *Study {
	t.Helper()
	study, _, err := svc.CreateStudy(context.Background(), GenerationRequest{Topic: "Prodigal Son", OwnerID: owner})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return study
}

func TestCreateStudy(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t, SectionPrayerGuide)}
	svc, repo := newTestService(t, gen)

	study, report, err := svc.CreateStudy(context.Background(), GenerationRequest{Topic: "Prodigal Son", Difficulty: DifficultyAdvanced})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if study.ID != "id-1" || study.Metadata.OwnerID != OwnerGuest || study.Metadata.Difficulty != DifficultyAdvanced {
		t.Fatalf("unexpected study %s %+v", study.ID, study.Metadata)
	}
	if len(report.NeedsRegeneration) != 1 || report.NeedsRegeneration[0] != SectionPrayerGuide {
		t.Fatalf("unexpected report %+v", report)
	}
	stored, err := repo.Get(context.Background(), study.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pending := stored.Sections.PendingRegeneration(); len(pending) != 1 {
		t.Fatalf("expected the flag persisted, got %v", pending)
	}
	if gen.calls[0].Format != FormatJSON {
		t.Fatalf("expected a JSON prompt, got %v", gen.calls[0].Format)
	}

	if _, _, err := svc.CreateStudy(context.Background(), GenerationRequest{Topic: "  "}); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestCreateStudyFailures(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	svc, repo := newTestService(t, gen)
	if _, _, err := svc.CreateStudy(context.Background(), GenerationRequest{Topic: "x"}); !errors.Is(err, ErrGeneratorFailed) {
		t.Fatalf("expected ErrGeneratorFailed, got %v", err)
	}

	gen.err = nil
	gen.study = "I cannot help with that."
	if _, _, err := svc.CreateStudy(context.Background(), GenerationRequest{Topic: "x"}); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	if all, _ := repo.ListByOwner(context.Background(), OwnerGuest); len(all) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(all))
	}
}

func TestRegenerateSection(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, repo := newTestService(t, gen)
	study := createStudy(t, svc, "alice")
	before := study.Sections.View()

	gen.section = func(p Prompt) (string, error) {
		if !strings.Contains(p.User, "Current content") {
			t.Errorf("expected current content in prompt")
		}
		return "```html\n<p>Deeper <verse reference=\"Rom 5:8\">Rom 5:8</verse></p>\n```", nil
	}
	res, err := svc.RegenerateSection(context.Background(), "alice", study.ID, SectionCrossReferences, TierScribe)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if res.Recovered || res.Section.Content != `<p>Deeper <bible-verse reference="Rom 5:8">Rom 5:8</bible-verse></p>` {
		t.Fatalf("unexpected result %+v", res)
	}
	if gen.calls[len(gen.calls)-1].Tier != TierScribe {
		t.Fatalf("expected tier passed to generator")
	}

	stored, _ := repo.Get(context.Background(), study.ID)
	for i, sec := range stored.Sections.View() {
		if sec.SectionID == SectionCrossReferences {
			continue
		}
		if sec != before[i] {
			t.Fatalf("section %s changed", sec.SectionID)
		}
	}

	if _, err := svc.RegenerateSection(context.Background(), "bob", study.ID, SectionCrossReferences, TierSeeker); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	var ue *UnknownSectionError
	if _, err := svc.RegenerateSection(context.Background(), "alice", study.ID, "bogus", TierSeeker); !errors.As(err, &ue) {
		t.Fatalf("expected UnknownSectionError, got %v", err)
	}
}

func TestRegenerateSectionPlaceholder(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, _ := newTestService(t, gen)
	study := createStudy(t, svc, "")

	gen.section = func(Prompt) (string, error) { return "   ", nil }
	res, err := svc.RegenerateSection(context.Background(), "", study.ID, SectionPrayerGuide, TierSeeker)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if !res.Recovered || res.Section.Content != PlaceholderContent {
		t.Fatalf("expected placeholder, got %+v", res)
	}
}

func TestRegenerateSectionFailureWritesNothing(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, repo := newTestService(t, gen)
	study := createStudy(t, svc, "alice")
	quizBefore, _ := study.Sections.Get(SectionTheologicalQuiz)
	summaryBefore, _ := study.Sections.Get(SectionThemeSummary)

	gen.section = func(Prompt) (string, error) { return "", errors.New("timeout") }
	if _, err := svc.RegenerateSection(context.Background(), "alice", study.ID, SectionThemeSummary, TierSeeker); !errors.Is(err, ErrGeneratorFailed) {
		t.Fatalf("expected ErrGeneratorFailed, got %v", err)
	}

	gen.section = func(Prompt) (string, error) { return `[{"q":"only three","o":["a","b","c"],"a":0}]`, nil }
	if _, err := svc.RegenerateSection(context.Background(), "alice", study.ID, SectionTheologicalQuiz, TierSeeker); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	stored, _ := repo.Get(context.Background(), study.ID)
	quizAfter, _ := stored.Sections.Get(SectionTheologicalQuiz)
	summaryAfter, _ := stored.Sections.Get(SectionThemeSummary)
	if quizAfter != quizBefore || summaryAfter != summaryBefore {
		t.Fatalf("failed regeneration changed stored content")
	}
}

func TestRegenerateSectionsConcurrent(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, repo := newTestService(t, gen)
	study := createStudy(t, svc, "alice")

	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	gen.section = func(p Prompt) (string, error) {
		arrived <- struct{}{}
		<-release
		return "<p>new " + strings.TrimPrefix(p.Name, "section ") + "</p>", nil
	}

	type outcome struct {
		results []SectionResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := svc.RegenerateSections(context.Background(), "alice", study.ID,
			[]string{SectionCrossReferences, SectionPrayerGuide}, TierSeeker)
		done <- outcome{results, err}
	}()

	// both model calls are in flight before either result is written
	for i := 0; i < 2; i++ {
		select {
		case <-arrived:
		case <-time.After(5 * time.Second):
			t.Fatalf("regenerations did not run concurrently")
		}
	}
	close(release)

	out := <-done
	if out.err != nil {
		t.Fatalf("regenerate: %v", out.err)
	}
	if len(out.results) != 2 || out.results[0].Section.SectionID != SectionCrossReferences {
		t.Fatalf("unexpected results %+v", out.results)
	}

	stored, _ := repo.Get(context.Background(), study.ID)
	for _, id := range []string{SectionCrossReferences, SectionPrayerGuide} {
		sec, _ := stored.Sections.Get(id)
		if sec.Content != "<p>new "+id+"</p>" {
			t.Fatalf("lost update for %s: %q", id, sec.Content)
		}
	}
}

func TestRegenerateSectionsPending(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t, SectionFurtherStudy, SectionTheologicalQuiz)}
	svc, repo := newTestService(t, gen)
	study := createStudy(t, svc, "")

	gen.section = func(p Prompt) (string, error) {
		if p.Format == FormatQuiz {
			return `[{"q":"Q","o":["a","b","c","d"],"a":2}]`, nil
		}
		return "", errors.New("down")
	}
	results, err := svc.RegenerateSections(context.Background(), "", study.ID, nil, TierSeeker)
	if !errors.Is(err, ErrGeneratorFailed) {
		t.Fatalf("expected the further_study failure, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		switch r.Section.SectionID {
		case SectionTheologicalQuiz:
			if r.Err != nil {
				t.Fatalf("quiz should succeed: %v", r.Err)
			}
		case SectionFurtherStudy:
			if r.Err == nil {
				t.Fatalf("expected further_study error")
			}
		default:
			t.Fatalf("unexpected section %s", r.Section.SectionID)
		}
	}

	stored, _ := repo.Get(context.Background(), study.ID)
	if pending := stored.Sections.PendingRegeneration(); len(pending) != 1 || pending[0] != SectionFurtherStudy {
		t.Fatalf("expected further_study still pending, got %v", pending)
	}
}

func TestUpdateSection(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, _ := newTestService(t, gen)
	study := createStudy(t, svc, "alice")
	ctx := context.Background()

	sec, err := svc.UpdateSection(ctx, "alice", study.ID, SectionDevotionalReflection, "<p>Rest in <verse reference=\"Matt 11:28\">Matt 11:28</verse>")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sec.Content != `<p>Rest in <bible-verse reference="Matt 11:28">Matt 11:28</bible-verse></p>` {
		t.Fatalf("unexpected content %q", sec.Content)
	}
	if _, err := svc.UpdateSection(ctx, "alice", study.ID, SectionTheologicalQuiz, "[]"); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected empty quiz rejected, got %v", err)
	}
	if _, err := svc.UpdateSection(ctx, "mallory", study.ID, SectionThemeSummary, "<p>x</p>"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestLockStudy(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, repo := newTestService(t, gen)
	study := createStudy(t, svc, "alice")
	ctx := context.Background()

	if _, err := svc.Lock(ctx, "alice", study.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := svc.Lock(ctx, "alice", study.ID); err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if _, err := svc.UpdateSection(ctx, "alice", study.ID, SectionThemeSummary, "<p>x</p>"); !errors.Is(err, ErrStudyLocked) {
		t.Fatalf("expected ErrStudyLocked, got %v", err)
	}
	calls := gen.callCount()
	if _, err := svc.RegenerateSection(ctx, "alice", study.ID, SectionThemeSummary, TierSeeker); !errors.Is(err, ErrStudyLocked) {
		t.Fatalf("expected ErrStudyLocked, got %v", err)
	}
	if gen.callCount() != calls {
		t.Fatalf("locked study must not reach the generator")
	}
	stored, _ := repo.Get(ctx, study.ID)
	if !stored.Metadata.IsLocked || !stored.Sections.Locked() {
		t.Fatalf("expected stored study locked")
	}
	if _, err := svc.SetVisibility(ctx, "alice", study.ID, true); err != nil {
		t.Fatalf("visibility on a locked study: %v", err)
	}
}

func TestVisibilityAndAccess(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, _ := newTestService(t, gen)
	study := createStudy(t, svc, "alice")
	ctx := context.Background()

	if _, err := svc.GetStudy(ctx, "bob", study.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected private study hidden, got %v", err)
	}
	toggled, err := svc.ToggleVisibility(ctx, "alice", study.ID)
	if err != nil || !toggled.Metadata.IsPublic {
		t.Fatalf("expected public study, got %v", err)
	}
	if _, err := svc.GetStudy(ctx, "bob", study.ID); err != nil {
		t.Fatalf("expected public study visible: %v", err)
	}
	if _, err := svc.SetVisibility(ctx, "bob", study.ID, false); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.GetStudy(ctx, "alice", "missing"); !errors.Is(err, ErrStudyNotFound) {
		t.Fatalf("expected ErrStudyNotFound, got %v", err)
	}
}

func TestCloneStudy(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, repo := newTestService(t, gen)
	study := createStudy(t, svc, "alice")
	ctx := context.Background()
	_, _ = svc.SetVisibility(ctx, "alice", study.ID, true)
	_, _ = svc.Lock(ctx, "alice", study.ID)
	_, _ = svc.RecordLike(ctx, study.ID)

	clone, err := svc.Clone(ctx, "bob", study.ID)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.ID == study.ID || clone.Metadata.OwnerID != "bob" {
		t.Fatalf("unexpected clone %s %+v", clone.ID, clone.Metadata)
	}
	if clone.Metadata.IsPublic || clone.Metadata.IsLocked || clone.Sections.Locked() || clone.Metadata.Stats != (Stats{}) {
		t.Fatalf("clone should be private, unlocked and fresh: %+v", clone.Metadata)
	}
	if _, err := svc.UpdateSection(ctx, "bob", clone.ID, SectionThemeSummary, "<p>mine</p>"); err != nil {
		t.Fatalf("edit clone: %v", err)
	}

	src, _ := repo.Get(ctx, study.ID)
	if src.Metadata.Stats.Clones != 1 {
		t.Fatalf("expected clone counted, got %+v", src.Metadata.Stats)
	}
	sec, _ := src.Sections.Get(SectionThemeSummary)
	if sec.Content == "<p>mine</p>" {
		t.Fatalf("clone edit leaked into source")
	}

	guestClone, err := svc.Clone(ctx, "", study.ID)
	if err != nil || guestClone.Metadata.OwnerID != OwnerGuest {
		t.Fatalf("expected guest clone, got %v", err)
	}
}

func TestClaimStudy(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, _ := newTestService(t, gen)
	study := createStudy(t, svc, "")
	ctx := context.Background()

	if _, err := svc.Claim(ctx, "", study.ID); err == nil {
		t.Fatalf("expected anonymous claim rejected")
	}
	claimed, err := svc.Claim(ctx, "alice", study.ID)
	if err != nil || claimed.Metadata.OwnerID != "alice" {
		t.Fatalf("claim: %v", err)
	}
	if _, err := svc.Claim(ctx, "bob", study.ID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	mine, _ := svc.ListMine(ctx, "alice")
	if len(mine) != 1 || mine[0].ID != study.ID {
		t.Fatalf("expected claimed study listed, got %d", len(mine))
	}
}

func TestCountersAndTotals(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, _ := newTestService(t, gen)
	ctx := context.Background()
	a := createStudy(t, svc, "alice")
	b := createStudy(t, svc, "alice")
	_, _ = svc.SetVisibility(ctx, "alice", a.ID, true)
	_, _ = svc.SetVisibility(ctx, "alice", b.ID, true)

	_, _ = svc.RecordView(ctx, a.ID)
	_, _ = svc.RecordView(ctx, a.ID)
	_, _ = svc.RecordLike(ctx, b.ID)
	stats, err := svc.RecordShare(ctx, b.ID)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if stats.Shares != 1 || stats.Likes != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	public, _ := svc.ListPublic(ctx, 10)
	if len(public) != 2 || public[0].ID != b.ID {
		t.Fatalf("expected %s ranked first (score 5 vs 2)", b.ID)
	}

	totals, err := svc.Totals(ctx, "alice")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	want := StudyTotals{Studies: 2, PublicStudies: 2, Views: 2, Likes: 1, Shares: 1}
	if totals != want {
		t.Fatalf("expected %+v, got %+v", want, totals)
	}

	if _, err := svc.RecordView(ctx, "missing"); !errors.Is(err, ErrStudyNotFound) {
		t.Fatalf("expected ErrStudyNotFound, got %v", err)
	}
}

func TestDeleteStudy(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, _ := newTestService(t, gen)
	study := createStudy(t, svc, "alice")
	ctx := context.Background()

	if err := svc.Delete(ctx, "bob", study.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := svc.Delete(ctx, "alice", study.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, "alice", study.ID); !errors.Is(err, ErrStudyNotFound) {
		t.Fatalf("expected ErrStudyNotFound, got %v", err)
	}
}

func TestServiceTranscript(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeGenerator{study: studyResponse(t, SectionPrayerGuide)}
	repo := NewMemoryRepository()
	svc := NewStudyService(repo, gen, ServiceOptions{LogDir: dir, NewID: func() string { return "logged" }})

	if _, _, err := svc.CreateStudy(context.Background(), GenerationRequest{Topic: "Grace"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.RegenerateSection(context.Background(), "", "logged", SectionPrayerGuide, TierSeeker); err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "logged.log"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	text := string(data)
	for _, want := range []string{"Topic: Grace", "NEEDS REGENERATION", "Section Regeneration (prayer_guide)", "REPLACED"} {
		if !strings.Contains(text, want) {
			t.Fatalf("transcript missing %q", want)
		}
	}
}

func TestStudyLocksAreReleased(t *testing.T) {
	gen := &fakeGenerator{study: studyResponse(t)}
	svc, _ := newTestService(t, gen)
	study := createStudy(t, svc, "alice")
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		missing := fmt.Sprintf("missing-%d", i)
		if _, err := svc.Lock(ctx, "alice", missing); !errors.Is(err, ErrStudyNotFound) {
			t.Fatalf("expected ErrStudyNotFound, got %v", err)
		}
		if _, err := svc.SetVisibility(ctx, "alice", missing, true); !errors.Is(err, ErrStudyNotFound) {
			t.Fatalf("expected ErrStudyNotFound, got %v", err)
		}
		if _, err := svc.RecordView(ctx, missing); !errors.Is(err, ErrStudyNotFound) {
			t.Fatalf("expected ErrStudyNotFound, got %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordView(ctx, study.ID); err != nil {
				t.Errorf("record view: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := svc.lockCount(); n != 0 {
		t.Fatalf("expected no live study locks, got %d", n)
	}
	got, err := svc.GetStudy(ctx, "alice", study.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Metadata.Stats.Views != 20 {
		t.Fatalf("expected 20 views, got %d", got.Metadata.Stats.Views)
	}
}
