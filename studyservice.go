package scripturepath

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Boniqx/scripture-path/internal/logger"
)

// ServiceOptions configures a StudyService. Zero values get defaults.
type ServiceOptions struct {
	Validator *Validator
	Logger    *logger.Logger
	// LogDir enables per-study LLM transcripts when set.
	LogDir                string
	RegenerateConcurrency int
	Now                   func() time.Time
	NewID                 func() string
}

// StudyService orchestrates generation, editing and sharing of studies
type StudyService struct {
	repo        StudyRepository
	gen         TextGenerator
	validator   *Validator
	log         *logger.Logger
	logDir      string
	concurrency int
	now         func() time.Time
	newID       func() string

	locksMu sync.Mutex
	locks   map[string]*studyMutex
}

// NewStudyService creates a study service
func NewStudyService(repo StudyRepository, gen TextGenerator, opts ServiceOptions) *StudyService {
	s := &StudyService{
		repo:        repo,
		gen:         gen,
		validator:   opts.Validator,
		log:         opts.Logger,
		logDir:      opts.LogDir,
		concurrency: opts.RegenerateConcurrency,
		now:         opts.Now,
		newID:       opts.NewID,
		locks:       make(map[string]*studyMutex),
	}
	if s.validator == nil {
		s.validator = NewValidator()
	}
	if s.log == nil {
		s.log = defaultLogger()
	}
	s.log = s.log.With("component", "StudyService")
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// studyMutex is a per-study lock shared by the callers currently holding or
// waiting for it.
type studyMutex struct {
	sync.Mutex
	refs int
}

// lockStudy serializes read-modify-write cycles on one study. The returned
// func unlocks, and the entry is dropped once nobody holds or awaits it.
func (s *StudyService) lockStudy(id string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &studyMutex{}
		s.locks[id] = mu
	}
	mu.refs++
	s.locksMu.Unlock()

	mu.Lock()
	return func() {
		mu.Unlock()
		s.locksMu.Lock()
		mu.refs--
		if mu.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// lockCount reports how many per-study locks are live.
func (s *StudyService) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

// update applies fn to the stored study under its lock and writes it back.
func (s *StudyService) update(ctx context.Context, id string, fn func(*Study) error) (*Study, error) {
	unlock := s.lockStudy(id)
	defer unlock()

	study, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(study); err != nil {
		return nil, err
	}
	if err := s.repo.Put(ctx, study); err != nil {
		return nil, fmt.Errorf("failed to save study: %w", err)
	}
	return study, nil
}

// CanEdit reports whether principal may change the study. Guest studies are
// editable by whoever holds their id.
func CanEdit(study *Study, principal string) bool {
	owner := study.Metadata.OwnerID
	return owner == OwnerGuest || (principal != "" && owner == principal)
}

// CanView reports whether principal may read the study.
func CanView(study *Study, principal string) bool {
	return study.Metadata.IsPublic || CanEdit(study, principal)
}

func (s *StudyService) transcript(studyID string) *LLMLogger {
	if s.logDir == "" {
		return nil
	}
	tl, err := NewLLMLogger(s.logDir, studyID)
	if err != nil {
		s.log.Warn("transcript unavailable", "study_id", studyID, "error", err)
		return nil
	}
	return tl
}

func (s *StudyService) generate(ctx context.Context, tl *LLMLogger, p Prompt) (string, error) {
	if tl != nil {
		tl.LogLLMRequest(p)
	}
	raw, err := s.gen.Generate(ctx, p)
	if err != nil {
		if tl != nil {
			tl.LogSectionResult(p.Name, "FAILED", err.Error())
		}
		return "", &GenerationError{Kind: GeneratorFailed, Err: err}
	}
	if tl != nil {
		tl.LogLLMResponse(p.Name, raw)
	}
	return raw, nil
}

// CreateStudy generates, validates and stores a new study. Sections the
// model got wrong are stored flagged for regeneration and listed in the
// report.
func (s *StudyService) CreateStudy(ctx context.Context, req GenerationRequest) (*Study, *ValidationReport, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, nil, errors.New("topic is required")
	}
	id := s.newID()
	log := s.log.With("study_id", id)
	log.Info("generating study", "topic", req.Topic, "difficulty", req.Difficulty, "length", req.Length)

	tl := s.transcript(id)
	if tl != nil {
		defer tl.Close()
		tl.LogGeneration(req)
	}

	raw, err := s.generate(ctx, tl, buildStudyPrompt(req))
	if err != nil {
		log.Error("generation failed", "error", err)
		return nil, nil, err
	}

	v := *s.validator
	v.NewID = func() string { return id }
	v.Now = s.now
	study, report, err := v.ValidateStudy(raw, req)
	if err != nil {
		log.Error("invalid generation response", "error", err)
		return nil, nil, err
	}
	if tl != nil {
		tl.LogReport(report)
	}

	if err := s.repo.Put(ctx, study); err != nil {
		return nil, nil, fmt.Errorf("failed to save study: %w", err)
	}
	log.Info("study created",
		"title", study.Metadata.Title,
		"needs_regeneration", len(report.NeedsRegeneration),
		"unknown_sections", len(report.UnknownSections))
	return study, report, nil
}

// GetStudy returns a study the principal may view.
func (s *StudyService) GetStudy(ctx context.Context, principal, id string) (*Study, error) {
	study, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(study, principal) {
		return nil, ErrNotOwner
	}
	return study, nil
}

// SectionResult is the outcome of regenerating one section
type SectionResult struct {
	Section   Section
	Recovered bool // the model returned nothing; placeholder content was stored
	Err       error
}

// RegenerateSection asks the model for new content for one section and
// stores it. The model call runs without any lock held; only the final
// re-read and write of the study is serialized, and it touches no other
// section. Nothing is written when generation or validation fails.
func (s *StudyService) RegenerateSection(ctx context.Context, principal, studyID, sectionID string, tier Tier) (SectionResult, error) {
	if !IsSectionID(sectionID) {
		return SectionResult{}, &UnknownSectionError{SectionID: sectionID}
	}
	study, err := s.repo.Get(ctx, studyID)
	if err != nil {
		return SectionResult{}, err
	}
	if !CanEdit(study, principal) {
		return SectionResult{}, ErrNotOwner
	}
	if study.Sections.Locked() {
		return SectionResult{}, ErrStudyLocked
	}
	current, err := study.Sections.Get(sectionID)
	if err != nil {
		return SectionResult{}, err
	}

	rr := RegenerationRequest{
		SectionID:      sectionID,
		Context:        study.Context(),
		CurrentContent: current.Content,
		Tier:           tier,
	}
	log := s.log.With("study_id", studyID, "section", sectionID)
	log.Info("regenerating section")

	tl := s.transcript(studyID)
	if tl != nil {
		defer tl.Close()
		tl.LogRegeneration(rr)
	}

	raw, err := s.generate(ctx, tl, buildSectionPrompt(rr))
	if err != nil {
		log.Error("regeneration failed", "error", err)
		return SectionResult{}, err
	}
	content, recovered, err := s.validator.ValidateSection(sectionID, raw)
	if err != nil {
		log.Error("invalid regeneration response", "error", err)
		if tl != nil {
			tl.LogSectionResult(sectionID, "REJECTED", err.Error())
		}
		return SectionResult{}, err
	}
	if ctx.Err() != nil {
		return SectionResult{}, ctx.Err()
	}

	updated, err := s.update(ctx, studyID, func(fresh *Study) error {
		return fresh.Sections.Replace(sectionID, content)
	})
	if err != nil {
		return SectionResult{}, err
	}
	sec, _ := updated.Sections.Get(sectionID)
	if tl != nil {
		action := "REPLACED"
		if recovered {
			action = "PLACEHOLDER"
		}
		tl.LogSectionResult(sectionID, action, fmt.Sprintf("%d characters", len(content)))
	}
	return SectionResult{Section: sec, Recovered: recovered}, nil
}

// RegenerateSections regenerates several sections concurrently. With no ids
// given it regenerates every section flagged for regeneration. Each section
// succeeds or fails on its own; the returned error is the first failure.
func (s *StudyService) RegenerateSections(ctx context.Context, principal, studyID string, sectionIDs []string, tier Tier) ([]SectionResult, error) {
	if len(sectionIDs) == 0 {
		study, err := s.repo.Get(ctx, studyID)
		if err != nil {
			return nil, err
		}
		sectionIDs = study.Sections.PendingRegeneration()
	}

	results := make([]SectionResult, len(sectionIDs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range sectionIDs {
		g.Go(func() error {
			res, err := s.RegenerateSection(ctx, principal, studyID, id, tier)
			if err != nil {
				results[i] = SectionResult{Section: Section{SectionID: id}, Err: err}
				return fmt.Errorf("failed to regenerate %s: %w", id, err)
			}
			results[i] = res
			return nil
		})
	}
	return results, g.Wait()
}

// UpdateSection stores a manual edit. Markup is normalized; quiz content
// must hold at least one valid question.
func (s *StudyService) UpdateSection(ctx context.Context, principal, studyID, sectionID, content string) (Section, error) {
	if !IsSectionID(sectionID) {
		return Section{}, &UnknownSectionError{SectionID: sectionID}
	}
	if sectionID == SectionTheologicalQuiz {
		qs, _, err := DecodeQuiz(json.RawMessage(content))
		if err != nil {
			return Section{}, &GenerationError{Kind: MalformedResponse, Err: err}
		}
		if len(qs) == 0 {
			return Section{}, malformed("quiz has no valid questions")
		}
		content = EncodeQuiz(qs)
	} else {
		content = s.validator.NormalizeMarkup(content)
	}

	updated, err := s.update(ctx, studyID, func(study *Study) error {
		if !CanEdit(study, principal) {
			return ErrNotOwner
		}
		return study.Sections.Replace(sectionID, content)
	})
	if err != nil {
		return Section{}, err
	}
	return updated.Sections.Get(sectionID)
}

// Lock freezes the study's sections for good. Locking twice is harmless.
func (s *StudyService) Lock(ctx context.Context, principal, studyID string) (*Study, error) {
	return s.update(ctx, studyID, func(study *Study) error {
		if !CanEdit(study, principal) {
			return ErrNotOwner
		}
		study.Metadata.IsLocked = true
		study.Sections.Freeze()
		return nil
	})
}

// SetVisibility publishes or unpublishes a study.
func (s *StudyService) SetVisibility(ctx context.Context, principal, studyID string, public bool) (*Study, error) {
	return s.update(ctx, studyID, func(study *Study) error {
		if !CanEdit(study, principal) {
			return ErrNotOwner
		}
		study.Metadata.IsPublic = public
		return nil
	})
}

// ToggleVisibility flips the public flag.
func (s *StudyService) ToggleVisibility(ctx context.Context, principal, studyID string) (*Study, error) {
	return s.update(ctx, studyID, func(study *Study) error {
		if !CanEdit(study, principal) {
			return ErrNotOwner
		}
		study.Metadata.IsPublic = !study.Metadata.IsPublic
		return nil
	})
}

// Clone copies a viewable study into a new, private, unlocked study owned by
// principal, and counts the clone on the source.
func (s *StudyService) Clone(ctx context.Context, principal, studyID string) (*Study, error) {
	var clone *Study
	_, err := s.update(ctx, studyID, func(src *Study) error {
		if !CanView(src, principal) {
			return ErrNotOwner
		}
		owner := principal
		if owner == "" {
			owner = OwnerGuest
		}
		clone = src.Copy()
		clone.ID = s.newID()
		clone.Metadata.OwnerID = owner
		clone.Metadata.CreatedAt = s.now().UTC()
		clone.Metadata.IsPublic = false
		clone.Metadata.IsLocked = false
		clone.Metadata.Stats = Stats{}
		clone.Sections = NewSectionStore()
		for _, sec := range src.Sections.View() {
			clone.Sections.set(sec)
		}
		src.Metadata.Stats.Clones++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.Put(ctx, clone); err != nil {
		return nil, fmt.Errorf("failed to save clone: %w", err)
	}
	s.log.Info("study cloned", "study_id", studyID, "clone_id", clone.ID, "owner_id", clone.Metadata.OwnerID)
	return clone, nil
}

// Claim hands a guest study to a signed-in principal. It succeeds once.
func (s *StudyService) Claim(ctx context.Context, principal, studyID string) (*Study, error) {
	if principal == "" || principal == OwnerGuest {
		return nil, errors.New("claim requires a signed-in principal")
	}
	return s.update(ctx, studyID, func(study *Study) error {
		if study.Metadata.OwnerID != OwnerGuest {
			return ErrAlreadyClaimed
		}
		study.Metadata.OwnerID = principal
		return nil
	})
}

// RecordView counts a view.
func (s *StudyService) RecordView(ctx context.Context, studyID string) (Stats, error) {
	return s.bump(ctx, studyID, func(st *Stats) { st.Views++ })
}

// RecordLike counts a like.
func (s *StudyService) RecordLike(ctx context.Context, studyID string) (Stats, error) {
	return s.bump(ctx, studyID, func(st *Stats) { st.Likes++ })
}

// RecordShare counts a share.
func (s *StudyService) RecordShare(ctx context.Context, studyID string) (Stats, error) {
	return s.bump(ctx, studyID, func(st *Stats) { st.Shares++ })
}

func (s *StudyService) bump(ctx context.Context, studyID string, fn func(*Stats)) (Stats, error) {
	study, err := s.update(ctx, studyID, func(study *Study) error {
		fn(&study.Metadata.Stats)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return study.Metadata.Stats, nil
}

// Delete removes a study the principal owns.
func (s *StudyService) Delete(ctx context.Context, principal, studyID string) error {
	unlock := s.lockStudy(studyID)
	defer unlock()

	study, err := s.repo.Get(ctx, studyID)
	if err != nil {
		return err
	}
	if !CanEdit(study, principal) {
		return ErrNotOwner
	}
	if err := s.repo.Delete(ctx, studyID); err != nil {
		return err
	}
	s.log.Info("study deleted", "study_id", studyID)
	return nil
}

// ListMine returns the principal's studies, newest first.
func (s *StudyService) ListMine(ctx context.Context, principal string) ([]*Study, error) {
	return s.repo.ListByOwner(ctx, principal)
}

// ListPublic returns the public catalogue by score.
func (s *StudyService) ListPublic(ctx context.Context, limit int) ([]*Study, error) {
	return s.repo.ListPublic(ctx, limit)
}

// StudyTotals aggregates engagement over a set of studies
type StudyTotals struct {
	Studies       int `json:"totalStudies"`
	PublicStudies int `json:"publicStudies"`
	Views         int `json:"totalViews"`
	Likes         int `json:"totalLikes"`
	Shares        int `json:"totalShares"`
	Clones        int `json:"totalClones"`
}

// Totals sums the owner's studies, or the public catalogue when ownerID is
// empty.
func (s *StudyService) Totals(ctx context.Context, ownerID string) (StudyTotals, error) {
	var (
		studies []*Study
		err     error
	)
	if ownerID == "" {
		studies, err = s.repo.ListPublic(ctx, 0)
	} else {
		studies, err = s.repo.ListByOwner(ctx, ownerID)
	}
	if err != nil {
		return StudyTotals{}, err
	}
	var t StudyTotals
	for _, st := range studies {
		t.Studies++
		if st.Metadata.IsPublic {
			t.PublicStudies++
		}
		t.Views += st.Metadata.Stats.Views
		t.Likes += st.Metadata.Stats.Likes
		t.Shares += st.Metadata.Stats.Shares
		t.Clones += st.Metadata.Stats.Clones
	}
	return t, nil
}
