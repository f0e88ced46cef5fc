package scripturepath

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Boniqx/scripture-path/markup"
)

// PlaceholderContent replaces a section whose regeneration came back empty.
const PlaceholderContent = "<p>Failed to regenerate content.</p>"

// StripCodeFences removes markdown code fence lines (``` or ```json, ```html)
// that models wrap around their output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) == 1 {
		// ```json {...} ``` on one line
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ValidationReport lists what ValidateStudy had to repair or ignore.
type ValidationReport struct {
	MissingFields     []string `json:"missingFields,omitempty"`     // top-level string fields that were absent or not strings
	NeedsRegeneration []string `json:"needsRegeneration,omitempty"` // section ids flagged for regeneration
	UnknownSections   []string `json:"unknownSections,omitempty"`   // section keys outside the canonical list
	DroppedQuestions  []string `json:"droppedQuestions,omitempty"`  // quiz items that failed validation
	MarkupWarnings    []string `json:"markupWarnings,omitempty"`    // parser repairs, prefixed with the section id
}

// Clean reports whether nothing was repaired.
func (r *ValidationReport) Clean() bool {
	return len(r.MissingFields) == 0 && len(r.NeedsRegeneration) == 0 &&
		len(r.UnknownSections) == 0 && len(r.DroppedQuestions) == 0 && len(r.MarkupWarnings) == 0
}

// Validator turns raw model output into studies and section content. It does
// no I/O.
type Validator struct {
	NewID func() string
	Now   func() time.Time
	// AutoLink wraps references the model left as plain text.
	AutoLink bool
}

// NewValidator returns a validator with random ids and the wall clock.
func NewValidator() *Validator {
	return &Validator{NewID: uuid.NewString, Now: time.Now}
}

// ValidateStudy checks a full-study response and builds a Study from it.
// Only an unusable top level (not JSON, not an object, no sections object) is
// an error; section-level problems flag the section and are listed in the
// report.
func (v *Validator) ValidateStudy(raw string, req GenerationRequest) (*Study, *ValidationReport, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &top); err != nil {
		return nil, nil, malformed("response is not a JSON object: %w", err)
	}
	if top == nil {
		return nil, nil, malformed("response is not a JSON object")
	}
	sectionsRaw, ok := top["sections"]
	if !ok {
		return nil, nil, malformed("response has no sections")
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(sectionsRaw, &sections); err != nil || sections == nil {
		return nil, nil, malformed("sections is not an object")
	}

	report := &ValidationReport{}
	field := func(name string) string {
		var s string
		if rawField, ok := top[name]; ok && json.Unmarshal(rawField, &s) == nil {
			return strings.TrimSpace(s)
		}
		report.MissingFields = append(report.MissingFields, name)
		return ""
	}

	owner := req.OwnerID
	if owner == "" {
		owner = OwnerGuest
	}
	study := &Study{
		ID: v.newID(),
		Metadata: Metadata{
			OwnerID:    owner,
			Title:      field("title"),
			Theme:      field("theme"),
			Passages:   field("passages"),
			Difficulty: req.Difficulty,
			Length:     req.Length,
			CreatedAt:  v.now().UTC(),
			ImageURL:   DefaultImageURL,
		},
		Sections: NewSectionStore(),
	}
	if study.Metadata.Title == "" {
		study.Metadata.Title = req.Topic
	}

	for _, def := range SectionDefinitions {
		content, ok := v.sectionContent(def.ID, sections[def.ID], report)
		if !ok {
			report.NeedsRegeneration = append(report.NeedsRegeneration, def.ID)
			_ = study.Sections.MarkNeedsRegeneration(def.ID)
			continue
		}
		_ = study.Sections.Replace(def.ID, content)
	}

	for key := range sections {
		if !IsSectionID(key) {
			report.UnknownSections = append(report.UnknownSections, key)
		}
	}
	sort.Strings(report.UnknownSections)

	return study, report, nil
}

// sectionContent returns the stored form of one section value, or false when
// the section has to be regenerated.
func (v *Validator) sectionContent(id string, raw json.RawMessage, report *ValidationReport) (string, bool) {
	if raw == nil {
		return "", false
	}
	if id == SectionTheologicalQuiz {
		qs, dropped, err := DecodeQuiz(raw)
		report.DroppedQuestions = append(report.DroppedQuestions, dropped...)
		if err != nil || len(qs) == 0 {
			return "", false
		}
		return EncodeQuiz(qs), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	content, warnings := v.normalizeMarkup(s)
	for _, w := range warnings {
		report.MarkupWarnings = append(report.MarkupWarnings, fmt.Sprintf("%s: %s", id, w))
	}
	if content == "" {
		return "", false
	}
	return content, true
}

// ValidateSection checks a regeneration response for one section. An empty
// markup response is not an error: it yields PlaceholderContent with
// recovered set. A quiz response must hold at least one valid question.
func (v *Validator) ValidateSection(sectionID, raw string) (string, bool, error) {
	if !IsSectionID(sectionID) {
		return "", false, &UnknownSectionError{SectionID: sectionID}
	}
	text := StripCodeFences(raw)

	if sectionID == SectionTheologicalQuiz {
		qs, _, err := DecodeQuiz(json.RawMessage(text))
		if err != nil {
			return "", false, &GenerationError{Kind: MalformedResponse, Err: err}
		}
		if len(qs) == 0 {
			return "", false, malformed("quiz has no valid questions")
		}
		return EncodeQuiz(qs), false, nil
	}

	content, _ := v.normalizeMarkup(text)
	if content == "" {
		return PlaceholderContent, true, nil
	}
	return content, false, nil
}

// NormalizeMarkup is the path every stored markup section takes: parse,
// optionally autolink, serialize.
func (v *Validator) NormalizeMarkup(s string) string {
	content, _ := v.normalizeMarkup(s)
	return content
}

func (v *Validator) normalizeMarkup(s string) (string, []markup.Warning) {
	s = StripCodeFences(s)
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	doc, warnings := markup.ParseWithWarnings(s)
	if v.AutoLink {
		markup.AutoLink(doc)
	}
	return markup.Serialize(doc), warnings
}

func (v *Validator) newID() string {
	if v.NewID != nil {
		return v.NewID()
	}
	return uuid.NewString()
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
