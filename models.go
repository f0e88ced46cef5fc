package scripturepath

import (
	"encoding/json"
	"strings"
	"time"
)

// Difficulty is the target audience of a study
type Difficulty string

const (
	DifficultyIntroductory Difficulty = "Introductory"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// Length controls verbosity and the number of cross-references
type Length string

const (
	LengthBrief      Length = "Brief"
	LengthStandard   Length = "Standard"
	LengthExhaustive Length = "Exhaustive"
)

// Tier is the caller's subscription level; it only selects the model
type Tier string

const (
	TierSeeker Tier = "seeker"
	TierScribe Tier = "scribe"
)

// OwnerGuest marks a study created before its author signed in.
const OwnerGuest = "guest_temporary"

// DefaultImageURL is the cover image given to new studies.
const DefaultImageURL = "https://images.unsplash.com/photo-1504052434569-70ad5836ab65?auto=format&fit=crop&q=80&w=800"

// Section identifiers, in canonical order.
const (
	SectionThemeSummary             = "theme_summary"
	SectionHistoricalContext        = "historical_context"
	SectionOriginalLanguageAnalysis = "original_language_analysis"
	SectionLiteraryStructure        = "literary_structure"
	SectionVerseByVerse             = "verse_by_verse"
	SectionCrossReferences          = "cross_references"
	SectionTheologicalSynthesis     = "theological_synthesis"
	SectionPracticalApplication     = "practical_application"
	SectionDevotionalReflection     = "devotional_reflection"
	SectionPrayerGuide              = "prayer_guide"
	SectionFurtherStudy             = "further_study"
	SectionTheologicalQuiz          = "theological_quiz"
)

// SectionDefinition pairs a section id with its display title
type SectionDefinition struct {
	ID    string
	Title string
}

// SectionDefinitions is the fixed, ordered section list of every study.
var SectionDefinitions = []SectionDefinition{
	{SectionThemeSummary, "Thematic Overview"},
	{SectionHistoricalContext, "Historical & Cultural Context"},
	{SectionOriginalLanguageAnalysis, "Original Language Nuances"},
	{SectionLiteraryStructure, "Literary Structure"},
	{SectionVerseByVerse, "Verse-by-Verse Exegesis"},
	{SectionCrossReferences, "Biblical Cross-References"},
	{SectionTheologicalSynthesis, "Theological Synthesis"},
	{SectionPracticalApplication, "Modern Application"},
	{SectionDevotionalReflection, "Devotional Reflection"},
	{SectionPrayerGuide, "Guided Prayer"},
	{SectionFurtherStudy, "Further Study Questions"},
	{SectionTheologicalQuiz, "Theological Quiz"},
}

func sectionIndex(id string) (int, bool) {
	for i, def := range SectionDefinitions {
		if def.ID == id {
			return i, true
		}
	}
	return -1, false
}

// IsSectionID reports whether id is one of the canonical section ids
func IsSectionID(id string) bool {
	_, ok := sectionIndex(id)
	return ok
}

// titleFromID turns "cross_references" into "Cross References".
func titleFromID(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Section is one titled content block of a study
type Section struct {
	SectionID         string `json:"sectionId"`
	Title             string `json:"title"`
	Content           string `json:"content"`
	NeedsRegeneration bool   `json:"needsRegeneration,omitempty"`
}

// Stats holds the engagement counters of a study
type Stats struct {
	Views  int `json:"views"`
	Likes  int `json:"likes"`
	Shares int `json:"shares"`
	Clones int `json:"clones"`
}

// Score ranks public studies.
func (s Stats) Score() int {
	return s.Views + 2*s.Likes + 3*s.Shares
}

// Metadata describes a study apart from its sections
type Metadata struct {
	OwnerID    string
	Title      string
	Theme      string
	Passages   string
	Difficulty Difficulty
	Length     Length
	CreatedAt  time.Time
	IsPublic   bool
	IsLocked   bool
	ImageURL   string
	Stats      Stats
}

// metadataJSON is the stored shape; createdAt is Unix milliseconds.
type metadataJSON struct {
	OwnerID    string     `json:"ownerId"`
	Title      string     `json:"title"`
	Theme      string     `json:"theme"`
	Passages   string     `json:"passages"`
	Difficulty Difficulty `json:"difficulty"`
	Length     Length     `json:"length"`
	CreatedAt  int64      `json:"createdAt"`
	IsPublic   bool       `json:"isPublic"`
	IsLocked   bool       `json:"isLocked"`
	ImageURL   string     `json:"imageUrl,omitempty"`
	Stats      Stats      `json:"stats"`
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(metadataJSON{
		OwnerID:    m.OwnerID,
		Title:      m.Title,
		Theme:      m.Theme,
		Passages:   m.Passages,
		Difficulty: m.Difficulty,
		Length:     m.Length,
		CreatedAt:  m.CreatedAt.UnixMilli(),
		IsPublic:   m.IsPublic,
		IsLocked:   m.IsLocked,
		ImageURL:   m.ImageURL,
		Stats:      m.Stats,
	})
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var aux metadataJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Metadata{
		OwnerID:    aux.OwnerID,
		Title:      aux.Title,
		Theme:      aux.Theme,
		Passages:   aux.Passages,
		Difficulty: aux.Difficulty,
		Length:     aux.Length,
		CreatedAt:  time.UnixMilli(aux.CreatedAt).UTC(),
		IsPublic:   aux.IsPublic,
		IsLocked:   aux.IsLocked,
		ImageURL:   aux.ImageURL,
		Stats:      aux.Stats,
	}
	return nil
}

// Study is a generated Bible study
type Study struct {
	ID       string
	Metadata Metadata
	Sections *SectionStore
}

type studyJSON struct {
	ID       string    `json:"id"`
	Metadata Metadata  `json:"metadata"`
	Sections []Section `json:"sections"`
}

func (s *Study) MarshalJSON() ([]byte, error) {
	var sections []Section
	if s.Sections != nil {
		sections = s.Sections.View()
	}
	return json.Marshal(studyJSON{ID: s.ID, Metadata: s.Metadata, Sections: sections})
}

// UnmarshalJSON accepts every stored shape NormalizeStudy does.
func (s *Study) UnmarshalJSON(data []byte) error {
	st, err := NormalizeStudy(data)
	if err != nil {
		return err
	}
	*s = *st
	return nil
}

// Copy returns a deep copy sharing no mutable state with s.
func (s *Study) Copy() *Study {
	c := &Study{ID: s.ID, Metadata: s.Metadata}
	if s.Sections != nil {
		c.Sections = s.Sections.Clone()
	}
	return c
}

// Context is what regeneration prompts need to know about a study.
func (s *Study) Context() StudyContext {
	return StudyContext{Title: s.Metadata.Title, Theme: s.Metadata.Theme, Passages: s.Metadata.Passages}
}

// StudyContext identifies a study to the section regeneration prompt
type StudyContext struct {
	Title    string `json:"title"`
	Theme    string `json:"theme"`
	Passages string `json:"passages"`
}

// GenerationRequest represents a request to generate a study
type GenerationRequest struct {
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Length     Length     `json:"length,omitempty"`
	OwnerID    string     `json:"ownerId,omitempty"`
	Tier       Tier       `json:"tier,omitempty"`
}

// RegenerationRequest asks for fresh content for one section
type RegenerationRequest struct {
	SectionID      string
	Context        StudyContext
	CurrentContent string
	Tier           Tier
}
