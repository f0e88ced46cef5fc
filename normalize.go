package scripturepath

import (
	"encoding/json"
	"errors"
	"fmt"
)

// storedStudy covers both stored shapes: the current one (id, metadata,
// sections list) and the older one whose id lives in metadata and whose
// sections are a content map keyed by section id.
type storedStudy struct {
	ID       string                     `json:"id"`
	Metadata json.RawMessage            `json:"metadata"`
	Sections []Section                  `json:"sections"`
	Content  map[string]json.RawMessage `json:"content"`
}

// NormalizeStudy decodes a stored study in either shape. Sections absent
// from the stored data come back flagged for regeneration; unknown section
// ids are dropped.
func NormalizeStudy(raw []byte) (*Study, error) {
	var st storedStudy
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode stored study: %w", err)
	}
	if st.Metadata == nil {
		return nil, errors.New("stored study has no metadata")
	}

	var meta Metadata
	if err := json.Unmarshal(st.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode study metadata: %w", err)
	}
	if st.ID == "" {
		var legacy struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(st.Metadata, &legacy)
		st.ID = legacy.ID
	}
	if st.ID == "" {
		return nil, errors.New("stored study has no id")
	}
	if meta.OwnerID == "" || meta.OwnerID == "guest" {
		meta.OwnerID = OwnerGuest
	}
	if meta.ImageURL == "" {
		meta.ImageURL = DefaultImageURL
	}

	store := NewSectionStore()
	seen := make(map[string]bool)
	if st.Sections != nil {
		for _, sec := range st.Sections {
			if !IsSectionID(sec.SectionID) {
				continue
			}
			store.set(sec)
			seen[sec.SectionID] = true
		}
	} else {
		for id, value := range st.Content {
			if !IsSectionID(id) {
				continue
			}
			content, ok := legacyContent(id, value)
			if !ok {
				continue
			}
			_ = store.Replace(id, content)
			seen[id] = true
		}
	}
	for _, def := range SectionDefinitions {
		if !seen[def.ID] {
			_ = store.MarkNeedsRegeneration(def.ID)
		}
	}
	if meta.IsLocked {
		store.Freeze()
	}

	return &Study{ID: st.ID, Metadata: meta, Sections: store}, nil
}

func legacyContent(id string, value json.RawMessage) (string, bool) {
	if id == SectionTheologicalQuiz {
		qs, _, err := DecodeQuiz(value)
		if err != nil || len(qs) == 0 {
			return "", false
		}
		return EncodeQuiz(qs), true
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}
