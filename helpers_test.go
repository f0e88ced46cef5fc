package scripturepath

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testValidator() *Validator {
	n := 0
	return &Validator{
		NewID: func() string {
			n++
			return fmt.Sprintf("study-%d", n)
		},
		Now: func() time.Time { return testNow },
	}
}

// studyResponse builds a generation response with every canonical section
// except those listed in omit.
func studyResponse(t *testing.T, omit ...string) string {
	t.Helper()
	skip := make(map[string]bool)
	for _, id := range omit {
		skip[id] = true
	}
	sections := make(map[string]interface{})
	for _, def := range SectionDefinitions {
		if skip[def.ID] {
			continue
		}
		if def.ID == SectionTheologicalQuiz {
			sections[def.ID] = []map[string]interface{}{
				{"q": "Who wrote Romans?", "o": []string{"Peter", "Paul", "John", "James"}, "a": 1},
				{"q": "How many gospels?", "o": []string{"1", "2", "3", "4"}, "a": 3},
			}
			continue
		}
		sections[def.ID] = fmt.Sprintf(`<h3>%s</h3><p>See <bible-verse reference="John 3:16">John 3:16</bible-verse>.</p>`, def.Title)
	}
	data, err := json.Marshal(map[string]interface{}{
		"title":    "The Heart of the Father",
		"theme":    "Grace",
		"passages": "Luke 15:11-32",
		"sections": sections,
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(data)
}

// fakeGenerator answers full-study prompts with study and section prompts
// with sectionContent. A non-nil gate blocks each call until it is closed.
type fakeGenerator struct {
	mu      sync.Mutex
	study   string
	section func(p Prompt) (string, error)
	err     error
	calls   []Prompt
	gate    chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	if p.Format == FormatJSON {
		return f.study, nil
	}
	if f.section != nil {
		return f.section(p)
	}
	return "<p>fresh</p>", nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
