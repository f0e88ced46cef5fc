package scripturepath

import (
	"fmt"
	"strings"

	"github.com/Boniqx/scripture-path/markup"
)

const scholarSystemPrompt = "You are an expert biblical scholar and theologian specializing in the Inductive Bible Study Method."

// sectionGuidance tells the model what each section should contain.
var sectionGuidance = map[string]string{
	SectionThemeSummary:             "the central message of the passage and why it matters",
	SectionHistoricalContext:        "author, audience, date, setting and the cultural customs behind the text",
	SectionOriginalLanguageAnalysis: "key Hebrew or Greek terms with transliteration and meaning",
	SectionLiteraryStructure:        "genre, outline and literary devices of the passage",
	SectionVerseByVerse:             "verse-by-verse exegesis of the primary passage",
	SectionCrossReferences:          "related passages elsewhere in scripture and how they connect",
	SectionTheologicalSynthesis:     "the doctrines the passage teaches and how they fit the whole of scripture",
	SectionPracticalApplication:     "concrete ways to live the passage out today",
	SectionDevotionalReflection:     "a short personal meditation",
	SectionPrayerGuide:              "guided prayer points drawn from the passage",
	SectionFurtherStudy:             "open questions for personal or group study",
	SectionTheologicalQuiz:          "a quiz testing understanding of the study",
}

func writeFormattingRules(sb *strings.Builder) {
	sb.WriteString("Formatting rules:\n")
	sb.WriteString("1. Do NOT use Markdown. Use HTML tags only: <h3> for headers, <p> for paragraphs, <ul>/<ol> and <li> for lists.\n")
	sb.WriteString(fmt.Sprintf("2. Wrap EVERY Bible reference (e.g. \"John 3:16\", \"Romans 8:1\", \"Gen 1:1\") in <%s %s=\"John 3:16\">John 3:16</%s>.\n",
		markup.TagVerse, markup.AttrReference, markup.TagVerse))
	sb.WriteString(fmt.Sprintf("3. Example: As written in <%s %s=\"Genesis 1:1\">Genesis 1:1</%s>, God created...\n",
		markup.TagVerse, markup.AttrReference, markup.TagVerse))
	sb.WriteString("4. Do not miss any references. Every verse mentioned must be wrapped.\n\n")
}

// buildStudyPrompt asks for a full study as one JSON object keyed by the
// canonical section ids.
func buildStudyPrompt(req GenerationRequest) Prompt {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Create a structured, verse-by-verse inductive study on the topic: %q.\n\n", req.Topic))
	if req.Difficulty != "" {
		sb.WriteString(fmt.Sprintf("Target audience: %s (adjust tone and depth accordingly).\n", req.Difficulty))
	}
	if req.Length != "" {
		sb.WriteString(fmt.Sprintf("Length: %s (adjust verbosity and number of cross-references).\n", req.Length))
	}
	sb.WriteString(fmt.Sprintf("\nThe study MUST have exactly these %d sections, each formatted in HTML:\n", len(SectionDefinitions)))
	for _, def := range SectionDefinitions {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", def.ID, def.Title, sectionGuidance[def.ID]))
	}
	sb.WriteString("\n")
	writeFormattingRules(&sb)

	sb.WriteString("Return ONLY a JSON object of this shape:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"title\": \"a creative title for the study\",\n")
	sb.WriteString("  \"theme\": \"a 2-5 word thematic summary\",\n")
	sb.WriteString("  \"passages\": \"the primary scripture references used, e.g. John 1:1-14\",\n")
	sb.WriteString("  \"sections\": {\n")
	for i, def := range SectionDefinitions {
		value := "\"HTML content...\""
		if def.ID == SectionTheologicalQuiz {
			value = "[{\"q\": \"question\", \"o\": [\"four\", \"options\", \"in\", \"total\"], \"a\": 0}]"
		}
		sep := ","
		if i == len(SectionDefinitions)-1 {
			sep = ""
		}
		sb.WriteString(fmt.Sprintf("    %q: %s%s\n", def.ID, value, sep))
	}
	sb.WriteString("  }\n")
	sb.WriteString("}\n")
	sb.WriteString(fmt.Sprintf("%s must be an array of 3 questions: q is the question, o exactly %d options, a the 0-based index of the correct option.\n",
		SectionTheologicalQuiz, QuizOptionCount))

	return Prompt{
		Name:   "study",
		System: scholarSystemPrompt,
		User:   sb.String(),
		Format: FormatJSON,
		Tier:   req.Tier,
	}
}

// buildSectionPrompt asks for fresh content for one section. Markup sections
// come back as raw HTML; the quiz comes back through the quiz tool.
func buildSectionPrompt(rr RegenerationRequest) Prompt {
	var sb strings.Builder

	title := rr.SectionID
	if i, ok := sectionIndex(rr.SectionID); ok {
		title = SectionDefinitions[i].Title
	}
	sb.WriteString(fmt.Sprintf("REWRITE and DEEPEN the section %q (%s) of the study %q (theme: %s, passage: %s).\n",
		rr.SectionID, title, rr.Context.Title, rr.Context.Theme, rr.Context.Passages))
	if g := sectionGuidance[rr.SectionID]; g != "" {
		sb.WriteString(fmt.Sprintf("The section covers %s.\n", g))
	}
	sb.WriteString("Provide fresh, profound theological insight with clarity and depth.\n")
	sb.WriteString("Keep the output roughly the same length as the current content.\n\n")

	p := Prompt{
		Name:   "section " + rr.SectionID,
		System: scholarSystemPrompt,
		Tier:   rr.Tier,
	}
	if rr.SectionID == SectionTheologicalQuiz {
		sb.WriteString(fmt.Sprintf("Write 3 multiple choice questions, each with exactly %d options and one correct answer.\n", QuizOptionCount))
		sb.WriteString("Use the submit_quiz tool to return them.\n")
		p.Format = FormatQuiz
	} else {
		writeFormattingRules(&sb)
		sb.WriteString("Do not return a JSON object. Return only the raw HTML for this section.\n")
		p.Format = FormatText
	}
	if rr.CurrentContent != "" {
		sb.WriteString("\nCurrent content (improve upon this):\n")
		sb.WriteString(rr.CurrentContent)
		sb.WriteString("\n")
	}
	p.User = sb.String()
	return p
}
