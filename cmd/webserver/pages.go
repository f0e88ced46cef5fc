package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	scripturepath "github.com/Boniqx/scripture-path"
	"github.com/Boniqx/scripture-path/markup"
)

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	if err := s.templates[name].ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.Error("template error", "template", name, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

func (s *Server) pageError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusNotFound || status == http.StatusForbidden {
		http.NotFound(w, r)
		return
	}
	s.log.Error("page failed", "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(status), status)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, _ string) {
	studies, err := s.svc.ListPublic(r.Context(), 50)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	totals, err := s.svc.Totals(r.Context(), "")
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "home", map[string]interface{}{
		"Studies": studies,
		"Totals":  totals,
	})
}

// maxPlayers keeps the game small enough for a cookie.
const maxPlayers = 4

type sectionView struct {
	ID                string
	Title             string
	HTML              template.HTML
	NeedsRegeneration bool
	IsQuiz            bool
	Questions         int
}

func sectionViews(study *scripturepath.Study) []sectionView {
	var views []sectionView
	for _, sec := range study.Sections.View() {
		v := sectionView{ID: sec.SectionID, Title: sec.Title, NeedsRegeneration: sec.NeedsRegeneration}
		if sec.SectionID == scripturepath.SectionTheologicalQuiz {
			v.IsQuiz = true
			if qs, err := scripturepath.ParseQuiz(sec.Content); err == nil {
				v.Questions = len(qs)
			}
		} else if !sec.NeedsRegeneration {
			// Render escapes all text and only emits its own tags.
			v.HTML = template.HTML(markup.Render(markup.Parse(sec.Content)))
		}
		views = append(views, v)
	}
	return views
}

// handleStudyPage shows a study read-only and counts one view per session.
func (s *Server) handleStudyPage(w http.ResponseWriter, r *http.Request, principal string) {
	id := r.PathValue("id")
	study, err := s.svc.GetStudy(r.Context(), principal, id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	if s.markViewed(w, r, id) {
		if stats, err := s.svc.RecordView(r.Context(), id); err == nil {
			study.Metadata.Stats = stats
		}
	}

	s.render(w, "study", map[string]interface{}{
		"Study":    study,
		"Sections": sectionViews(study),
		"CanEdit":  scripturepath.CanEdit(study, principal),
	})
}

// markViewed records id in the session and reports whether this is the
// session's first view of it. A session that cannot be saved counts nothing.
func (s *Server) markViewed(w http.ResponseWriter, r *http.Request, id string) bool {
	session, _ := s.store.Get(r, sessionName)
	viewed, _ := session.Values["viewed"].([]string)
	key := viewKey(id)
	for _, v := range viewed {
		if v == key {
			return false
		}
	}
	session.Values["viewed"] = appendBounded(viewed, key, maxViewed)
	if err := session.Save(r, w); err != nil {
		s.log.Warn("session save error; view not counted", "study_id", id, "error", err)
		return false
	}
	return true
}

func (s *Server) loadQuiz(ctx context.Context, principal, id string) (*scripturepath.Study, []scripturepath.QuizQuestion, error) {
	study, err := s.svc.GetStudy(ctx, principal, id)
	if err != nil {
		return nil, nil, err
	}
	sec, err := study.Sections.Get(scripturepath.SectionTheologicalQuiz)
	if err != nil {
		return nil, nil, err
	}
	questions, err := scripturepath.ParseQuiz(sec.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read quiz: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, errors.New("quiz has no questions")
	}
	return study, questions, nil
}

func (s *Server) gameFor(r *http.Request, studyID string) (GameSession, bool) {
	session, _ := s.store.Get(r, sessionName)
	game, ok := session.Values["game"].(GameSession)
	if !ok || game.StudyID != studyID {
		return GameSession{}, false
	}
	return game, true
}

func (s *Server) saveGame(w http.ResponseWriter, r *http.Request, game GameSession) {
	session, _ := s.store.Get(r, sessionName)
	session.Values["game"] = game
	if err := session.Save(r, w); err != nil {
		s.log.Warn("session save error", "error", err)
	}
}

func (s *Server) handleQuizSetup(w http.ResponseWriter, r *http.Request, principal string) {
	id := r.PathValue("id")
	study, questions, err := s.loadQuiz(r.Context(), principal, id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		s.render(w, "quiz_setup", map[string]interface{}{
			"Study":       study,
			"Questions":   len(questions),
			"PlayerSlots": playerSlots(),
		})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	numPlayers, err := strconv.Atoi(r.FormValue("num_players"))
	if err != nil || numPlayers <= 0 {
		numPlayers = 1
	}
	if numPlayers > maxPlayers {
		numPlayers = maxPlayers
	}
	var players []Player
	for i := 1; i <= numPlayers; i++ {
		name := r.FormValue(fmt.Sprintf("player_%d", i))
		if name == "" {
			name = fmt.Sprintf("Player %d", i)
		}
		players = append(players, Player{Name: name})
	}

	game := GameSession{
		StudyID: id,
		Players: players,
		Answers: make([][]int, len(questions)),
		Scores:  make([]int, len(players)),
	}
	// -1 marks a question not answered yet
	for i := range game.Answers {
		game.Answers[i] = make([]int, len(players))
		for j := range game.Answers[i] {
			game.Answers[i][j] = -1
		}
	}
	s.saveGame(w, r, game)

	http.Redirect(w, r, fmt.Sprintf("/study/%s/quiz/1", id), http.StatusSeeOther)
}

func playerSlots() []int {
	slots := make([]int, maxPlayers)
	for i := range slots {
		slots[i] = i + 1
	}
	return slots
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request, principal string) {
	id := r.PathValue("id")
	questionNum, err := strconv.Atoi(r.PathValue("num"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	game, ok := s.gameFor(r, id)
	if !ok {
		http.Redirect(w, r, "/study/"+id+"/quiz", http.StatusSeeOther)
		return
	}
	study, questions, err := s.loadQuiz(r.Context(), principal, id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	// the quiz may have been regenerated since the game started
	if len(questions) != len(game.Answers) {
		http.Redirect(w, r, "/study/"+id+"/quiz", http.StatusSeeOther)
		return
	}
	if questionNum < 1 || questionNum > len(questions) {
		http.Redirect(w, r, fmt.Sprintf("/study/%s/quiz/results", id), http.StatusSeeOther)
		return
	}
	question := questions[questionNum-1]

	if r.Method == http.MethodGet {
		s.render(w, "question", map[string]interface{}{
			"Study":       study,
			"QuestionNum": questionNum,
			"Total":       len(questions),
			"Question":    question.Question,
			"Options":     question.Options,
			"Players":     game.Players,
		})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	answers := make([]int, len(game.Players))
	for i := range game.Players {
		answerStr := r.FormValue(fmt.Sprintf("player_%d", i))
		if answerStr == "" {
			http.Error(w, "All players must answer", http.StatusBadRequest)
			return
		}
		answer, err := strconv.Atoi(answerStr)
		if err != nil || answer < 0 || answer >= scripturepath.QuizOptionCount {
			http.Error(w, "Invalid answer", http.StatusBadRequest)
			return
		}
		answers[i] = answer
	}
	game.Answers[questionNum-1] = answers
	game.Scores = scoreGame(game, questions)
	for i := range game.Players {
		game.Players[i].Score = game.Scores[i]
	}

	if questionNum >= len(questions) {
		game.Completed = true
		s.saveGame(w, r, game)
		http.Redirect(w, r, fmt.Sprintf("/study/%s/quiz/results", id), http.StatusSeeOther)
		return
	}
	s.saveGame(w, r, game)
	http.Redirect(w, r, fmt.Sprintf("/study/%s/quiz/%d", id, questionNum+1), http.StatusSeeOther)
}

// scoreGame recounts every player's score so that answering a question twice
// (back button) cannot count it twice.
func scoreGame(game GameSession, questions []scripturepath.QuizQuestion) []int {
	scores := make([]int, len(game.Players))
	for qi, answers := range game.Answers {
		if qi >= len(questions) {
			break
		}
		for pi, answer := range answers {
			if pi < len(scores) && answer == questions[qi].CorrectAnswerIndex {
				scores[pi]++
			}
		}
	}
	return scores
}

type resultQuestion struct {
	QuestionNum   int
	Text          string
	Options       []string
	CorrectAnswer int
	Explanation   string
	Answers       []int
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request, principal string) {
	id := r.PathValue("id")
	game, ok := s.gameFor(r, id)
	if !ok {
		http.Redirect(w, r, "/study/"+id+"/quiz", http.StatusSeeOther)
		return
	}
	study, questions, err := s.loadQuiz(r.Context(), principal, id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	var results []resultQuestion
	for i, q := range questions {
		rq := resultQuestion{
			QuestionNum:   i + 1,
			Text:          q.Question,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswerIndex,
			Explanation:   q.Explanation,
		}
		if i < len(game.Answers) {
			rq.Answers = game.Answers[i]
		}
		results = append(results, rq)
	}

	s.render(w, "results", map[string]interface{}{
		"Study":     study,
		"Game":      game,
		"Total":     len(questions),
		"Questions": results,
	})
}
