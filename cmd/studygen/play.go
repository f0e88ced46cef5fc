package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	scripturepath "github.com/Boniqx/scripture-path"
)

type PlayCmd struct {
	ID      string `arg:"" help:"Study id"`
	Players int    `help:"Number of players" default:"1"`
}

func (c *PlayCmd) Run(a *app) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	study, err := svc.GetStudy(a.ctx, a.as, c.ID)
	if err != nil {
		return err
	}
	sec, err := study.Sections.Get(scripturepath.SectionTheologicalQuiz)
	if err != nil {
		return err
	}
	if sec.NeedsRegeneration {
		return errors.New("the quiz of this study needs regeneration first")
	}
	questions, err := scripturepath.ParseQuiz(sec.Content)
	if err != nil {
		return fmt.Errorf("failed to read quiz: %w", err)
	}
	if len(questions) == 0 {
		return errors.New("the quiz has no questions")
	}
	if c.Players < 1 {
		c.Players = 1
	}
	playQuiz(os.Stdin, os.Stdout, study.Metadata.Title, questions, c.Players)
	return nil
}

// Player represents a player in the multiplayer quiz
type Player struct {
	Name    string
	Score   int
	Answers []int // Track answers for each question (0-3 for A-D)
}

func playQuiz(in io.Reader, out io.Writer, title string, questions []scripturepath.QuizQuestion, numPlayers int) []*Player {
	fmt.Fprintf(out, "🎯 Starting quiz on: %s\n", title)
	fmt.Fprintf(out, "📝 Questions: %d\n", len(questions))
	fmt.Fprintf(out, "👥 Players: %d\n\n", numPlayers)

	players := make([]*Player, numPlayers)
	scanner := bufio.NewScanner(in)

	for i := 0; i < numPlayers; i++ {
		fmt.Fprintf(out, "Enter name for Player %d: ", i+1)
		scanner.Scan()
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			name = fmt.Sprintf("Player %d", i+1)
		}
		players[i] = &Player{
			Name:    name,
			Answers: make([]int, 0, len(questions)),
		}
	}
	fmt.Fprintln(out)

	letters := []string{"A", "B", "C", "D"}
	for qi, question := range questions {
		fmt.Fprintf(out, "Question %d/%d:\n", qi+1, len(questions))
		fmt.Fprintf(out, "%s\n\n", question.Question)
		for i, option := range question.Options {
			fmt.Fprintf(out, "%s) %s\n", letters[i], option)
		}
		fmt.Fprintln(out)

		for _, player := range players {
			answer := -1
			for answer < 0 {
				fmt.Fprintf(out, "%s's answer (A/B/C/D): ", player.Name)
				if !scanner.Scan() {
					// input closed; count as unanswered
					answer = len(letters)
					break
				}
				reply := strings.ToUpper(strings.TrimSpace(scanner.Text()))
				if len(reply) == 1 {
					answer = strings.Index("ABCD", reply)
				}
				if answer < 0 {
					fmt.Fprintln(out, "Please enter A, B, C, or D")
				}
			}
			player.Answers = append(player.Answers, answer)
		}

		fmt.Fprintln(out)
		correct := question.CorrectAnswerIndex
		for _, player := range players {
			if player.Answers[qi] == correct {
				fmt.Fprintf(out, "✅ %s: Correct!\n", player.Name)
				player.Score++
			} else {
				fmt.Fprintf(out, "❌ %s: Incorrect. The correct answer is %s) %s\n",
					player.Name, letters[correct], question.Options[correct])
			}
		}
		if question.Explanation != "" {
			fmt.Fprintf(out, "💡 Explanation: %s\n", question.Explanation)
		}

		fmt.Fprintln(out, "\n📊 Current Scores:")
		for _, player := range players {
			fmt.Fprintf(out, "  %s: %d/%d (%.1f%%)\n", player.Name, player.Score, qi+1, percent(player.Score, qi+1))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, strings.Repeat("─", 50))
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "🎉 Quiz completed!")
	fmt.Fprintln(out, "\n🏆 Final Results:")

	ranked := make([]*Player, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	medals := []string{"🥇", "🥈", "🥉"}
	total := len(questions)
	for i, player := range ranked {
		prefix := "  "
		if i < len(medals) && i < numPlayers {
			prefix = medals[i]
		}
		fmt.Fprintf(out, "%s %s: %d/%d (%.1f%%)\n", prefix, player.Name, player.Score, total, percent(player.Score, total))
	}

	best := ranked[0]
	if numPlayers > 1 {
		fmt.Fprintf(out, "\n🎊 Winner: %s with %d/%d correct answers (%.1f%%)\n",
			best.Name, best.Score, total, percent(best.Score, total))
	}
	switch p := percent(best.Score, total); {
	case p >= 80:
		fmt.Fprintln(out, "🌟 Outstanding performance!")
	case p >= 60:
		fmt.Fprintln(out, "👍 Well done!")
	default:
		fmt.Fprintln(out, "📚 Keep studying!")
	}
	return ranked
}

func percent(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}
