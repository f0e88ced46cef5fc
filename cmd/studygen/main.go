package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	scripturepath "github.com/Boniqx/scripture-path"
	"github.com/Boniqx/scripture-path/internal/config"
	"github.com/Boniqx/scripture-path/internal/logger"
	"github.com/Boniqx/scripture-path/markup"
	"github.com/Boniqx/scripture-path/scripture"
)

type Globals struct {
	Config  string `help:"YAML config file" type:"path" env:"STUDYGEN_CONFIG"`
	Store   string `help:"Study store: memory|sqlite|redis (overrides config)"`
	As      string `help:"Act as this principal (empty acts as a guest)" name:"as"`
	Verbose bool   `help:"Enable verbose debugging output" short:"v"`
}

type CLI struct {
	Globals `embed:""`

	Generate   GenerateCmd   `cmd:"" help:"Generate a new study"`
	Regenerate RegenerateCmd `cmd:"" help:"Regenerate sections of a study"`
	Edit       EditCmd       `cmd:"" help:"Replace a section with edited content"`
	Show       ShowCmd       `cmd:"" help:"Print a study"`
	List       ListCmd       `cmd:"" aliases:"ls" help:"List studies"`
	Lock       LockCmd       `cmd:"" help:"Lock a study against edits"`
	Publish    PublishCmd    `cmd:"" help:"Make a study public (or private with --private)"`
	Delete     DeleteCmd     `cmd:"" aliases:"rm" help:"Delete a study"`
	Stats      StatsCmd      `cmd:"" help:"Show engagement totals"`
	Play       PlayCmd       `cmd:"" help:"Play a study's quiz interactively"`
	Scan       ScanCmd       `cmd:"" help:"Find scripture references in text"`
	Format     FormatCmd     `cmd:"" help:"Normalize study markup"`
}

// app is what commands share: configuration, logger and a lazily opened
// service.
type app struct {
	ctx   context.Context
	cfg   *config.Config
	log   *logger.Logger
	as    string
	close func() error
}

func (a *app) service(needGenerator bool) (*scripturepath.StudyService, error) {
	if err := a.cfg.Validate(needGenerator); err != nil {
		return nil, err
	}
	repo, closeFn, err := scripturepath.OpenRepository(a.ctx, a.cfg.Store, a.cfg.SQLitePath, a.cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", a.cfg.Store, err)
	}
	a.close = closeFn

	var gen scripturepath.TextGenerator = offlineGenerator{}
	if a.cfg.OpenAIAPIKey != "" {
		gen = scripturepath.NewOpenAIGenerator(scripturepath.OpenAIConfig{
			APIKey:      a.cfg.OpenAIAPIKey,
			BaseURL:     a.cfg.OpenAIBaseURL,
			Model:       a.cfg.OpenAIModel,
			ScribeModel: a.cfg.OpenAIScribeModel,
		}, a.log)
	}
	validator := scripturepath.NewValidator()
	validator.AutoLink = a.cfg.AutoLink
	return scripturepath.NewStudyService(repo, gen, scripturepath.ServiceOptions{
		Validator:             validator,
		Logger:                a.log,
		LogDir:                a.cfg.LogDir,
		RegenerateConcurrency: a.cfg.RegenerateConcurrency,
	}), nil
}

// offlineGenerator serves commands that never reach the model.
type offlineGenerator struct{}

func (offlineGenerator) Generate(context.Context, scripturepath.Prompt) (string, error) {
	return "", errors.New("OPENAI_API_KEY environment variable is required")
}

type GenerateCmd struct {
	Topic      string `arg:"" help:"Study topic or passage"`
	Difficulty string `help:"Introductory|Intermediate|Advanced" default:"Intermediate" enum:"Introductory,Intermediate,Advanced"`
	Length     string `help:"Brief|Standard|Exhaustive" default:"Standard" enum:"Brief,Standard,Exhaustive"`
	Tier       string `help:"seeker|scribe" default:"seeker" enum:"seeker,scribe"`
	Fill       bool   `help:"Regenerate sections the model left out"`
	Output     string `short:"o" help:"Write the study JSON to this file (default: stdout)"`
}

func (c *GenerateCmd) Run(a *app) error {
	svc, err := a.service(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Minute)
	defer cancel()

	study, report, err := svc.CreateStudy(ctx, scripturepath.GenerationRequest{
		Topic:      c.Topic,
		Difficulty: scripturepath.Difficulty(c.Difficulty),
		Length:     scripturepath.Length(c.Length),
		OwnerID:    a.as,
		Tier:       scripturepath.Tier(c.Tier),
	})
	if err != nil {
		return fmt.Errorf("failed to generate study: %w", err)
	}
	for _, id := range report.NeedsRegeneration {
		a.log.Warn("section needs regeneration", "study_id", study.ID, "section", id)
	}

	if c.Fill && len(report.NeedsRegeneration) > 0 {
		results, err := svc.RegenerateSections(ctx, a.as, study.ID, report.NeedsRegeneration, scripturepath.Tier(c.Tier))
		logResults(a.log, results)
		if err != nil {
			a.log.Warn("some sections could not be regenerated", "error", err)
		}
		if study, err = svc.GetStudy(ctx, a.as, study.ID); err != nil {
			return err
		}
	}
	return writeJSON(c.Output, study)
}

type RegenerateCmd struct {
	ID       string   `arg:"" help:"Study id"`
	Sections []string `arg:"" optional:"" help:"Section ids (default: every section flagged for regeneration)"`
	Tier     string   `help:"seeker|scribe" default:"seeker" enum:"seeker,scribe"`
}

func (c *RegenerateCmd) Run(a *app) error {
	svc, err := a.service(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Minute)
	defer cancel()

	results, err := svc.RegenerateSections(ctx, a.as, c.ID, c.Sections, scripturepath.Tier(c.Tier))
	logResults(a.log, results)
	if len(results) == 0 && err == nil {
		fmt.Println("Nothing to regenerate.")
	}
	return err
}

func logResults(log *logger.Logger, results []scripturepath.SectionResult) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			log.Error("section failed", "section", r.Section.SectionID, "error", r.Err)
		case r.Recovered:
			log.Warn("section came back empty; placeholder stored", "section", r.Section.SectionID)
		default:
			log.Info("section regenerated", "section", r.Section.SectionID, "chars", len(r.Section.Content))
		}
	}
}

type EditCmd struct {
	ID      string `arg:"" help:"Study id"`
	Section string `arg:"" help:"Section id"`
	File    string `arg:"" optional:"" help:"File holding the new content (default: stdin)" type:"existingfile"`
}

func (c *EditCmd) Run(a *app) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	content, err := readInput(c.File)
	if err != nil {
		return err
	}
	sec, err := svc.UpdateSection(a.ctx, a.as, c.ID, c.Section, content)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", c.Section, err)
	}
	fmt.Println(sec.Content)
	return nil
}

type ShowCmd struct {
	ID   string `arg:"" help:"Study id"`
	HTML bool   `help:"Render sections as display HTML instead of JSON" name:"html"`
}

func (c *ShowCmd) Run(a *app) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	study, err := svc.GetStudy(a.ctx, a.as, c.ID)
	if err != nil {
		return err
	}
	if !c.HTML {
		return writeJSON("", study)
	}
	fmt.Printf("<h1>%s</h1>\n", html.EscapeString(study.Metadata.Title))
	for _, sec := range study.Sections.View() {
		fmt.Printf("<section id=%q>\n<h2>%s</h2>\n", sec.SectionID, html.EscapeString(sec.Title))
		if sec.SectionID == scripturepath.SectionTheologicalQuiz {
			fmt.Printf("<pre>%s</pre>\n", html.EscapeString(sec.Content))
		} else {
			fmt.Println(markup.Render(markup.Parse(sec.Content)))
		}
		fmt.Println("</section>")
	}
	return nil
}

type ListCmd struct {
	Public bool `help:"List the public catalogue instead of your studies"`
	Limit  int  `help:"Maximum number of public studies (0 for all)" default:"0"`
}

func (c *ListCmd) Run(a *app) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	var studies []*scripturepath.Study
	if c.Public {
		studies, err = svc.ListPublic(a.ctx, c.Limit)
	} else {
		owner := a.as
		if owner == "" {
			owner = scripturepath.OwnerGuest
		}
		studies, err = svc.ListMine(a.ctx, owner)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCREATED\tPUBLIC\tLOCKED\tSCORE\tPENDING")
	for _, s := range studies {
		m := s.Metadata
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%d\t%d\n", s.ID, m.Title, m.CreatedAt.Local().Format("2006-01-02 15:04"),
			m.IsPublic, m.IsLocked, m.Stats.Score(), len(s.Sections.PendingRegeneration()))
	}
	return w.Flush()
}

type LockCmd struct {
	ID string `arg:"" help:"Study id"`
}

func (c *LockCmd) Run(a *app) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	if _, err := svc.Lock(a.ctx, a.as, c.ID); err != nil {
		return err
	}
	fmt.Printf("Study %s locked.\n", c.ID)
	return nil
}

type PublishCmd struct {
	ID      string `arg:"" help:"Study id"`
	Private bool   `help:"Make the study private again"`
}

func (c *PublishCmd) Run(a *app) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	study, err := svc.SetVisibility(a.ctx, a.as, c.ID, !c.Private)
	if err != nil {
		return err
	}
	state := "private"
	if study.Metadata.IsPublic {
		state = "public"
	}
	fmt.Printf("Study %s is now %s.\n", c.ID, state)
	return nil
}

type DeleteCmd struct {
	ID string `arg:"" help:"Study id"`
}

func (c *DeleteCmd) Run(a *app) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	if err := svc.Delete(a.ctx, a.as, c.ID); err != nil {
		return err
	}
	fmt.Printf("Study %s deleted.\n", c.ID)
	return nil
}

type StatsCmd struct{}

func (c *StatsCmd) Run(a *app) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	totals, err := svc.Totals(a.ctx, a.as)
	if err != nil {
		return err
	}
	return writeJSON("", totals)
}

type ScanCmd struct {
	Text []string `arg:"" optional:"" help:"Text to scan (default: stdin)"`
}

func (c *ScanCmd) Run() error {
	text := strings.Join(c.Text, " ")
	if text == "" {
		var err error
		if text, err = readInput(""); err != nil {
			return err
		}
	}
	for _, m := range scripture.Scan(text) {
		fmt.Printf("%s\t%s\t%s\n", text[m.Start:m.End], m.Reference, markup.PassageURL(m.Reference))
	}
	return nil
}

type FormatCmd struct {
	File     string `arg:"" optional:"" help:"Markup file (default: stdin)" type:"existingfile"`
	AutoLink bool   `help:"Wrap plain-text references in verse tags"`
}

func (c *FormatCmd) Run(a *app) error {
	input, err := readInput(c.File)
	if err != nil {
		return err
	}
	doc, warnings := markup.ParseWithWarnings(input)
	for _, w := range warnings {
		a.log.Warn("markup repaired", "warning", w.String())
	}
	if c.AutoLink {
		n := markup.AutoLink(doc)
		a.log.Debug("autolinked references", "count", n)
	}
	fmt.Println(markup.Serialize(doc))
	return nil
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func writeJSON(path string, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	if path == "" {
		fmt.Println(string(output))
		return nil
	}
	if err := os.WriteFile(path, output, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Study saved to: %s\n", path)
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("studygen"),
		kong.Description("Generate, edit and share inductive Bible studies."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cli.Store != "" {
		cfg.Store = cli.Store
	}
	mode := cfg.LogMode
	if cli.Verbose {
		mode = "dev"
	}
	log, err := logger.New(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	scripturepath.SetLogger(log)

	a := &app{ctx: context.Background(), cfg: cfg, log: log, as: cli.As}
	err = kctx.Run(a)
	if a.close != nil {
		_ = a.close()
	}
	kctx.FatalIfErrorf(err)
}
