package main

import (
	"context"
	"embed"
	"encoding/gob"
	"errors"
	"flag"
	"hash/fnv"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	scripturepath "github.com/Boniqx/scripture-path"
	"github.com/Boniqx/scripture-path/internal/config"
	"github.com/Boniqx/scripture-path/internal/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionName = "scripture-session"

// The cookie store caps a session at 4096 bytes, so the id lists kept in it
// are bounded and evict their oldest entries.
const (
	maxViewed       = 100
	maxGuestStudies = 20
)

type Server struct {
	svc        *scripturepath.StudyService
	store      sessions.Store
	templates  map[string]*template.Template
	log        *logger.Logger
	authHeader string
}

// GameSession is a quiz played on one device, kept in the cookie session.
type GameSession struct {
	StudyID   string
	Players   []Player
	Answers   [][]int // [question][player] -> answer
	Scores    []int
	Completed bool
}

type Player struct {
	Name  string
	Score int
}

func init() {
	gob.Register(GameSession{})
	gob.Register(Player{})
}

func loadTemplates() map[string]*template.Template {
	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"letter": func(i int) string {
			if i < 0 || i > 3 {
				return "?"
			}
			return string(rune('A' + i))
		},
		"percent": func(score, total int) float64 {
			if total == 0 {
				return 0
			}
			return float64(score) / float64(total) * 100
		},
	}

	templates := make(map[string]*template.Template)
	for _, name := range []string{"home", "study", "quiz_setup", "question", "results"} {
		templates[name] = template.Must(template.New(name).Funcs(funcMap).
			ParseFS(templateFS, "templates/base.html", "templates/"+name+".html"))
	}
	return templates
}

// NewServer wires handlers around a study service. An empty session key gets
// a random one, so sessions do not survive restarts.
func NewServer(svc *scripturepath.StudyService, sessionKey []byte, authHeader string, log *logger.Logger) *Server {
	if len(sessionKey) == 0 {
		sessionKey = securecookie.GenerateRandomKey(32)
	}
	store := sessions.NewCookieStore(sessionKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		svc:        svc,
		store:      store,
		templates:  loadTemplates(),
		log:        log.With("component", "webserver"),
		authHeader: authHeader,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/studies", s.handle(s.handleListPublic))
	mux.HandleFunc("POST /api/studies", s.handle(s.handleCreate))
	mux.HandleFunc("GET /api/me/studies", s.handle(s.handleListMine))
	mux.HandleFunc("GET /api/stats", s.handle(s.handleStats))
	mux.HandleFunc("GET /api/me/stats", s.handle(s.handleMyStats))
	mux.HandleFunc("GET /api/studies/{id}", s.handle(s.handleGet))
	mux.HandleFunc("DELETE /api/studies/{id}", s.handle(s.handleDelete))
	mux.HandleFunc("PUT /api/studies/{id}/sections/{sectionId}", s.handle(s.handleUpdateSection))
	mux.HandleFunc("POST /api/studies/{id}/sections/{sectionId}/regenerate", s.handle(s.handleRegenerateSection))
	mux.HandleFunc("POST /api/studies/{id}/regenerate", s.handle(s.handleRegeneratePending))
	mux.HandleFunc("POST /api/studies/{id}/{action}", s.handle(s.handleAction))

	mux.HandleFunc("GET /{$}", s.handle(s.handleHome))
	mux.HandleFunc("GET /study/{id}", s.handle(s.handleStudyPage))
	mux.HandleFunc("/study/{id}/quiz", s.handle(s.handleQuizSetup))
	mux.HandleFunc("/study/{id}/quiz/{num}", s.handle(s.handleQuestion))
	mux.HandleFunc("GET /study/{id}/quiz/results", s.handle(s.handleResults))

	return mux
}

// handle resolves the principal, hands over guest studies kept in the
// session once the caller is signed in, and calls fn.
func (s *Server) handle(fn func(w http.ResponseWriter, r *http.Request, principal string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := strings.TrimSpace(r.Header.Get(s.authHeader))
		if principal == scripturepath.OwnerGuest {
			principal = ""
		}
		if principal != "" {
			s.claimGuestStudies(w, r, principal)
		}
		fn(w, r, principal)
	}
}

func (s *Server) claimGuestStudies(w http.ResponseWriter, r *http.Request, principal string) {
	session, _ := s.store.Get(r, sessionName)
	ids, _ := session.Values["guest_studies"].([]string)
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		_, err := s.svc.Claim(r.Context(), principal, id)
		switch {
		case err == nil:
			s.log.Info("guest study claimed", "study_id", id, "principal", principal)
		case errors.Is(err, scripturepath.ErrAlreadyClaimed), errors.Is(err, scripturepath.ErrStudyNotFound):
		default:
			s.log.Warn("failed to claim guest study", "study_id", id, "error", err)
		}
	}
	delete(session.Values, "guest_studies")
	if err := session.Save(r, w); err != nil {
		s.log.Warn("session save error", "error", err)
	}
}

func (s *Server) rememberGuestStudy(w http.ResponseWriter, r *http.Request, id string) {
	session, _ := s.store.Get(r, sessionName)
	ids, _ := session.Values["guest_studies"].([]string)
	session.Values["guest_studies"] = appendBounded(ids, id, maxGuestStudies)
	if err := session.Save(r, w); err != nil {
		s.log.Warn("session save error", "error", err)
	}
}

// appendBounded appends v and drops the oldest entries beyond limit.
func appendBounded(list []string, v string, limit int) []string {
	list = append(list, v)
	if len(list) > limit {
		list = append([]string(nil), list[len(list)-limit:]...)
	}
	return list
}

// viewKey is the short form of a study id kept in the viewed list.
func viewKey(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	scripturepath.SetLogger(log)

	if err := cfg.Validate(true); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := scripturepath.OpenRepository(ctx, cfg.Store, cfg.SQLitePath, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to open study store", "store", cfg.Store, "error", err)
	}
	defer closeRepo()

	gen := scripturepath.NewOpenAIGenerator(scripturepath.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		ScribeModel: cfg.OpenAIScribeModel,
	}, log)
	validator := scripturepath.NewValidator()
	validator.AutoLink = cfg.AutoLink
	svc := scripturepath.NewStudyService(repo, gen, scripturepath.ServiceOptions{
		Validator:             validator,
		Logger:                log,
		LogDir:                cfg.LogDir,
		RegenerateConcurrency: cfg.RegenerateConcurrency,
	})

	if cfg.SessionSecret == "" {
		log.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	server := NewServer(svc, []byte(cfg.SessionSecret), cfg.AuthHeader, log)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting server", "port", cfg.Port, "store", cfg.Store)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", "error", err)
	}
}
