package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	scripturepath "github.com/Boniqx/scripture-path"
	"github.com/Boniqx/scripture-path/markup"
)

const generationTimeout = 5 * time.Minute

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var (
		unknown   *scripturepath.UnknownSectionError
		structure *markup.StructureError
	)
	switch {
	case errors.Is(err, scripturepath.ErrStudyNotFound), errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.Is(err, scripturepath.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, scripturepath.ErrStudyLocked), errors.Is(err, scripturepath.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.As(err, &structure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scripturepath.ErrMalformedResponse), errors.Is(err, scripturepath.ErrGeneratorFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleListPublic(w http.ResponseWriter, r *http.Request, _ string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	studies, err := s.svc.ListPublic(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(studies))
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request, principal string) {
	if principal == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "sign in to list your studies"})
		return
	}
	studies, err := s.svc.ListMine(r.Context(), principal)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(studies))
}

func nonNil(studies []*scripturepath.Study) []*scripturepath.Study {
	if studies == nil {
		return []*scripturepath.Study{}
	}
	return studies
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ string) {
	totals, err := s.svc.Totals(r.Context(), "")
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleMyStats(w http.ResponseWriter, r *http.Request, principal string) {
	if principal == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "sign in to see your stats"})
		return
	}
	totals, err := s.svc.Totals(r.Context(), principal)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

type createRequest struct {
	Topic      string                   `json:"topic"`
	Difficulty scripturepath.Difficulty `json:"difficulty"`
	Length     scripturepath.Length     `json:"length"`
	Tier       scripturepath.Tier       `json:"tier"`
}

type createResponse struct {
	Study  *scripturepath.Study            `json:"study"`
	Report *scripturepath.ValidationReport `json:"report"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, principal string) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil || req.Topic == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "a JSON body with a topic is required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generationTimeout)
	defer cancel()

	study, report, err := s.svc.CreateStudy(ctx, scripturepath.GenerationRequest{
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		Length:     req.Length,
		OwnerID:    principal,
		Tier:       req.Tier,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	if principal == "" {
		s.rememberGuestStudy(w, r, study.ID)
	}
	writeJSON(w, http.StatusCreated, createResponse{Study: study, Report: report})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, principal string) {
	study, err := s.svc.GetStudy(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, study)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, principal string) {
	if err := s.svc.Delete(r.Context(), principal, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sectionUpdate struct {
	Content string `json:"content"`
}

func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request, principal string) {
	var body sectionUpdate
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	sec, err := s.svc.UpdateSection(r.Context(), principal, r.PathValue("id"), r.PathValue("sectionId"), body.Content)
	if err != nil {
		// a bad manual edit is the caller's fault, not the model's
		if errors.Is(err, scripturepath.ErrMalformedResponse) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

type regenerateRequest struct {
	Sections []string           `json:"sections"`
	Tier     scripturepath.Tier `json:"tier"`
}

type sectionResult struct {
	scripturepath.Section
	Recovered bool   `json:"recovered,omitempty"`
	Error     string `json:"error,omitempty"`
}

func toSectionResult(res scripturepath.SectionResult) sectionResult {
	out := sectionResult{Section: res.Section, Recovered: res.Recovered}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (s *Server) handleRegenerateSection(w http.ResponseWriter, r *http.Request, principal string) {
	var req regenerateRequest
	_ = decodeBody(r, &req)
	ctx, cancel := context.WithTimeout(r.Context(), generationTimeout)
	defer cancel()

	res, err := s.svc.RegenerateSection(ctx, principal, r.PathValue("id"), r.PathValue("sectionId"), req.Tier)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSectionResult(res))
}

// handleRegeneratePending regenerates the listed sections, or every flagged
// one, and reports each outcome.
func (s *Server) handleRegeneratePending(w http.ResponseWriter, r *http.Request, principal string) {
	var req regenerateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generationTimeout)
	defer cancel()

	results, err := s.svc.RegenerateSections(ctx, principal, r.PathValue("id"), req.Sections, req.Tier)
	if results == nil && err != nil {
		s.fail(w, err)
		return
	}
	out := make([]sectionResult, len(results))
	for i, res := range results {
		out[i] = toSectionResult(res)
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, out)
}

type visibilityRequest struct {
	Public *bool `json:"public"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, principal string) {
	ctx := r.Context()
	id := r.PathValue("id")

	switch r.PathValue("action") {
	case "lock":
		study, err := s.svc.Lock(ctx, principal, id)
		s.respondStudy(w, study, err)
	case "visibility":
		var req visibilityRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		var (
			study *scripturepath.Study
			err   error
		)
		if req.Public == nil {
			study, err = s.svc.ToggleVisibility(ctx, principal, id)
		} else {
			study, err = s.svc.SetVisibility(ctx, principal, id, *req.Public)
		}
		s.respondStudy(w, study, err)
	case "like":
		s.respondStats(w, r, principal, id, s.svc.RecordLike)
	case "share":
		s.respondStats(w, r, principal, id, s.svc.RecordShare)
	case "clone":
		clone, err := s.svc.Clone(ctx, principal, id)
		if err != nil {
			s.fail(w, err)
			return
		}
		if principal == "" {
			s.rememberGuestStudy(w, r, clone.ID)
		}
		writeJSON(w, http.StatusCreated, clone)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) respondStudy(w http.ResponseWriter, study *scripturepath.Study, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, study)
}

// respondStats records an engagement event on a study the caller can see.
func (s *Server) respondStats(w http.ResponseWriter, r *http.Request, principal, id string,
	record func(ctx context.Context, id string) (scripturepath.Stats, error)) {
	if _, err := s.svc.GetStudy(r.Context(), principal, id); err != nil {
		s.fail(w, err)
		return
	}
	stats, err := record(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
