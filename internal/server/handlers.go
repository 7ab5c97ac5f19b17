package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/costroll/internal/budget"
	"github.com/theirongolddev/costroll/internal/export"
	"github.com/theirongolddev/costroll/internal/model"
)

// ActorHeader carries the id of the user a request acts for.
const ActorHeader = "X-Actor-ID"

const (
	maxBodyBytes   = 1 << 20
	maxImportBytes = 10 << 20
)

// Handler returns the HTTP routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	const p = "/v1/projects/{project}/budget"
	mux.HandleFunc("GET "+p, s.handleRollup)
	mux.HandleFunc("POST "+p+"/lines", s.handleMerge)
	mux.HandleFunc("DELETE "+p+"/lines/{id}", s.handleDeleteLine)
	mux.HandleFunc("POST "+p+"/import", s.handleImport)
	mux.HandleFunc("GET "+p+"/details/{code}", s.handleDetails)
	mux.HandleFunc("GET "+p+"/lock", s.handleGetLock)
	mux.HandleFunc("PUT "+p+"/lock", s.handleSetLock)
	mux.HandleFunc("GET "+p+"/lock/history", s.handleLockHistory)
	mux.HandleFunc("GET "+p+"/export", s.handleExport)
	mux.HandleFunc("GET "+p+"/modifications", s.handleListModifications)
	mux.HandleFunc("POST "+p+"/modifications", s.handleCreateModification)
	mux.HandleFunc("POST "+p+"/modifications/{id}/{action}", s.handleTransition)
	mux.HandleFunc("GET "+p+"/stream", s.handleStream)
	return mux
}

type errorBody struct {
	Error     string     `json:"error"`
	Code      model.Code `json:"code"`
	Retryable bool       `json:"retryable"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidReference),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrBudgetLocked):
		return http.StatusLocked
	case errors.Is(err, model.ErrConcurrentModification),
		errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("costroll server: %v", err)
	}
	code := model.CodeOf(err)
	if errors.Is(err, ErrForbidden) {
		code = "FORBIDDEN"
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code, Retryable: model.Retryable(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", model.ErrInvalidRequest, err)
	}
	return nil
}

// authorize asks the Authorizer about the request's actor and project.
func (s *Service) authorize(r *http.Request, action Action) (actor, project string, err error) {
	actor = r.Header.Get(ActorHeader)
	project = r.PathValue("project")
	if err := s.auth.Authorize(r.Context(), actor, project, action); err != nil {
		return actor, project, err
	}
	return actor, project, nil
}

// afterWrite refreshes the project's rollup so subscribers see the change.
func (s *Service) afterWrite(ctx context.Context, project string) {
	if _, err := s.refresh(ctx, project); err != nil {
		log.Printf("costroll server: refresh %s after write: %v", project, err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleRollup(w http.ResponseWriter, r *http.Request) {
	_, project, err := s.authorize(r, ActionRead)
	if err != nil {
		writeError(w, err)
		return
	}
	bestEffort := false
	if v := r.URL.Query().Get("best_effort"); v != "" {
		if bestEffort, err = strconv.ParseBool(v); err != nil {
			writeError(w, fmt.Errorf("%w: best_effort: %v", model.ErrInvalidRequest, err))
			return
		}
	}

	ru, err := s.engine.GetBudgetRollup(r.Context(), project, bestEffort)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(ru.Degraded) == 0 {
		s.record(ru, time.Now())
	}
	writeJSON(w, http.StatusOK, ru)
}

type mergeRequest struct {
	Lines []model.LineRequest `json:"lines"`
}

func (s *Service) handleMerge(w http.ResponseWriter, r *http.Request) {
	actor, project, err := s.authorize(r, ActionMergeLines)
	if err != nil {
		writeError(w, err)
		return
	}
	var req mergeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.budget.MergeBudgetLines(r.Context(), project, actor, req.Lines)
	if err != nil {
		writeError(w, err)
		return
	}
	s.afterWrite(r.Context(), project)
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	_, project, err := s.authorize(r, ActionMergeLines)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.budget.DeleteBudgetLine(r.Context(), project, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.afterWrite(r.Context(), project)
	writeJSON(w, http.StatusOK, p)
}

// handleImport accepts a multipart upload in the "file" field, or the raw
// file as the body with ?format=csv|xlsx.
func (s *Service) handleImport(w http.ResponseWriter, r *http.Request) {
	actor, project, err := s.authorize(r, ActionMergeLines)
	if err != nil {
		writeError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var (
		body   io.Reader = r.Body
		format export.Format
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, fmt.Errorf("%w: file: %v", model.ErrInvalidRequest, err))
			return
		}
		defer func() { _ = file.Close() }()
		if format, err = export.FormatOf(header.Filename); err != nil {
			writeError(w, err)
			return
		}
		body = file
	} else if format, err = export.ParseFormat(r.URL.Query().Get("format")); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.budget.ImportBudget(r.Context(), project, actor, body, format)
	if err != nil {
		writeError(w, err)
		return
	}
	s.afterWrite(r.Context(), project)
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleDetails(w http.ResponseWriter, r *http.Request) {
	_, project, err := s.authorize(r, ActionRead)
	if err != nil {
		writeError(w, err)
		return
	}
	bestEffort := false
	if v := r.URL.Query().Get("best_effort"); v != "" {
		if bestEffort, err = strconv.ParseBool(v); err != nil {
			writeError(w, fmt.Errorf("%w: best_effort: %v", model.ErrInvalidRequest, err))
			return
		}
	}
	d, err := s.engine.GetCostCodeDetails(r.Context(), project, r.PathValue("code"), bestEffort)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Service) handleGetLock(w http.ResponseWriter, r *http.Request) {
	_, project, err := s.authorize(r, ActionRead)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := s.budget.LockState(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type lockRequest struct {
	Locked          bool   `json:"locked"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

func (s *Service) handleSetLock(w http.ResponseWriter, r *http.Request) {
	actor, project, err := s.authorize(r, ActionSetLock)
	if err != nil {
		writeError(w, err)
		return
	}
	var req lockRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	st, err := s.budget.SetLockState(r.Context(), model.LockRequest{
		ProjectID:       project,
		Locked:          req.Locked,
		ActorID:         actor,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleLockHistory(w http.ResponseWriter, r *http.Request) {
	_, project, err := s.authorize(r, ActionRead)
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := s.budget.LockHistory(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []model.LockEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	_, project, err := s.authorize(r, ActionRead)
	if err != nil {
		writeError(w, err)
		return
	}
	format := export.CSV
	if v := r.URL.Query().Get("format"); v != "" {
		if format, err = export.ParseFormat(v); err != nil {
			writeError(w, err)
			return
		}
	}

	ru, err := s.engine.GetBudgetRollup(r.Context(), project, false)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.budget.Project(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	name := p.Name
	if name == "" {
		name = project
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, export.Project(ru), format); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.FileName(name, format, time.Now())))
	_, _ = w.Write(buf.Bytes())
}

func (s *Service) handleListModifications(w http.ResponseWriter, r *http.Request) {
	_, project, err := s.authorize(r, ActionRead)
	if err != nil {
		writeError(w, err)
		return
	}
	mods, err := s.budget.Modifications(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	if mods == nil {
		mods = []model.BudgetModification{}
	}
	writeJSON(w, http.StatusOK, mods)
}

func (s *Service) handleCreateModification(w http.ResponseWriter, r *http.Request) {
	actor, project, err := s.authorize(r, ActionModification)
	if err != nil {
		writeError(w, err)
		return
	}
	var req budget.NewModification
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.ProjectID = project
	req.ActorID = actor

	m, err := s.budget.CreateModification(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Service) handleTransition(w http.ResponseWriter, r *http.Request) {
	actor, project, err := s.authorize(r, ActionModification)
	if err != nil {
		writeError(w, err)
		return
	}
	action := model.ModificationAction(r.PathValue("action"))

	m, err := s.budget.TransitionModification(r.Context(), project, r.PathValue("id"), action, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	if action == model.ActionApprove || action == model.ActionVoid {
		s.afterWrite(r.Context(), project)
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	_, project, err := s.authorize(r, ActionRead)
	if err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	current, err := s.refresh(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(project, ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	now := time.Now()
	writeSSE(w, Event{Type: "snapshot", Timestamp: now, ProjectID: project, Snapshot: snapshotFromRollup(current, now)})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}
