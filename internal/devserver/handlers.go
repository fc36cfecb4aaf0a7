package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/grading"
)

type runEvent struct {
	Status         grading.Status  `json:"status"`
	TestCaseNumber int             `json:"testCaseNumber,omitempty"`
	Message        string          `json:"message"`
	Input          json.RawMessage `json:"input,omitempty"`
	Expected       json.RawMessage `json:"expected,omitempty"`
	Actual         json.RawMessage `json:"actual,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listChallenges(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.List(r.Context())
	if err != nil {
		s.log.Error("devserver.list_failed", map[string]any{"err": err})
		writeDetail(w, http.StatusInternalServerError, "Failed to load challenges")
		return
	}
	if items == nil {
		items = []catalog.Challenge{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getChallenge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, err := s.catalog.Get(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Challenge not found")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to load challenge")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// runPython streams one event per test case. Code that mentions the secret
// name gets a single forbidden event and nothing is executed.
func (s *Server) runPython(w http.ResponseWriter, r *http.Request) {
	var req backend.RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	if strings.Contains(req.Code, s.secret) {
		s.log.Warn("devserver.forbidden_code", map[string]any{"secret": s.secret})
		_ = writeEvent(w, runEvent{
			Status:  grading.StatusForbidden,
			Message: fmt.Sprintf("Execution halted: Code contains forbidden string '%s'.", s.secret),
		})
		flusher.Flush()
		return
	}

	for i, tc := range req.TestCases {
		if ctx.Err() != nil {
			return
		}
		res := s.runner.RunCase(ctx, req.Code, tc)
		ev := runEvent{
			Status:         res.Status,
			TestCaseNumber: i + 1,
			Message:        res.Message,
			Input:          res.Input,
			Expected:       res.Expected,
			Actual:         res.Actual,
		}
		if err := writeEvent(w, ev); err != nil {
			s.log.Warn("devserver.stream_write_failed", map[string]any{"err": err, "case": i + 1})
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev runEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) generateHint(w http.ResponseWriter, r *http.Request) {
	var req backend.HintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	ch, ok := s.findChallenge(w, r, req.Instructions)
	if !ok {
		return
	}
	if len(ch.Hints) == 0 {
		writeDetail(w, http.StatusNotFound, "No hints are available for this challenge")
		return
	}
	out := make([]backend.HintCandidate, 0, len(ch.Hints))
	for _, h := range ch.Hints {
		cand := backend.HintCandidate{Level: backend.Level(h.Level), Content: h.Content}
		if t := strings.TrimSpace(h.Title); t != "" {
			cand.Title = &t
		}
		out = append(out, cand)
	}
	writeJSON(w, http.StatusOK, map[string]any{"hints": out})
}

func (s *Server) generateCode(w http.ResponseWriter, r *http.Request) {
	var req backend.CodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	ch, ok := s.findChallenge(w, r, req.Challenge)
	if !ok {
		return
	}
	if strings.TrimSpace(ch.StarterCode) == "" {
		writeJSON(w, http.StatusOK, backend.CodeResponse{Error: "この課題には初期コードが用意されていません。"})
		return
	}
	writeJSON(w, http.StatusOK, backend.CodeResponse{
		Code:        ch.StarterCode,
		Explanation: starterNotes(ch, req.Difficulty),
	})
}

func (s *Server) generateExplanation(w http.ResponseWriter, r *http.Request) {
	var req backend.ExplanationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	ch, _ := s.lookup(r, req.Instructions)
	exp, err := buildExplanation(ch, req)
	if err != nil {
		s.log.Error("devserver.explain_failed", map[string]any{"err": err})
		writeDetail(w, http.StatusInternalServerError, "Failed to build explanation")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) generateRetireExplanation(w http.ResponseWriter, r *http.Request) {
	var req backend.ExplanationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	ch, ok := s.findChallenge(w, r, req.Instructions)
	if !ok {
		return
	}
	if strings.TrimSpace(ch.Solution) == "" {
		writeDetail(w, http.StatusNotFound, "No reference solution for this challenge")
		return
	}
	writeJSON(w, http.StatusOK, buildRetireExplanation(ch, req))
}

func (s *Server) lookup(r *http.Request, instructions string) (catalog.Challenge, bool) {
	if strings.TrimSpace(instructions) == "" {
		return catalog.Challenge{}, false
	}
	ch, err := s.catalog.FindByInstructions(r.Context(), instructions)
	if err != nil {
		return catalog.Challenge{}, false
	}
	return ch, true
}

func (s *Server) findChallenge(w http.ResponseWriter, r *http.Request, instructions string) (catalog.Challenge, bool) {
	ch, ok := s.lookup(r, instructions)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Challenge not found")
	}
	return ch, ok
}
