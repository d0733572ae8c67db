//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package flowsvc exposes a workflow engine over HTTP: submitting input
// events, resuming suspended threads, and inspecting checkpoints.
package flowsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-flow-go/log"
	"trpc.group/trpc-go/trpc-flow-go/model"
	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

// Invoker is the engine surface the service drives. *workflow.Engine
// satisfies it; so does a runner-backed facade.
type Invoker interface {
	Invoke(ctx context.Context, threadID string, input workflow.State) (*workflow.Result, error)
	Resume(ctx context.Context, threadID string, cmd *workflow.ResumeCommand) (*workflow.Result, error)
}

// InputBuilder turns one raw event request into the state delta fed to
// the engine.
type InputBuilder func(req *EventRequest) workflow.State

// EventRequest is the body of an input event.
type EventRequest struct {
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ResumeRequest is the body of a resume call.
type ResumeRequest struct {
	Token string `json:"token,omitempty"`
	Value any    `json:"value"`
}

// ThreadResponse reports the thread's status after an event or resume.
type ThreadResponse struct {
	ThreadID     string                   `json:"thread_id"`
	Status       workflow.Status          `json:"status"`
	Seq          int64                    `json:"seq"`
	LastResponse string                   `json:"last_response,omitempty"`
	Suspend      *workflow.SuspendRequest `json:"suspend,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the workflow HTTP API.
type Server struct {
	invoker    Invoker
	store      workflow.Store
	buildInput InputBuilder
	handler    http.Handler
}

// Option configures the server.
type Option func(*Server)

// WithInputBuilder replaces the default event-to-state mapping.
func WithInputBuilder(builder InputBuilder) Option {
	return func(s *Server) {
		s.buildInput = builder
	}
}

// New creates the HTTP server over an invoker and its checkpoint store.
func New(invoker Invoker, store workflow.Store, opts ...Option) (*Server, error) {
	if invoker == nil {
		return nil, errors.New("flowsvc: invoker is required")
	}
	if store == nil {
		return nil, errors.New("flowsvc: store is required")
	}
	s := &Server{
		invoker:    invoker,
		store:      store,
		buildInput: defaultInputBuilder,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter()
	router.HandleFunc("/v1/threads/{thread_id}/events", s.handleEvent).Methods(http.MethodPost)
	router.HandleFunc("/v1/threads/{thread_id}/resume", s.handleResume).Methods(http.MethodPost)
	router.HandleFunc("/v1/threads/{thread_id}/checkpoint", s.handleCheckpoint).Methods(http.MethodGet)
	router.HandleFunc("/v1/threads/{thread_id}", s.handleDelete).Methods(http.MethodDelete)
	s.handler = cors.Default().Handler(router)
	return s, nil
}

// Handler returns the HTTP handler of the service.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func defaultInputBuilder(req *EventRequest) workflow.State {
	state := workflow.State{
		workflow.StateKeyUserInput: req.Message,
		workflow.StateKeyMessages:  []model.Message{model.NewUserMessage(req.Message)},
	}
	if len(req.Metadata) > 0 {
		state[workflow.StateKeyMetadata] = req.Metadata
	}
	return state
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["thread_id"]
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}

	result, err := s.invoker.Invoke(r.Context(), threadID, s.buildInput(&req))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["thread_id"]
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cmd := workflow.NewResumeCommand().WithValue(req.Value).WithToken(req.Token)
	result, err := s.invoker.Resume(r.Context(), threadID, cmd)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["thread_id"]
	checkpoint, err := s.store.Latest(r.Context(), threadID)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkpoint)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["thread_id"]
	if err := s.store.DeleteThread(r.Context(), threadID); err != nil {
		writeWorkflowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeResult(w http.ResponseWriter, result *workflow.Result) {
	lastResponse, _ := result.State[workflow.StateKeyLastResponse].(string)
	writeJSON(w, http.StatusOK, &ThreadResponse{
		ThreadID:     result.ThreadID,
		Status:       result.Status,
		Seq:          result.Seq,
		LastResponse: lastResponse,
		Suspend:      result.Suspend,
	})
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrNotSuspended),
		errors.Is(err, workflow.ErrTokenMismatch),
		errors.Is(err, workflow.ErrConflict):
		status = http.StatusConflict
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Errorf("flowsvc: %v", err)
	}
	writeJSON(w, status, &errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("flowsvc: encode response: %v", err)
	}
}
