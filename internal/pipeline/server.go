package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/tasksmith/internal/enrich"
	"github.com/kazz187/tasksmith/internal/eventbus"
	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/cerr"
)

// Server exposes the pipeline over HTTP. Long-running operations answer with
// NDJSON streams.
type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Post("/tasks/generate", s.GenerateTasks)
		r.Post("/triage", s.CreateTriageTask)
		r.Post("/triage/{triageTaskID}/enhance", s.EnhanceTriageTask)
		r.Get("/events", s.SubscribeEvents)
	})
}

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return cerr.NewError(cerr.InvalidArgument, "malformed request body", err)
	}
	return nil
}

type generateBody struct {
	FreeText string `json:"freeText"`
}

type generateDone struct {
	Done    bool             `json:"done"`
	Summary *GenerateSummary `json:"summary"`
}

func (s *Server) GenerateTasks(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body generateBody
	if err := decodeBody(r, &body); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	stream := newNDJSONStream(ctx, rw)
	sum, err := s.service.GenerateTasks(ctx, GenerateRequest{
		ProjectID: chi.URLParam(r, "projectID"),
		FreeText:  body.FreeText,
	}, func(t GeneratedTask) error {
		return stream.Send(t)
	})
	if err != nil {
		stream.Fail(err)
		return
	}
	if err := stream.Send(generateDone{Done: true, Summary: sum}); err != nil {
		stream.Fail(err)
	}
}

type stateLine struct {
	State      enrich.Stage     `json:"state"`
	TriageTask *task.TriageTask `json:"triageTask,omitempty"`
}

func (s *Server) EnhanceTriageTask(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stream := newNDJSONStream(ctx, rw)
	t, err := s.service.EnhanceTriageTask(ctx, EnhanceRequest{
		ProjectID:    chi.URLParam(r, "projectID"),
		TriageTaskID: chi.URLParam(r, "triageTaskID"),
	}, func(_ context.Context, stage enrich.Stage) error {
		return stream.Send(stateLine{State: stage})
	})
	if err != nil {
		stream.Fail(err)
		return
	}
	if err := stream.Send(stateLine{State: enrich.StageDone, TriageTask: t}); err != nil {
		stream.Fail(err)
	}
}

func (s *Server) CreateTriageTask(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IntakeRequest
	if err := decodeBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	req.ProjectID = chi.URLParam(r, "projectID")
	t, err := s.service.Intake(ctx, req)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, t)
}

// SubscribeEvents streams project events until the client goes away.
func (s *Server) SubscribeEvents(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var types []eventbus.Type
	if q := r.URL.Query().Get("types"); q != "" {
		for _, t := range strings.Split(q, ",") {
			types = append(types, eventbus.Type(strings.TrimSpace(t)))
		}
	}
	stream := newNDJSONStream(ctx, rw)
	stream.start()
	for ev := range s.service.Subscribe(ctx, chi.URLParam(r, "projectID"), types) {
		if err := stream.Send(ev); err != nil {
			return
		}
	}
}
