package pipeline

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/clog"
)

// ndjsonStream writes one JSON value per line and flushes after each. Until
// the first line is written, errors are left to the error middleware so they
// keep their HTTP status.
type ndjsonStream struct {
	ctx     context.Context
	rw      http.ResponseWriter
	enc     *json.Encoder
	started bool
}

func newNDJSONStream(ctx context.Context, rw http.ResponseWriter) *ndjsonStream {
	return &ndjsonStream{ctx: ctx, rw: rw, enc: json.NewEncoder(rw)}
}

func (s *ndjsonStream) start() {
	if s.started {
		return
	}
	s.started = true
	cerr.MarkWritten(s.ctx)
	s.rw.Header().Set("Content-Type", "application/x-ndjson")
	s.rw.Header().Set("Cache-Control", "no-cache")
	s.rw.Header().Set("X-Content-Type-Options", "nosniff")
	s.rw.WriteHeader(http.StatusOK)
}

func (s *ndjsonStream) Send(v any) error {
	s.start()
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	if f, ok := s.rw.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

type errorLine struct {
	Error cerr.Body `json:"error"`
}

// Fail ends the stream with a single error object.
func (s *ndjsonStream) Fail(err error) {
	if !s.started {
		cerr.SetJSONError(s.ctx, err)
		return
	}
	e := cerr.Normalize(s.ctx, err)
	if sendErr := s.Send(errorLine{Error: e.Body()}); sendErr != nil {
		clog.AddError(s.ctx, sendErr)
	}
}
