package cerr

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
)

// Body is the JSON error object written to HTTP responses and NDJSON streams.
type Body struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []json.RawMessage `json:"details,omitempty"`
}

func (e *Error) Body() Body {
	b := Body{Code: e.Code.String(), Message: e.Msg}
	for _, d := range e.Details {
		raw, err := protojson.MarshalOptions{UseProtoNames: false}.Marshal(d)
		if err != nil {
			continue
		}
		b.Details = append(b.Details, raw)
	}
	return b
}
