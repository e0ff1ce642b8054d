package remote

import (
	"encoding/json"
	"fmt"
	"strings"

	lenserrors "clslens/internal/errors"
)

// Request is the body of POST .../action/query. Name labels the query in
// logs and metrics and is not sent.
type Request struct {
	Name       string        `json:"-"`
	Query      string        `json:"query"`
	Parameters []interface{} `json:"parameters"`
}

// Response is the envelope returned by the metadata service.
type Response struct {
	Status struct {
		Errors  []json.RawMessage `json:"errors"`
		Summary string            `json:"summary,omitempty"`
	} `json:"status"`
	Console []string `json:"console,omitempty"`
	Result  struct {
		Content []Row `json:"content"`
	} `json:"result"`
}

// ErrorMessages flattens status.errors. Entries may be plain strings or
// objects carrying an "error" field.
func (r *Response) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.Status.Errors))
	for _, raw := range r.Status.Errors {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			msgs = append(msgs, s)
			continue
		}
		var obj struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Error != "" {
			msgs = append(msgs, obj.Error)
			continue
		}
		msgs = append(msgs, string(raw))
	}
	return msgs
}

// ResultSet is a successful response: possibly zero rows.
type ResultSet struct {
	Rows []Row
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// ErrorKind classifies query failures.
type ErrorKind int

const (
	// TransportFailure covers network, HTTP status and authentication failures.
	TransportFailure ErrorKind = iota
	// ServerFailure is a non-empty status.errors in an otherwise successful response.
	ServerFailure
	// DecodeFailure is a response body that is not a valid envelope.
	DecodeFailure
)

func (k ErrorKind) String() string {
	switch k {
	case TransportFailure:
		return "transport"
	case ServerFailure:
		return "server"
	case DecodeFailure:
		return "decode"
	default:
		return "unknown"
	}
}

// QueryError describes a failed query.
type QueryError struct {
	Kind       ErrorKind
	Query      string
	Server     string
	StatusCode int
	Messages   []string
	cause      error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s query %q on %s failed", e.Kind, e.Query, e.Server)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	} else if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes a LensError carrying the matching code and the cause.
func (e *QueryError) Unwrap() error {
	code := lenserrors.TransportFailed
	switch e.Kind {
	case ServerFailure:
		code = lenserrors.ServerReported
	case DecodeFailure:
		code = lenserrors.QueryFailed
	}
	return lenserrors.New(code, e.Kind.String()+" failure", e.cause)
}

// Unauthorized reports whether the server rejected the credentials.
func (e *QueryError) Unauthorized() bool {
	return e.Kind == TransportFailure && e.StatusCode == 401
}
