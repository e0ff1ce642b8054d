package metastore

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"clslens/internal/remote"

	"github.com/klauspost/compress/gzip"
)

// QueryPattern is the route of the query action.
const QueryPattern = "POST /api/atelier/{version}/{namespace}/action/query"

const maxRequestBody = 1 << 20

// HandlerOptions configures the query endpoint.
type HandlerOptions struct {
	// User and Password enable basic authentication when User is set.
	User     string
	Password string
}

// Handler serves the action/query endpoint from a Store. Statement errors are
// reported in status.errors of a 200 response, as the metadata service does;
// only transport-level problems get an HTTP error status.
type Handler struct {
	store  *Store
	opts   HandlerOptions
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates the HTTP handler.
func NewHandler(store *Store, opts HandlerOptions, logger *slog.Logger) *Handler {
	h := &Handler{store: store, opts: opts, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc(QueryPattern, h.query)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opts.User != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != h.opts.User || pass != h.opts.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="clslens"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var req remote.Request
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var resp remote.Response
	resp.Result.Content = []remote.Row{}
	resp.Status.Errors = []json.RawMessage{}

	if !readOnly(req.Query) {
		resp.Status.Errors = append(resp.Status.Errors, errorEntry("only SELECT statements are allowed"))
	} else if rows, err := h.store.Execute(r.Context(), req.Query, req.Parameters); err != nil {
		h.logger.Debug("Query failed", "namespace", r.PathValue("namespace"), "error", err.Error())
		resp.Status.Errors = append(resp.Status.Errors, errorEntry(err.Error()))
	} else {
		resp.Result.Content = rows
	}
	if len(resp.Status.Errors) > 0 {
		resp.Status.Summary = "query failed"
	}

	h.write(w, r, &resp)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, resp *remote.Response) {
	w.Header().Set("Content-Type", "application/json")
	var out io.Writer = w
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		defer func() { _ = zw.Close() }()
		out = zw
	}
	if err := json.NewEncoder(out).Encode(resp); err != nil {
		h.logger.Warn("Failed to write response", "error", err.Error())
	}
}

func errorEntry(msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

func readOnly(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return true
	}
	return false
}
