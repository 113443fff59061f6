// Package rest exposes engines over HTTP. Each configured table becomes a
// resource at /{table} (collection) and /{table}/{id} (single row); rows move
// through whichever codec the request negotiates.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/restable/restable/pkg/codec"
	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/engine"
	"github.com/restable/restable/pkg/httputil"
	"github.com/restable/restable/pkg/httputil/middleware"
	"github.com/restable/restable/pkg/metrics"
	"github.com/restable/restable/pkg/query"
	"github.com/restable/restable/pkg/schema"
)

// Server routes resource requests to per-table engines.
type Server struct {
	mux     *http.ServeMux
	engines map[string]*engine.Engine
	// models holds per-table response models with the synthetic id field
	// prepended; tables without a primary key are absent.
	models  map[string]*schema.DataModel
	baseURL string
	logger  *zap.Logger
	httpSrv *http.Server
}

// Options configures a Server.
type Options struct {
	// BaseURL strips a path prefix before resource routing, e.g. "/api".
	BaseURL string
	Logger  *zap.Logger
}

// Resource names one exposed table and its engine options.
type Resource struct {
	Table   string
	Options engine.Options
}

// NewServer builds engines for the given resources over d. Introspection is
// retried with exponential backoff so the server can start before the
// database finishes coming up.
func NewServer(ctx context.Context, d dialect.Dialect, resources []Resource, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	engines := make(map[string]*engine.Engine, len(resources))
	for _, res := range resources {
		engineOpts := res.Options
		if engineOpts.Logger == nil {
			engineOpts.Logger = opts.Logger
		}
		var e *engine.Engine
		op := func() error {
			var err error
			e, err = engine.New(ctx, d, res.Table, engineOpts)
			if err != nil {
				// a missing table never appears by waiting
				if errors.Is(err, dialect.ErrNoTable) {
					return backoff.Permanent(err)
				}
				var dsErr *dialect.DataSourceError
				if errors.As(err, &dsErr) {
					opts.Logger.Warn("data source not ready, retrying",
						zap.String("table", res.Table), zap.Error(err))
					return err
				}
				return backoff.Permanent(err)
			}
			return nil
		}
		b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		if err := backoff.Retry(op, b); err != nil {
			return nil, fmt.Errorf("resource %q: %w", res.Table, err)
		}
		engines[e.Model().Table()] = e
	}

	s := &Server{
		mux:     http.NewServeMux(),
		engines: engines,
		models:  make(map[string]*schema.DataModel, len(engines)),
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		logger:  opts.Logger,
	}
	for name, e := range engines {
		if m, ok := responseModel(e); ok {
			s.models[name] = m
		}
	}
	s.mux.HandleFunc("/", s.handleRequest)
	return s, nil
}

// responseModel prepends the synthetic id field to the engine's model, so
// encoded rows carry the row id clients need for the single-row routes.
// Tables without a primary key have no row id and keep the bare model, as
// does a table that already owns a column by the id field's name.
func responseModel(e *engine.Engine) (*schema.DataModel, bool) {
	model := e.Model()
	if len(model.PrimaryKeys()) == 0 || model.FieldIndex(e.IDField()) >= 0 {
		return nil, false
	}
	fields := make([]schema.Field, 0, model.Len()+1)
	fields = append(fields, schema.Field{Name: e.IDField(), Type: schema.TypeString})
	fields = append(fields, model.Fields()...)
	m, err := schema.NewDataModel(model.Table(), fields)
	if err != nil {
		return nil, false
	}
	return m, true
}

// Engine returns the engine serving table, or nil.
func (s *Server) Engine(table string) *engine.Engine { return s.engines[table] }

// Handler returns the server's routing handler wrapped in the standard
// middleware chain.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.mux,
		middleware.RequestID,
		middleware.CORSWithOptions(nil),
		middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: s.logger}),
	)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// route on the escaped path: composite ids percent-encode embedded
	// separators, and the decoded form would split at the wrong points
	path := strings.TrimPrefix(r.URL.EscapedPath(), s.baseURL)
	path = strings.Trim(path, "/")
	if path == "" {
		httputil.JSON(w, http.StatusOK, map[string]any{"resources": s.resourceNames()})
		return
	}

	parts := strings.SplitN(path, "/", 2)
	e, ok := s.engines[parts[0]]
	if !ok {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("resource %q not found", parts[0]))
		return
	}
	var id string
	if len(parts) == 2 {
		id = parts[1]
	}

	rec := statusRecorder{ResponseWriter: w, status: http.StatusOK}
	switch {
	case r.Method == http.MethodGet && id == "":
		s.handleList(&rec, r, e)
	case r.Method == http.MethodGet:
		s.handleGetByID(&rec, r, e, id)
	case r.Method == http.MethodPost && id == "":
		s.handlePost(&rec, r, e)
	case r.Method == http.MethodPut && id != "":
		s.handlePut(&rec, r, e, id)
	case r.Method == http.MethodDelete && id != "":
		s.handleDelete(&rec, r, e, id)
	case r.Method == http.MethodDelete:
		s.handleDeleteWhere(&rec, r, e)
	default:
		httputil.Error(&rec, http.StatusMethodNotAllowed, "method not allowed")
	}
	metrics.Requests.WithLabelValues(e.Model().Table(), r.Method, strconv.Itoa(rec.status)).Inc()
}

func (s *Server) resourceNames() []string {
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	return names
}

// handleList serves GET /{table}. The filter, order and limit parameters are
// parsed up front; a filter that does not parse is a client error, while
// unusable order and limit values degrade to no-ops.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	params := r.URL.Query()

	filter, err := query.ParseFilter(params.Get("filter"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req := engine.Request{
		Filter: filter,
		Order:  query.ParseOrder(params.Get("order")),
		Limit:  query.ParseLimit(params.Get("limit")),
	}

	start := time.Now()
	rows, err := e.Select(r.Context(), req)
	if err != nil {
		s.dataError(w, e, "select", err)
		return
	}
	defer rows.Close()
	metrics.QueryDuration.WithLabelValues(e.Model().Table(), "select").Observe(time.Since(start).Seconds())

	s.writeRows(w, r, e, rows, http.StatusOK)
}

func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request, e *engine.Engine, id string) {
	start := time.Now()
	rows, err := e.SelectByID(r.Context(), id)
	if err != nil {
		s.dataError(w, e, "select", err)
		return
	}
	defer rows.Close()
	metrics.QueryDuration.WithLabelValues(e.Model().Table(), "select").Observe(time.Since(start).Seconds())

	// a by-id read returns at most one row, so it can be materialized to
	// distinguish a miss from an empty stream
	var matched []schema.Row
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			s.dataError(w, e, "select", err)
			return
		}
		matched = append(matched, row)
	}
	if err := rows.Err(); err != nil {
		s.dataError(w, e, "select", err)
		return
	}
	if len(matched) == 0 {
		httputil.Error(w, http.StatusNotFound, "row not found")
		return
	}
	s.writeSlice(w, r, e, matched, http.StatusOK)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	rows, ok := s.readRows(w, r, e)
	if !ok {
		return
	}
	if len(rows) == 0 {
		httputil.Error(w, http.StatusBadRequest, "request body contains no rows")
		return
	}

	start := time.Now()
	if err := e.Insert(r.Context(), rows); err != nil {
		s.dataError(w, e, "insert", err)
		return
	}
	metrics.QueryDuration.WithLabelValues(e.Model().Table(), "insert").Observe(time.Since(start).Seconds())

	httputil.JSON(w, http.StatusCreated, map[string]int{"inserted": len(rows)})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, e *engine.Engine, id string) {
	rows, ok := s.readRows(w, r, e)
	if !ok {
		return
	}
	if len(rows) != 1 {
		httputil.Error(w, http.StatusBadRequest, "update requires exactly one row")
		return
	}

	start := time.Now()
	if err := e.Update(r.Context(), id, rows[0]); err != nil {
		s.dataError(w, e, "update", err)
		return
	}
	metrics.QueryDuration.WithLabelValues(e.Model().Table(), "update").Observe(time.Since(start).Seconds())

	httputil.JSON(w, http.StatusOK, map[string]string{"updated": id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, e *engine.Engine, id string) {
	start := time.Now()
	if err := e.Delete(r.Context(), id); err != nil {
		s.dataError(w, e, "delete", err)
		return
	}
	metrics.QueryDuration.WithLabelValues(e.Model().Table(), "delete").Observe(time.Since(start).Seconds())

	httputil.JSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// handleDeleteWhere serves DELETE /{table}?filter=... . An empty filter is
// rejected by the engine so a missing parameter never truncates the table.
func (s *Server) handleDeleteWhere(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	filter, err := query.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	if err := e.DeleteWhere(r.Context(), filter); err != nil {
		s.dataError(w, e, "delete", err)
		return
	}
	metrics.QueryDuration.WithLabelValues(e.Model().Table(), "delete").Observe(time.Since(start).Seconds())

	httputil.JSON(w, http.StatusOK, map[string]string{"deleted": "filter"})
}

// readRows decodes the request body with the negotiated codec. On failure it
// writes the error response and returns ok=false.
func (s *Server) readRows(w http.ResponseWriter, r *http.Request, e *engine.Engine) ([]schema.Row, bool) {
	c, err := requestCodec(r)
	if err != nil {
		httputil.Error(w, http.StatusUnsupportedMediaType, err.Error())
		return nil, false
	}
	rows, err := c.Decode(r.Body, e.Model())
	if err != nil {
		metrics.SerializationErrors.WithLabelValues(e.Model().Table(), baseMediaType(c.ContentType())).Inc()
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return rows, true
}

// writeRows streams the row set through the negotiated codec. Headers go out
// before the first row, so a mid-stream encode failure can only be logged.
func (s *Server) writeRows(w http.ResponseWriter, r *http.Request, e *engine.Engine, rows *engine.RowSet, status int) {
	s.encodeResponse(w, r, e, rows, status)
}

// writeSlice writes already-materialized rows.
func (s *Server) writeSlice(w http.ResponseWriter, r *http.Request, e *engine.Engine, rows []schema.Row, status int) {
	s.encodeResponse(w, r, e, &codec.SliceSource{Rows: rows}, status)
}

func (s *Server) encodeResponse(w http.ResponseWriter, r *http.Request, e *engine.Engine, rows codec.RowSource, status int) {
	c, err := responseCodec(r)
	if err != nil {
		httputil.Error(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	model := e.Model()
	if m, ok := s.models[model.Table()]; ok {
		model = m
		rows = &idRowSource{e: e, rows: rows}
	}

	w.Header().Set("Content-Type", c.ContentType())
	w.WriteHeader(status)
	if err := c.Encode(w, model, rows); err != nil {
		metrics.SerializationErrors.WithLabelValues(model.Table(), baseMediaType(c.ContentType())).Inc()
		s.logger.Error("encode failed mid-stream",
			zap.String("resource", model.Table()), zap.Error(err))
	}
}

// idRowSource prefixes each row with its rendered composite id so responses
// expose the token single-row routes expect.
type idRowSource struct {
	e    *engine.Engine
	rows codec.RowSource
}

func (s *idRowSource) Next() bool { return s.rows.Next() }

func (s *idRowSource) Row() (schema.Row, error) {
	row, err := s.rows.Row()
	if err != nil {
		return nil, err
	}
	id, err := s.e.RowID(row)
	if err != nil {
		return nil, err
	}
	out := make(schema.Row, 0, len(row)+1)
	out = append(out, id)
	return append(out, row...), nil
}

func (s *idRowSource) Err() error { return s.rows.Err() }

// dataError maps engine failures to status codes: missing rows are 404,
// client-side input problems are 400, and everything from the data source
// is a 500 with the detail kept in the log.
func (s *Server) dataError(w http.ResponseWriter, e *engine.Engine, op string, err error) {
	var synErr *query.SyntaxError
	var dsErr *dialect.DataSourceError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		httputil.Error(w, http.StatusNotFound, "row not found")
	case errors.As(err, &synErr):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &dsErr):
		s.logger.Error("data source error",
			zap.String("resource", e.Model().Table()), zap.String("op", op), zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "data source error")
	default:
		httputil.Error(w, http.StatusBadRequest, err.Error())
	}
}

// Start serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// statusRecorder captures the response status for metrics labels.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestCodec picks the codec for a request body: an explicit ?format=
// parameter wins, then the Content-Type header, then JSON.
func requestCodec(r *http.Request) (codec.Codec, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return codec.New(formatMediaType(f))
	}
	return codec.New(r.Header.Get("Content-Type"))
}

// responseCodec picks the codec for a response body: ?format= wins, then the
// first concrete Accept media type, then JSON. Multipart responses get a
// server-generated boundary.
func responseCodec(r *http.Request) (codec.Codec, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return codec.NewResponse(formatMediaType(f))
	}
	accept := r.Header.Get("Accept")
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mt == "" || mt == "*/*" || strings.HasSuffix(mt, "/*") {
			continue
		}
		return codec.NewResponse(mt)
	}
	return codec.NewResponse("")
}

// formatMediaType expands shorthand format names to media types. Unknown
// names pass through so codec.New reports them.
func formatMediaType(f string) string {
	switch strings.ToLower(f) {
	case "json":
		return codec.TypeJSON
	case "csv":
		return codec.TypeCSV
	case "urlencoded", "form":
		return codec.TypeURLEncoded
	case "multipart":
		return codec.TypeMultipart
	default:
		return f
	}
}

// baseMediaType strips media type parameters such as a multipart boundary,
// keeping metric label cardinality bounded.
func baseMediaType(ct string) string {
	return strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
}
