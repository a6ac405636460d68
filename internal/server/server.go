package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"

	"github.com/hanpama/apqgate/internal/apq"
	"github.com/hanpama/apqgate/internal/codec"
	eventbus "github.com/hanpama/apqgate/internal/eventbus"
	events "github.com/hanpama/apqgate/internal/events"
	"github.com/hanpama/apqgate/internal/executor"
	reqid "github.com/hanpama/apqgate/internal/reqid"
)

// Handler is an http.Handler that serves a GraphQL endpoint. Each request's
// document is obtained through a chain of document providers (APQ first when
// enabled, then the plain "query" field) and handed to the executor.
type Handler struct {
	exec  executor.Executor
	docs  apq.Chain
	opt   Options
	allow map[string]struct{}
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// ForwardHeaders lists HTTP headers passed on to the executor.
	// Header names are case-insensitive. Default is none.
	ForwardHeaders []string

	// APQ is the persisted query stage. Nil serves plain GraphQL only.
	APQ *apq.Resolver

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option    { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                    { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option       { return func(o *Options) { o.MaxBodyBytes = n } }
func WithAPQ(r *apq.Resolver) Option        { return func(o *Options) { o.APQ = r } }
func WithLogger(l *zap.Logger) Option       { return func(o *Options) { o.Logger = l } }
func WithForwardHeaders(h ...string) Option { return func(o *Options) { o.ForwardHeaders = h } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a GraphQL HTTP handler running documents on exec.
func New(exec executor.Executor, opts ...Option) (*Handler, error) {
	if exec == nil {
		return nil, errNoExecutor
	}
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	h := &Handler{exec: exec, opt: op, allow: map[string]struct{}{}}
	if op.APQ != nil {
		h.docs = append(h.docs, op.APQ)
	}
	h.docs = append(h.docs, apq.QueryText{})
	for _, hdr := range op.ForwardHeaders {
		h.allow[http.CanonicalHeaderKey(hdr)] = struct{}{}
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{RequestID: rid, Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{RequestID: rid, Request: r, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		h.writeJSON(w, status, messageResponse("method not allowed"))
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = berr.status
		h.writeJSON(w, status, messageResponse(berr.message))
		return
	}
	fwd := h.forwarded(r.Header)

	if batch != nil {
		out := make([]any, len(batch))
		for i := range batch {
			res, st := h.executeOne(ctx, batch[i], fwd)
			if st == http.StatusInternalServerError {
				status = st
				h.writeJSON(w, status, res)
				return
			}
			out[i] = res
		}
		h.writeJSON(w, status, out)
		return
	}

	res, st := h.executeOne(ctx, req, fwd)
	status = st
	h.writeJSON(w, status, res)
}

// executeOne resolves and runs a single request. Status is 200 unless the
// request could not be attempted at all.
func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest, fwd http.Header) (any, int) {
	out, err := h.docs.ResolveDocument(ctx, apq.Request{Query: req.Query, Extensions: req.Extensions})
	if err != nil {
		h.opt.Logger.Error("document resolution failed", zap.Error(err))
		return messageResponse("internal server error"), http.StatusInternalServerError
	}
	switch out.Kind {
	case apq.OutcomeDeferred:
		return messageResponse("missing 'query'"), http.StatusBadRequest
	case apq.OutcomeFailed:
		return out.Err.Response(), http.StatusOK
	}

	opType := operationType(out.Query, req.OperationName)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: out.Query, OperationName: req.OperationName, OperationType: opType})
	res := h.exec.Execute(ctx, executor.Params{
		Query:         out.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Variables:     req.Variables,
		Header:        fwd,
	})
	errs := make([]error, len(res.Errors))
	for i := range res.Errors {
		errs[i] = res.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         out.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return res, http.StatusOK
}

// operationType reports the type of the operation that will run, or "" when
// the document does not parse or the operation cannot be chosen.
func operationType(query, name string) string {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return ""
	}
	if def := doc.Operations.ForName(name); def != nil {
		return string(def.Operation)
	}
	return ""
}

func (h *Handler) forwarded(in http.Header) http.Header {
	if len(h.allow) == 0 {
		return nil
	}
	out := http.Header{}
	for k, v := range in {
		if _, ok := h.allow[http.CanonicalHeaderKey(k)]; ok {
			out[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := codec.Encode(w, v, h.opt.Pretty); err != nil {
		h.opt.Logger.Debug("write response", zap.Error(err))
	}
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	wildcard := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		if o == "*" || o == origin {
			allowed = true
		}
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Expose-Headers", reqid.Header)
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func acceptsJSON(contentType string) bool {
	ct := strings.TrimSpace(strings.ToLower(contentType))
	return ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;")
}
