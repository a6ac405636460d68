package upstream

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hanpama/apqgate/internal/codec"
	eventbus "github.com/hanpama/apqgate/internal/eventbus"
	events "github.com/hanpama/apqgate/internal/events"
	"github.com/hanpama/apqgate/internal/executor"
	reqid "github.com/hanpama/apqgate/internal/reqid"
)

// Transport forwards resolved documents to upstream GraphQL servers as plain
// POST requests. Endpoints are used round-robin; failed calls are retried
// except for mutations.

type Transport struct {
	opts   *Options
	client *retryablehttp.Client
	next   atomic.Uint64
	closed atomic.Bool
}

var _ executor.Executor = (*Transport)(nil)

type noRetryKey struct{}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	c := retryablehttp.NewClient()
	c.RetryMax = o.RetryMax
	c.RetryWaitMin = 50 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.Logger = leveledLogger{o.Logger.Sugar()}
	if o.HTTPClient != nil {
		c.HTTPClient = o.HTTPClient
	}
	c.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Value(noRetryKey{}) != nil {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	// Hand the last upstream response back instead of a generic error.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Transport{opts: o, client: c}
}

// Close makes subsequent calls fail and drops idle connections.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.HTTPClient.CloseIdleConnections()
	return nil
}

type wireRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

const failedMessage = "upstream request failed"

func (t *Transport) Execute(ctx context.Context, p executor.Params) *executor.Result {
	res, err := t.call(ctx, p)
	if err != nil {
		t.opts.Logger.Warn("upstream call failed",
			zap.String("operation", p.OperationName), zap.Error(err))
		return executor.ErrorResult(failedMessage)
	}
	return res
}

func (t *Transport) call(ctx context.Context, p executor.Params) (res *executor.Result, err error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return nil, errors.New("upstream: provider not configured")
	}
	if _, ok := ctx.Deadline(); !ok && t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}
	if p.OperationType == "mutation" {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	eps, err := t.opts.Provider.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}
	ep := eps[(t.next.Add(1)-1)%uint64(len(eps))]

	body, err := codec.Marshal(wireRequest{Query: p.Query, OperationName: p.OperationName, Variables: p.Variables})
	if err != nil {
		return nil, errors.Wrap(err, "upstream: encode request")
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, ep, body)
	if err != nil {
		return nil, errors.Wrap(err, "upstream: build request")
	}
	for k, vs := range p.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id, ok := reqid.FromContext(ctx); ok {
		req.Header.Set(reqid.Header, id)
	}

	status := 0
	start := time.Now()
	eventbus.Publish(ctx, events.UpstreamStart{Endpoint: ep, OperationName: p.OperationName})
	defer func() {
		eventbus.Publish(ctx, events.UpstreamFinish{
			Endpoint:      ep,
			OperationName: p.OperationName,
			Status:        status,
			Err:           err,
			Duration:      time.Since(start),
		})
	}()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "upstream: %s", ep)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	var out executor.Result
	if derr := codec.NewDecoder(resp.Body).Decode(&out); derr != nil {
		if status >= http.StatusMultipleChoices {
			return nil, errors.Errorf("upstream: %s responded %d", ep, status)
		}
		return nil, errors.Wrapf(derr, "upstream: decode response from %s", ep)
	}
	if out.Data == nil && len(out.Errors) == 0 {
		return nil, errors.Errorf("upstream: %s responded %d without data or errors", ep, status)
	}
	return &out, nil
}

type leveledLogger struct{ s *zap.SugaredLogger }

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
