// Package fetch performs the HTTP request of the action, retries it, streams the
// response into the destination sink and publishes the results to the run context.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/apifetch/internal/charset"
	"github.com/loykin/apifetch/internal/common"
	"github.com/loykin/apifetch/internal/config"
	"github.com/loykin/apifetch/internal/constants"
	"github.com/loykin/apifetch/internal/httpc"
	"github.com/loykin/apifetch/internal/metrics"
	"github.com/loykin/apifetch/internal/retry"
	"github.com/loykin/apifetch/internal/sink"
	"github.com/loykin/apifetch/internal/store"
	"golang.org/x/net/http/httpguts"
)

// RunContext is the key-value store of one pipeline run.
type RunContext interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Result describes a successful run.
type Result struct {
	Path       string
	Headers    map[string]string
	StatusCode int
	Bytes      int64
	Attempts   int

	published []string
}

// Executor runs fetch-and-store actions. The zero value writes to local paths only,
// retries immediately and logs through the default logger.
type Executor struct {
	Sinks   *sink.Resolver
	Retry   *retry.Config // delays only; the attempt bound comes from RequestSpec.Retries
	Logger  *common.Logger
	Metrics *metrics.Metrics
	Store   *store.Store
	// MetricsTextfile, when set, receives the metrics after every Execute.
	MetricsTextfile string
}

func (e *Executor) logger() *common.Logger {
	if e.Logger != nil {
		return e.Logger.WithComponent("fetch")
	}
	return common.GetLogger().WithComponent("fetch")
}

func (e *Executor) retryConfig(req config.RequestSpec, log *common.Logger) *retry.Config {
	rc := retry.DefaultRetryConfig()
	if e.Retry != nil {
		c := *e.Retry
		rc = &c
	}
	rc.MaxRetries = req.Retries
	rc.Logger = log
	return rc
}

// Run performs up to req.Retries+1 attempts and publishes the result on success.
func (e *Executor) Run(ctx context.Context, req config.RequestSpec, out config.OutputTarget, rc RunContext) (*Result, error) {
	res, _, err := e.run(ctx, req, out, rc)
	return res, err
}

func (e *Executor) run(ctx context.Context, req config.RequestSpec, out config.OutputTarget, rc RunContext) (*Result, int, error) {
	log := e.logger().WithRequest(req.Method, req.URL)
	var res *Result
	attempts, err := retry.Do(ctx, e.retryConfig(req, log), func(ctx context.Context, n int) (retry.Outcome, error) {
		r, outcome, err := e.attempt(ctx, req, out, log.WithAttempt(n, req.Retries+1))
		e.Metrics.RecordAttempt(outcome.String())
		if outcome == retry.Success {
			res = r
		}
		return outcome, err
	})
	if err != nil {
		return nil, attempts, err
	}
	res.Attempts = attempts

	encoded, err := json.Marshal(res.Headers)
	if err != nil {
		return nil, attempts, fmt.Errorf("encode response headers: %w", err)
	}
	if rc != nil {
		rc.Set(out.ResultPathVar, out.DestinationPath)
		rc.Set(out.ResponseHeadersVar, string(encoded))
		res.published = []string{out.ResultPathVar, out.ResponseHeadersVar}
	}
	log.Info("fetch completed", "path", res.Path, "status", res.StatusCode, "bytes", res.Bytes, "attempts", attempts)
	return res, attempts, nil
}

// attempt makes one request. The response body and sink writer are closed before it returns.
func (e *Executor) attempt(ctx context.Context, req config.RequestSpec, out config.OutputTarget, log *common.Logger) (*Result, retry.Outcome, error) {
	r, err := newRequest(ctx, req)
	if err != nil {
		return nil, retry.Fatal, err
	}
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		if perr := asProtocolError(req.URL, err); perr != nil {
			return nil, retry.Fatal, perr
		}
		e.logFailure(log, req, err)
		return nil, retry.Retryable, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	if resp.StatusCode() >= http.StatusBadRequest {
		serr := &StatusError{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode(), Status: resp.Status()}
		e.logFailure(log, req, serr)
		return nil, retry.Retryable, serr
	}

	n, err := e.persist(ctx, body, out, req.Charset)
	if err != nil {
		if errors.Is(err, sink.ErrUnsupported) {
			return nil, retry.Fatal, err
		}
		e.logFailure(log, req, err)
		return nil, retry.Retryable, err
	}
	e.Metrics.AddBytes(n)
	return &Result{
		Path:       out.DestinationPath,
		Headers:    FlattenHeaders(resp.Header()),
		StatusCode: resp.StatusCode(),
		Bytes:      n,
	}, retry.Success, nil
}

func (e *Executor) logFailure(log *common.Logger, req config.RequestSpec, err error) {
	log.Warn("Error making request", "error", err, "headers", common.MaskHeaders(req.Headers))
}

// persist streams body to the destination, decoding text responses to UTF-8.
func (e *Executor) persist(ctx context.Context, body io.Reader, out config.OutputTarget, cs string) (int64, error) {
	src := body
	if out.OutputFormat != constants.OutputFormatBinary {
		dec, err := charset.NewDecodingReader(body, cs)
		if err != nil {
			return 0, err
		}
		src = dec
	}
	w, err := e.Sinks.Open(ctx, out.DestinationPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", out.DestinationPath, err)
	}
	defer func() { _ = w.Close() }()

	n, err := io.CopyBuffer(w, src, make([]byte, constants.BufferSize))
	if err != nil {
		return n, fmt.Errorf("write %s: %w", out.DestinationPath, err)
	}
	if err := w.Commit(); err != nil {
		return n, fmt.Errorf("commit %s: %w", out.DestinationPath, err)
	}
	return n, nil
}

// newRequest builds the request on a fresh client. Errors are *ProtocolError.
func newRequest(ctx context.Context, req config.RequestSpec) (*resty.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &ProtocolError{URL: req.URL, Err: err}
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return nil, &ProtocolError{URL: req.URL, Err: fmt.Errorf("unsupported protocol %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &ProtocolError{URL: req.URL, Err: errors.New("missing host")}
	}

	client := httpc.New(httpc.Options{
		ConnectTimeout:     req.ConnectTimeout,
		ReadTimeout:        req.ReadTimeout,
		FollowRedirects:    req.FollowRedirects,
		InsecureSkipVerify: req.InsecureSkipVerify,
	})
	r := client.R().SetContext(ctx).SetDoNotParseResponse(true)
	for k, v := range req.Headers {
		v = strings.TrimSpace(v)
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			return nil, &ProtocolError{URL: req.URL, Err: fmt.Errorf("invalid header %q", k)}
		}
		r.SetHeaderVerbatim(k, v)
	}
	if req.Body != nil {
		b, err := charset.EncodeString(*req.Body, req.Charset)
		if err != nil {
			return nil, &ProtocolError{URL: req.URL, Err: fmt.Errorf("encode body: %w", err)}
		}
		r.SetBody(b)
	}
	return r, nil
}

// asProtocolError recognizes transport errors that no retry can fix.
func asProtocolError(rawURL string, err error) *ProtocolError {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return nil
	}
	msg := uerr.Err.Error()
	if strings.Contains(msg, "unsupported protocol scheme") || strings.Contains(msg, "invalid header field") ||
		strings.Contains(msg, "invalid method") {
		return &ProtocolError{URL: rawURL, Err: err}
	}
	return nil
}

// FlattenHeaders joins multi-valued headers with "," and drops empty names.
func FlattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if k == "" {
			continue
		}
		out[k] = strings.Join(v, ",")
	}
	return out
}
