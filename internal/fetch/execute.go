package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/apifetch/internal/config"
	"github.com/loykin/apifetch/internal/store"
)

// Execute is the whole action: resolve placeholders against rc, validate, run,
// then record history and flush metrics. Configuration errors are returned as
// *config.ValidationError before any request is made.
func (e *Executor) Execute(ctx context.Context, cfg config.Config, rc RunContext) (*Result, error) {
	start := time.Now()
	runID := store.NewRunID()
	log := e.logger().WithRun(runID)

	run := store.Run{ID: runID, URL: cfg.URL, Method: cfg.Method, Destination: cfg.Path}
	res, attempts, err := e.execute(ctx, cfg, rc, &run)
	run.Attempts = attempts
	if res != nil {
		run.StatusCode = res.StatusCode
		run.Bytes = res.Bytes
	}
	if err != nil {
		run.Failed = true
		msg := err.Error()
		run.Error = &msg
		var se *StatusError
		if errors.As(err, &se) {
			run.StatusCode = se.StatusCode
		}
		log.Error("fetch failed", "error", err, "attempts", attempts)
	}

	e.record(ctx, run, res, rc)
	e.Metrics.RecordRun(err != nil, time.Since(start))
	if ferr := e.Metrics.WriteTextfile(e.MetricsTextfile); ferr != nil {
		log.Warn("failed to write metrics", "error", ferr)
	}
	return res, err
}

func (e *Executor) execute(ctx context.Context, cfg config.Config, rc RunContext, run *store.Run) (*Result, int, error) {
	var r config.Renderer
	if v, ok := rc.(config.Renderer); ok {
		r = v
	}
	resolved, err := cfg.Resolve(r)
	if err != nil {
		return nil, 0, err
	}
	req, out, err := resolved.Build()
	if err != nil {
		return nil, 0, err
	}
	run.URL, run.Method, run.Destination = req.URL, req.Method, out.DestinationPath
	return e.run(ctx, req, out, rc)
}

// record stores the run and, on success, the values it published. Store
// failures are logged and never fail the action.
func (e *Executor) record(ctx context.Context, run store.Run, res *Result, rc RunContext) {
	if e.Store == nil {
		return
	}
	log := e.logger().WithRun(run.ID).WithStore(e.Store.Driver())
	if _, err := e.Store.RecordRun(ctx, run); err != nil {
		log.Warn("failed to record run", "error", err)
		return
	}
	if res == nil || rc == nil {
		return
	}
	kv := map[string]string{}
	for _, k := range res.published {
		if v, ok := rc.Get(k); ok {
			kv[k] = v
		}
	}
	if err := e.Store.SaveContext(ctx, run.ID, kv); err != nil {
		log.Warn("failed to save run context", "error", err)
	}
}
