// Package api exposes the timer engine over HTTP.
//
// Authentication is out of scope: the caller's identity is taken from the
// X-User-ID header, which a fronting proxy is expected to set.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/timekeep/internal/engine"
	"github.com/roach88/timekeep/internal/model"
)

// UserHeader carries the authenticated user id.
const UserHeader = "X-User-ID"

type userKey struct{}

// Options configures the handler.
type Options struct {
	Engine *engine.Engine
	Logger *slog.Logger
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type api struct {
	eng *engine.Engine
	log *slog.Logger
}

// New returns the HTTP handler.
func New(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &api{eng: opts.Engine, log: log.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		write(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireUser)
		r.Route("/timer", func(r chi.Router) {
			r.Get("/", a.current)
			r.Post("/start", a.start)
			r.Post("/stop", a.stop)
			r.Post("/reset", a.reset)
			r.Post("/heartbeat", a.heartbeat)
			r.Post("/ack", a.ack)
			r.Post("/interrupt", a.interrupt)
		})
		r.Post("/entries", a.createEntry)
	})
	return r
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(UserHeader)
		if user == "" {
			write(rw, http.StatusUnauthorized, Response{
				Message: "missing " + UserHeader + " header",
				Code:    string(engine.ErrCodeUnauthorized),
			})
			return
		}
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userID(r *http.Request) string {
	user, _ := r.Context().Value(userKey{}).(string)
	return user
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// respond writes result, or maps err to a status code.
func (a *api) respond(rw http.ResponseWriter, r *http.Request, result any, err error) {
	if err != nil {
		if !engine.IsValidationError(err) && !engine.IsUnauthorizedError(err) {
			a.log.Error("request failed", "path", r.URL.Path, "user", userID(r), "error", err)
		}
		writeError(rw, err)
		return
	}
	write(rw, http.StatusOK, result)
}

func (a *api) start(rw http.ResponseWriter, r *http.Request) {
	var in engine.StartInput
	if !read(rw, r, &in) {
		return
	}
	res, err := a.eng.Start(r.Context(), userID(r), in)
	a.respond(rw, r, res, err)
}

type stopRequest struct {
	Source model.Source `json:"source,omitempty" validate:"omitempty,oneof=timer manual autoStop pomodoroBreak"`
}

func (a *api) stop(rw http.ResponseWriter, r *http.Request) {
	var in stopRequest
	if !read(rw, r, &in) {
		return
	}
	res, err := a.eng.Stop(r.Context(), userID(r), in.Source)
	a.respond(rw, r, res, err)
}

func (a *api) reset(rw http.ResponseWriter, r *http.Request) {
	res, err := a.eng.Reset(r.Context(), userID(r))
	a.respond(rw, r, res, err)
}

func (a *api) heartbeat(rw http.ResponseWriter, r *http.Request) {
	res, err := a.eng.Heartbeat(r.Context(), userID(r))
	a.respond(rw, r, res, err)
}

type ackRequest struct {
	Continue *bool `json:"continue" validate:"required"`
}

func (a *api) ack(rw http.ResponseWriter, r *http.Request) {
	var in ackRequest
	if !read(rw, r, &in) {
		return
	}
	res, err := a.eng.AckInterrupt(r.Context(), userID(r), *in.Continue)
	a.respond(rw, r, res, err)
}

func (a *api) interrupt(rw http.ResponseWriter, r *http.Request) {
	res, err := a.eng.RequestInterrupt(r.Context(), userID(r))
	a.respond(rw, r, res, err)
}

func (a *api) current(rw http.ResponseWriter, r *http.Request) {
	res, err := a.eng.Current(r.Context(), userID(r))
	a.respond(rw, r, res, err)
}

func (a *api) createEntry(rw http.ResponseWriter, r *http.Request) {
	var in engine.ManualEntryInput
	if !read(rw, r, &in) {
		return
	}
	res, err := a.eng.CreateManualEntry(r.Context(), userID(r), in)
	if err == nil {
		write(rw, http.StatusCreated, res)
		return
	}
	a.respond(rw, r, nil, err)
}
