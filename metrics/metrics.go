// Package metrics defines prometheus metrics for the generation pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compgen_llm_attempts_total",
			Help: "LLM calls by model and result",
		},
		[]string{"model", "result"}, // result: ok or an llm.ErrorType
	)
	CallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compgen_llm_call_duration_seconds",
			Help:    "Duration of single LLM calls",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s..256s
		},
		[]string{"model"},
	)
	WarmUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compgen_warmups_total",
			Help: "Model warm-up pings by result",
		},
		[]string{"model", "result"},
	)
	Fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compgen_fallbacks_total",
			Help: "Fallback model attempts by result",
		},
		[]string{"model", "result"},
	)
	Repairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compgen_json_repairs_total",
			Help: "Quote repairs run on model output",
		},
		[]string{"result"}, // result: valid|invalid|mismatch
	)
	Invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compgen_invocations_total",
			Help: "Generate invocations by final state",
		},
		[]string{"state"},
	)
	InvocationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compgen_invocation_duration_seconds",
			Help:    "End-to-end invocation duration including retries",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s..512s
		},
	)
)

func init() {
	prometheus.MustRegister(
		Attempts,
		CallDurationSeconds,
		WarmUps,
		Fallbacks,
		Repairs,
		Invocations,
		InvocationDurationSeconds,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func IncAttempt(model, result string) {
	Attempts.WithLabelValues(model, result).Inc()
}

func ObserveCall(model string, d time.Duration) {
	CallDurationSeconds.WithLabelValues(model).Observe(d.Seconds())
}

func IncWarmUp(model string, ok bool) {
	WarmUps.WithLabelValues(model, result(ok)).Inc()
}

func IncFallback(model string, ok bool) {
	Fallbacks.WithLabelValues(model, result(ok)).Inc()
}

func IncRepair(result string) {
	Repairs.WithLabelValues(result).Inc()
}

func IncInvocation(state string) {
	Invocations.WithLabelValues(state).Inc()
}

func ObserveInvocation(d time.Duration) {
	InvocationDurationSeconds.Observe(d.Seconds())
}

// Middleware times every call made through an llm.Client and counts its
// result. Each call gets its own request copy so concurrent calls do not
// share a start time. Install it last in a middleware chain.
func Middleware() llm.Middleware {
	var started sync.Map // *llm.Request -> time.Time

	finish := func(req *llm.Request, res string) {
		if v, ok := started.LoadAndDelete(req); ok {
			ObserveCall(req.Model, time.Since(v.(time.Time)))
		}
		IncAttempt(req.Model, res)
	}

	return llm.MiddlewareFunc{
		BeforeRequestFunc: func(_ context.Context, req *llm.Request) (*llm.Request, error) {
			own := *req
			started.Store(&own, time.Now())
			return &own, nil
		},
		AfterResponseFunc: func(_ context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
			finish(req, "ok")
			return resp, nil
		},
		OnErrorFunc: func(_ context.Context, req *llm.Request, err error) error {
			finish(req, string(llm.TypeOf(err)))
			return err
		},
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
