package middlewares_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openshelf/lendhub/internal/http/middlewares"
	"github.com/openshelf/lendhub/internal/observability"
	"github.com/openshelf/lendhub/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimitedRouter(limit int, window time.Duration) *gin.Engine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Limit: limit, Window: window}, log)
	prom := observability.NewProm(prometheus.NewRegistry())

	r := gin.New()
	r.POST("/auth/sign-up", middlewares.RateLimit(limiter, prom, middlewares.KeyByIP), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"success": true})
	})
	return r
}

func TestRateLimit_DeniesOverBudget(t *testing.T) {
	r := newLimitedRouter(2, time.Minute)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/sign-up", nil))

		if w.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want 201", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/sign-up", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing on 429")
	}
}

func TestRateLimit_SeparateIdentities(t *testing.T) {
	r := newLimitedRouter(1, time.Minute)

	first := httptest.NewRequest(http.MethodPost, "/auth/sign-up", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, first)
	if w.Code != http.StatusCreated {
		t.Fatalf("first identity: status = %d", w.Code)
	}

	// A different caller still has its full budget.
	second := httptest.NewRequest(http.MethodPost, "/auth/sign-up", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, second)
	if w.Code != http.StatusCreated {
		t.Fatalf("second identity: status = %d", w.Code)
	}
}
