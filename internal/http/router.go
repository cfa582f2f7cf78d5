package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/openshelf/lendhub/internal/auth"
	"github.com/openshelf/lendhub/internal/borrow"
	"github.com/openshelf/lendhub/internal/cache"
	"github.com/openshelf/lendhub/internal/config"
	"github.com/openshelf/lendhub/internal/http/handlers"
	"github.com/openshelf/lendhub/internal/http/middlewares"
	"github.com/openshelf/lendhub/internal/observability"
	"github.com/openshelf/lendhub/internal/queue/redisclient"
	"github.com/openshelf/lendhub/internal/ratelimit"
	"github.com/openshelf/lendhub/internal/repo/postgres"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func NewRouter(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, rdb *redisclient.Client) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	prom := observability.NewProm(reg)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(otelgin.Middleware("lendhub-api"))
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))

	// repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	booksRepo := postgres.NewBooksRepo(pool, prom)
	loansRepo := postgres.NewLoansRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(pool)

	// services
	borrowSvc := borrow.NewService(usersRepo, booksRepo, loansRepo, log)
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	bookCache := cache.New(30 * time.Second)

	// the signup/signin budget shares one counter store across instances
	counterStore := ratelimit.NewRedisStore(rdb.Raw())
	authLimiter := ratelimit.New(counterStore, ratelimit.Config{
		Limit:    cfg.RateLimit,
		Window:   cfg.RateWindow,
		FailOpen: cfg.RateFailOpen,
	}, log)

	authMW := middlewares.NewAuthMiddleware(jwtManager)

	// handlers
	healthHandler := handlers.NewHealthHandler(pool, rdb)
	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jobsRepo, jwtManager, refreshRepo, cfg, log)
	booksHandler := handlers.NewBooksHandler(booksRepo, bookCache)
	loansHandler := handlers.NewLoansHandler(borrowSvc, bookCache, prom)
	adminUsersHandler := handlers.NewAdminUsersHandler(usersRepo)

	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/sign-up", middlewares.RateLimit(authLimiter, prom, middlewares.KeyByIP), authHandler.SignUp)
		authGroup.POST("/sign-in", middlewares.RateLimit(authLimiter, prom, middlewares.KeyByIP), authHandler.SignIn)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	r.GET("/books", booksHandler.ListBooks)
	r.GET("/books/:id", booksHandler.GetBookByID)

	authed := r.Group("/")
	authed.Use(authMW.RequireAuth())
	{
		authed.POST("/books/:id/borrow", middlewares.RateLimit(authLimiter, prom, middlewares.KeyByUserOrIP), loansHandler.Borrow)
		authed.POST("/loans/:id/return", loansHandler.Return)
		authed.GET("/loans", loansHandler.ListMine)
		authed.POST("/auth/logout-all", authHandler.LogoutAll)
	}

	admin := r.Group("/admin")
	admin.Use(authMW.RequireAuth(), authMW.RequireRole("ADMIN"))
	{
		admin.POST("/books", booksHandler.CreateBook)
		admin.PATCH("/books/:id/copies", booksHandler.AdjustCopies)
		admin.PATCH("/users/:id/approve", adminUsersHandler.Approve)
	}

	return r
}
