package router

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	_ "isp-contracts/docs"
	mem "isp-contracts/internal/adapters/storage/memory"
	pg "isp-contracts/internal/adapters/storage/postgres"
	"isp-contracts/internal/domain/contracts"
	"isp-contracts/internal/domain/documents"
	"isp-contracts/internal/domain/signatures"
	"isp-contracts/internal/middleware"
	"isp-contracts/internal/platform/logger"
	"isp-contracts/internal/platform/metrics"
	"isp-contracts/internal/ports/auth"
	"isp-contracts/internal/ports/billing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Opcionales: sin Artifacts se guardan en memoria; sin Cache no hay cache.
	Artifacts contracts.ArtifactStore
	Cache     contracts.DocumentCache
	Notifier  billing.Notifier

	Logger    logger.Logger
	Registry  *prometheus.Registry
	Signature signatures.Options
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", healthHandler(opts))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	var (
		store contracts.Store
		audit contracts.AuditLog
		tx    contracts.Transactor
	)
	if opts.DB != nil {
		store = pg.NewContractsRepo(opts.DB)
		audit = pg.NewAuditRepo(opts.DB)
		tx = pg.NewTransactor(opts.DB)
	} else {
		store = mem.NewContractRepo()
		audit = mem.NewAuditLog()
		tx = mem.NewTransactor()
	}

	artifacts := opts.Artifacts
	if artifacts == nil {
		artifacts = mem.NewArtifactStore()
	}

	svc := contracts.NewService(contracts.Deps{
		Store:     store,
		Audit:     audit,
		Tx:        tx,
		Artifacts: artifacts,
		Renderer:  documents.NewRenderer(),
		Embedder:  documents.NewEmbedder(),
		Capturer:  signatures.NewCapturer(opts.Signature),
		Cache:     opts.Cache,
		Notifier:  opts.Notifier,
		Logger:    log,
		Metrics:   metrics.New(reg),
	})

	contracts.RegisterRoutes(r, svc)

	return r
}

// healthHandler: ok si la base y la cache (cuando existen) responden.
func healthHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if opts.DB != nil {
			if err := opts.DB.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if hc, ok := opts.Cache.(healthChecker); ok {
			if err := hc.Health(ctx); err != nil {
				http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
