package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	businesshandler "github.com/quillbooks/quillbooks-core/domains/business/be/handler"
	businessrepo "github.com/quillbooks/quillbooks-core/domains/business/be/repo"
	businessservice "github.com/quillbooks/quillbooks-core/domains/business/be/service"
	onboardinghandler "github.com/quillbooks/quillbooks-core/domains/onboarding/be/handler"
	onboardingrepo "github.com/quillbooks/quillbooks-core/domains/onboarding/be/repo"
	onboardingservice "github.com/quillbooks/quillbooks-core/domains/onboarding/be/service"
	platformauth "github.com/quillbooks/quillbooks-core/platform/go/auth"
	"github.com/quillbooks/quillbooks-core/platform/go/gcp"
	"github.com/quillbooks/quillbooks-core/platform/go/kvcache"
	platformlogging "github.com/quillbooks/quillbooks-core/platform/go/logging"
	platformmiddleware "github.com/quillbooks/quillbooks-core/platform/go/middleware"
	"github.com/quillbooks/quillbooks-core/platform/go/persistence"
	"github.com/quillbooks/quillbooks-core/platform/go/session"
	"github.com/quillbooks/quillbooks-core/platform/go/tenant"
	tenantmiddleware "github.com/quillbooks/quillbooks-core/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	AuthProvider    string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	DefaultTenantID string        `env:"DEFAULT_TENANT_ID"`                   // last-resort tenant for single-tenant deployments
	CacheBackend    string        `env:"CACHE_BACKEND" envDefault:"memory"`   // memory | redis
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	DevProjectID    string        `env:"DEV_PROJECT_ID" envDefault:"local-quillbooks"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	defaultTenantID := uuid.Nil
	if cfg.DefaultTenantID != "" {
		defaultTenantID, err = uuid.Parse(cfg.DefaultTenantID)
		if err != nil {
			logger.Fatal("parse DEFAULT_TENANT_ID", zap.Error(err))
		}
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.Bootstrap(ctx, pool); err != nil {
		logger.Fatal("bootstrap database", zap.Error(err))
	}

	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{
		Pool:        pool,
		Provisioner: persistence.NewProvisioner(onboardingrepo.SeedDefaults),
	})

	var cache kvcache.Store
	switch cfg.CacheBackend {
	case "memory":
		cache = kvcache.NewMemory()
	case "redis":
		redisCache, err := kvcache.NewRedis(ctx, kvcache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			logger.Fatal("init redis cache", zap.Error(err))
		}
		defer redisCache.Close()
		cache = redisCache
	default:
		logger.Fatal("invalid CACHE_BACKEND (use memory or redis)", zap.String("backend", cfg.CacheBackend))
	}

	authMiddleware, fbAuth := buildAuthMiddleware(ctx, cfg, logger)

	// Onboarding writes attributes to the identity provider on the tenant's
	// owning user. Every onboarding call is made by that owner, so the
	// authenticated uid on the request context is the owner uid.
	var attrs onboardingservice.AttributeStore
	if fbAuth != nil {
		attrs = gcp.NewTenantAttributeStore(fbAuth, func(ctx context.Context, tenantID uuid.UUID) (string, error) {
			creds, ok := platformauth.UserFromContext(ctx)
			if !ok || creds == nil || creds.Id == "" {
				return "", errors.New("no authenticated user to resolve tenant owner")
			}
			return creds.Id, nil
		})
	} else {
		attrs = newLocalAttributeStore()
	}

	devTenant := cfg.DefaultTenantID
	if devTenant == "" {
		devTenant = "dev-tenant"
	}
	registry := session.NewRegistry(func(uid string) *session.Manager {
		var provider session.Provider
		if fbAuth != nil {
			provider = gcp.NewUserSessionProvider(fbAuth, uid)
		} else {
			provider = &devSessionProvider{uid: uid, projectID: cfg.DevProjectID, tenant: devTenant}
		}
		return session.NewManager(session.ManagerConfig{
			Provider: provider,
			Logger:   logger.With(zap.String("uid", uid)),
		})
	})

	businessRepo := businessrepo.New(tenantDB)
	businessService := businessservice.New(businessRepo)
	businessHTTPHandler := businesshandler.New(businessService, logger)

	onboardingRepo := onboardingrepo.New(tenantDB)
	onboardingService := onboardingservice.New(
		onboardingRepo,
		attrs,
		cache,
		&businessWriter{svc: businessService},
		logger,
	)
	onboardingHTTPHandler := onboardinghandler.New(onboardingService, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)

	// Session routes sit outside the tenant scope: refreshing credentials must
	// work even before a tenant can be resolved for the user.
	sessionValidator := mustNewSpecValidator(logger, "contracts/session.yaml")
	apiRouter.Group(func(r chi.Router) {
		r.Use(sessionValidator)
		r.Mount("/session", sessionRoutes(registry, logger))
	})

	apiRouter.Group(func(r chi.Router) {
		r.Use(tenantmiddleware.WithTenant(tenant.Resolver{DefaultTenantID: defaultTenantID}))

		onboardingValidator := mustNewSpecValidator(logger, "contracts/onboarding.yaml")
		r.Group(func(r chi.Router) {
			r.Use(onboardingValidator)
			r.Mount("/onboarding", onboardingHTTPHandler.Routes())
		})

		businessValidator := mustNewSpecValidator(logger, "contracts/business.yaml")
		r.Group(func(r chi.Router) {
			r.Use(businessValidator)
			r.Mount("/business", businessHTTPHandler.Routes())
		})
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// mustNewSpecValidator loads the OpenAPI document and builds oapi-codegen
// validator middleware so each contract group stays schema compliant.
func mustNewSpecValidator(logger *zap.Logger, path string) func(http.Handler) http.Handler {
	spec := mustLoadSpec(logger, path)
	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaSwagger,
		},
	})
}

// mustLoadSpec loads and returns the OpenAPI document for validation and docs
// serving. Relative $ref targets resolve against the contract's directory.
func mustLoadSpec(logger *zap.Logger, path string) *openapi3.T {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	absPath, err := filepath.Abs(path)
	if err != nil {
		logger.Fatal("resolve spec path", zap.String("path", path), zap.Error(err))
	}

	baseDir := filepath.Dir(absPath)
	loader.ReadFromURIFunc = func(loader *openapi3.Loader, ref *url.URL) ([]byte, error) {
		if ref == nil {
			return nil, errors.New("nil reference URI")
		}
		if ref.IsAbs() {
			switch ref.Scheme {
			case "file":
				data, err := os.ReadFile(ref.Path)
				if err != nil {
					return nil, fmt.Errorf("read reference %q: %w", ref.Path, err)
				}
				return data, nil
			default:
				return nil, fmt.Errorf("unsupported reference scheme %q", ref.String())
			}
		}
		refPath := filepath.Clean(ref.Path)
		if refPath == "" {
			return nil, fmt.Errorf("empty reference path for %q", ref.String())
		}
		candidate := filepath.Join(baseDir, refPath)
		data, err := os.ReadFile(candidate)
		if err != nil {
			return nil, fmt.Errorf("read reference %q: %w", candidate, err)
		}
		return data, nil
	}

	spec, err := loader.LoadFromFile(absPath)
	if err != nil {
		logger.Fatal("load openapi spec", zap.String("path", path), zap.Error(err))
	}
	logSecuritySchemes(logger, path, spec)
	return spec
}

func logSecuritySchemes(logger *zap.Logger, path string, spec *openapi3.T) {
	if spec.Components.SecuritySchemes == nil {
		spec.Components.SecuritySchemes = openapi3.SecuritySchemes{}
	}

	if _, ok := spec.Components.SecuritySchemes["bearerAuth"]; !ok {
		spec.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:   "http",
				Scheme: "bearer",
			},
		}
		logger.Warn("injecting default bearerAuth security scheme", zap.String("path", path))
	}

	names := make([]string, 0, len(spec.Components.SecuritySchemes))
	for name := range spec.Components.SecuritySchemes {
		names = append(names, name)
	}
	logger.Info("loaded security schemes", zap.String("path", path), zap.Strings("names", names))
}
