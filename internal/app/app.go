// Package app assembles the attendance ledger from configuration: the store
// backend, the optional report cache, the services and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-ledger-api/internal/handler"
	"github.com/noah-isme/attendance-ledger-api/internal/middleware"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/internal/repository"
	"github.com/noah-isme/attendance-ledger-api/internal/service"
	"github.com/noah-isme/attendance-ledger-api/pkg/cache"
	"github.com/noah-isme/attendance-ledger-api/pkg/config"
	"github.com/noah-isme/attendance-ledger-api/pkg/database"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
	"github.com/noah-isme/attendance-ledger-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-ledger-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-ledger-api/pkg/middleware/requestid"
	"github.com/noah-isme/attendance-ledger-api/pkg/response"
	"github.com/noah-isme/attendance-ledger-api/pkg/storage"
)

// Verifier decodes one durable table and returns its row count.
type Verifier struct {
	Name   string
	Verify func(ctx context.Context) (int, error)
}

// VerifyResult is the outcome of one Verifier.
type VerifyResult struct {
	Name  string
	Rows  int
	Error error
}

// ImportResult summarises one legacy attendance import.
type ImportResult struct {
	Read     int
	Imported int
}

type attendanceImporter interface {
	ImportRecords(ctx context.Context, records []models.AttendanceRecord) (int, error)
}

// App holds the wired services.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Clock    service.Clock
	Metrics  *service.MetricsService
	Sessions *service.SessionService
	Ledger   *service.LedgerService
	CheckIn  *service.CheckInService
	Reports  *service.ReportService
	Roster   *service.RosterService
	Auth     *service.AuthService
	Sweeper  *service.SessionSweeper

	cache     *service.CacheService
	importer  attendanceImporter
	verifiers []Verifier
	readiness []handler.ReadinessCheck
	closers   []func() error
}

type stores struct {
	sessions service.SessionStore
	ledger   service.AttendanceLedger
	importer attendanceImporter
	roster   service.RosterReader
}

// New wires the application. The clock may be nil for the system clock.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, clock service.Clock) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = service.SystemClock{}
	}
	a := &App{Config: cfg, Logger: log, Clock: clock, Metrics: service.NewMetricsService()}

	st, err := a.openStores(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	cacheSvc := a.openCache(ctx)
	a.cache = cacheSvc
	a.importer = st.importer

	validate := validator.New()
	a.Roster = service.NewRosterService(st.roster)
	a.Sessions = service.NewSessionService(st.sessions, st.roster, cacheSvc, a.Metrics, clock, validate, log, service.SessionServiceConfig{
		DefaultExpiryMinutes: cfg.Sessions.DefaultExpiryMinutes,
		MaxExpiryMinutes:     cfg.Sessions.MaxExpiryMinutes,
	})
	a.Ledger = service.NewLedgerService(st.ledger, cacheSvc, a.Metrics, log)
	a.CheckIn = service.NewCheckInService(a.Sessions, st.roster, a.Ledger, a.Metrics, validate, log, service.RetryConfig{
		MaxRetries:     cfg.Submit.BusyRetries,
		InitialBackoff: cfg.Submit.BusyBackoff,
	})
	a.Reports = service.NewReportService(st.sessions, st.ledger, st.roster, cacheSvc, cfg.Reports.CacheTTL, clock, validate, log)
	a.Auth = service.NewAuthService(validate, log, clock, service.AuthConfig{
		PasswordHash:      cfg.Admin.PasswordHash,
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	a.Sweeper = service.NewSessionSweeper(a.Sessions, cfg.Sessions.SweepInterval, log)
	return a, nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	cfg := a.Config
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		sessions := repository.NewSessionRepository(db, cfg.Store.LockTimeout)
		ledger := repository.NewAttendanceRepository(db, cfg.Store.LockTimeout, a.Clock.Now)
		a.verifiers = append(a.verifiers,
			Verifier{Name: "sessions", Verify: sessions.Verify},
			Verifier{Name: "attendance", Verify: ledger.Verify},
		)
		a.readiness = append(a.readiness, handler.ReadinessCheck{Name: "postgres", Check: db.PingContext})
		a.Logger.Info("using postgres store", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Name))
		return &stores{sessions: sessions, ledger: ledger, importer: ledger, roster: repository.NewRosterRepository(db)}, nil
	default:
		local, err := storage.NewLocalStorage(cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open data dir: %w", err)
		}
		local.SetLogger(a.Logger)
		sessions := repository.NewSessionFileRepository(local, cfg.Store.LockTimeout)
		ledger := repository.NewAttendanceFileRepository(local, cfg.Store.LockTimeout, a.Clock.Now)
		roster := repository.NewRosterCSVRepository(cfg.Roster.Dir)
		a.verifiers = append(a.verifiers,
			Verifier{Name: "sessions", Verify: sessions.Verify},
			Verifier{Name: "attendance", Verify: ledger.Verify},
		)
		a.readiness = append(a.readiness,
			handler.ReadinessCheck{Name: "sessions", Check: discardCount(sessions.Verify)},
			handler.ReadinessCheck{Name: "attendance", Check: discardCount(ledger.Verify)},
		)
		a.Logger.Info("using file store", zap.String("data_dir", cfg.Store.DataDir), zap.String("roster_dir", cfg.Roster.Dir))
		return &stores{sessions: sessions, ledger: ledger, importer: ledger, roster: roster}, nil
	}
}

// openCache connects Redis when report caching is enabled. A Redis outage
// at startup disables caching instead of failing the boot.
func (a *App) openCache(ctx context.Context) *service.CacheService {
	cfg := a.Config
	if !cfg.Reports.CacheEnabled {
		return service.NewCacheService(nil, a.Metrics, cfg.Reports.CacheTTL, a.Logger, false)
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		a.Logger.Warn("report cache disabled: redis unreachable", zap.Error(err))
		return service.NewCacheService(nil, a.Metrics, cfg.Reports.CacheTTL, a.Logger, false)
	}
	repo := repository.NewCacheRepository(client, a.Logger)
	a.closers = append(a.closers, repo.Close)
	a.readiness = append(a.readiness, handler.ReadinessCheck{Name: "redis", Check: repo.Ping})
	return service.NewCacheService(repo, a.Metrics, cfg.Reports.CacheTTL, a.Logger, true)
}

// Verify decodes every durable table without writing.
func (a *App) Verify(ctx context.Context) []VerifyResult {
	results := make([]VerifyResult, 0, len(a.verifiers))
	for _, v := range a.verifiers {
		rows, err := v.Verify(ctx)
		results = append(results, VerifyResult{Name: v.Name, Rows: rows, Error: err})
	}
	return results
}

// ImportLegacyAttendance loads the pre-ledger attendance sheet into the
// ledger. Keys already recorded are skipped, so a rerun adds nothing.
func (a *App) ImportLegacyAttendance(ctx context.Context, src io.Reader, dryRun bool) (*ImportResult, error) {
	records, err := repository.ReadLegacyAttendanceCSV(src)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Read: len(records)}
	if dryRun || len(records) == 0 {
		return result, nil
	}
	imported, err := a.importer.ImportRecords(ctx, records)
	if err != nil {
		return nil, err
	}
	result.Imported = imported
	if imported > 0 {
		a.cache.InvalidatePresence(ctx, "")
	}
	a.Logger.Info("legacy attendance imported", zap.Int("read", result.Read), zap.Int("imported", imported))
	return result, nil
}

// Router builds the gin engine with every route registered.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))
	r.Use(middleware.ResponseMeta())

	metricsHandler := handler.NewMetricsHandler(a.Metrics, a.readiness...)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(a.Auth)
	checkInHandler := handler.NewCheckInHandler(a.CheckIn, a.Ledger)
	sessionHandler := handler.NewSessionHandler(a.Sessions)
	rosterHandler := handler.NewRosterHandler(a.Roster)
	reportHandler := handler.NewReportHandler(a.Reports)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/checkin/resolve", checkInHandler.Resolve)
	api.POST("/checkin", checkInHandler.CheckIn)
	api.GET("/attendance/status", checkInHandler.Status)

	presenter := api.Group("")
	presenter.Use(middleware.JWT(a.Auth), middleware.RequireRoles(models.RolePresenter))
	presenter.GET("/classes", rosterHandler.ListClasses)
	presenter.GET("/classes/:id/subjects", rosterHandler.ListSubjects)
	presenter.GET("/classes/:id/participants", rosterHandler.ListParticipants)
	presenter.POST("/sessions", sessionHandler.Create)
	presenter.GET("/sessions", sessionHandler.List)
	presenter.POST("/sessions/sweep", sessionHandler.Sweep)
	presenter.GET("/sessions/:id", sessionHandler.Get)
	presenter.POST("/sessions/:id/deactivate", sessionHandler.Deactivate)
	presenter.GET("/reports/presence", reportHandler.Presence)
	presenter.GET("/reports/presence/export", reportHandler.Export)

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})
	return r
}

// Close stops the sweeper and releases store and cache connections.
func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func discardCount(fn func(ctx context.Context) (int, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
}
