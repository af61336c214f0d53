package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"delivery-tracker/backend/internal/cache"
	"delivery-tracker/backend/internal/config"
	"delivery-tracker/backend/internal/database"
	"delivery-tracker/backend/internal/handlers"
	"delivery-tracker/backend/internal/middleware"
	"delivery-tracker/backend/internal/monitoring"
	"delivery-tracker/backend/internal/services"
	"delivery-tracker/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// App owns every long-lived resource of the API process.
type App struct {
	Config *config.Config
	Log    *zap.Logger
	Router *gin.Engine

	Pool     *database.DatabasePool
	Redis    *cache.RedisCache
	Cache    *cache.MultiLevelCache
	Projects *services.ProjectServiceImpl
	Queue    *worker.JobQueue
	Worker   *worker.Worker
	Limiter  *middleware.RateLimiter

	server   *http.Server
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	redisUp  bool
	closeErr error
	once     sync.Once
}

// PoolConfig maps the database settings onto a pool configuration.
func PoolConfig(cfg *config.Config) *database.PoolConfig {
	pc := database.DefaultPoolConfig()
	pc.Driver = cfg.Database.Driver
	pc.MaxOpenConns = cfg.Database.MaxOpenConns
	pc.MaxIdleConns = cfg.Database.MaxIdleConns
	pc.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	pc.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime
	pc.LogLevel = gormlogger.Warn
	if cfg.Database.Driver == database.DriverSQLite {
		pc.DSN = cfg.Database.SQLitePath
	} else {
		pc.DSN = cfg.GetDatabaseDSN()
	}
	return pc
}

func cacheConfig(cfg *config.Config) *cache.CacheConfig {
	cc := cache.DefaultCacheConfig()
	cc.Addr = cfg.GetRedisAddr()
	cc.Password = cfg.Redis.Password
	cc.DB = cfg.Redis.DB
	cc.PoolSize = cfg.Redis.PoolSize
	cc.MinIdleConns = cfg.Redis.MinIdleConns
	cc.MaxRetries = cfg.Redis.MaxRetries
	cc.DialTimeout = cfg.Redis.DialTimeout
	cc.ReadTimeout = cfg.Redis.ReadTimeout
	cc.WriteTimeout = cfg.Redis.WriteTimeout
	return cc
}

// NewApp opens the database and runs migrations. An unreachable redis is
// not fatal: the cache runs on memory and progress refreshes run in process.
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pool, err := database.NewDatabasePool(PoolConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(pool.DB); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	app := &App{Config: cfg, Log: log, Pool: pool}

	app.Redis = cache.NewRedisCache(cacheConfig(cfg))
	if err := app.Redis.Health(); err != nil {
		log.Warn("redis unavailable, running on the memory cache", zap.Error(err))
	} else {
		app.redisUp = true
	}
	app.Cache = cache.NewMultiLevelCache(app.Redis)

	loc := cfg.Location()
	tokens := services.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	members := services.NewMemberService(cfg.Auth.BCryptCost)
	app.Projects = services.NewProjectService(loc)
	tasks := services.NewTaskService()

	reports := services.NewCachedReportService(
		services.NewDashboardService(loc),
		services.NewReportService(),
		app.Cache,
	)
	reports.Log = log.Named("reports")
	members.OnChange(reports.Invalidate)
	app.Projects.OnChange(reports.Invalidate)
	tasks.OnChange(reports.Invalidate)

	app.Queue = worker.NewJobQueue(app.Redis.Client())
	app.Worker = worker.NewWorker(worker.WorkerConfig{
		RedisClient:  app.Redis.Client(),
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		Queues:       cfg.Worker.Queues,
		Logger:       log,
	})
	worker.RegisterProgressHandlers(app.Worker, pool.DB, app.Projects)

	monitor := monitoring.NewMonitor()
	monitor.RegisterHealthCheck("database", pool.HealthContext)
	monitor.RegisterStats("database", func() interface{} { return pool.Stats() })
	monitor.RegisterStats("cache", func() interface{} { return reports.CacheStats() })
	queues := append(append([]string{}, cfg.Worker.Queues...), worker.QueueRetry, worker.QueueDead)
	monitor.RegisterStats("queues", func() interface{} {
		if !app.redisUp {
			return nil
		}
		return app.Queue.Sizes(queues...)
	})
	if app.redisUp {
		monitor.RegisterHealthCheck("redis", app.Redis.HealthContext)
	}

	if cfg.RateLimit.Enabled {
		app.Limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin: cfg.RateLimit.RequestsPerMin,
			Burst:          cfg.RateLimit.BurstSize,
			IdleTTL:        cfg.RateLimit.CleanupInterval,
		})
	}

	var progressQueue handlers.ProgressQueue
	if app.redisUp {
		progressQueue = app.Queue
	}
	app.Router = NewRouter(Deps{
		DB:          pool.DB,
		Log:         log,
		Tokens:      tokens,
		Auth:        services.NewAuthService(tokens),
		Members:     members,
		Projects:    app.Projects,
		Tasks:       tasks,
		Dashboard:   reports,
		Reports:     reports,
		Monitor:     monitor,
		RateLimiter: app.Limiter,
		Location:    loc,
		Now:         time.Now,
		CORSOrigins: cfg.Server.CORSOrigins,

		ProgressQueue: progressQueue,
	})

	app.server = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

// StartBackground starts the job worker, the periodic progress refresh and
// the rate limiter cleanup. Without redis the refresh runs in process.
func (a *App) StartBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	interval := a.Config.Worker.ProgressRefresh

	if a.redisUp {
		a.Worker.Start(a.Config.Worker.Concurrency)
		a.goRun(func() { worker.RunRefreshTicker(ctx, a.Queue, interval, a.Log) })
	} else {
		a.goRun(func() {
			every(ctx, interval, func() {
				n, err := a.Projects.RefreshAllProgress(a.Pool.DB.WithContext(ctx), time.Now())
				if err != nil {
					a.Log.Warn("progress refresh failed", zap.Error(err))
					return
				}
				a.Log.Info("progress refreshed", zap.Int("projects", n))
			})
		})
	}

	if a.Limiter != nil {
		a.goRun(func() {
			every(ctx, a.Config.RateLimit.CleanupInterval, func() { a.Limiter.Cleanup() })
		})
	}
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// reported as an error.
func (a *App) ListenAndServe() error {
	a.Log.Info("listening", zap.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP requests, stops background work and closes the
// database and redis connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.once.Do(func() {
		var errs []error
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if a.cancel != nil {
			a.cancel()
			if a.redisUp {
				a.Worker.Stop()
			}
		}
		a.wg.Wait()
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
		if err := a.Pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
