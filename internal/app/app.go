package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/research-reports/internal/data/db"
	"github.com/yungbote/research-reports/internal/data/repos"
	apphttp "github.com/yungbote/research-reports/internal/http"
	httpH "github.com/yungbote/research-reports/internal/http/handlers"
	"github.com/yungbote/research-reports/internal/observability"
	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/platform/neo4jdb"
	"github.com/yungbote/research-reports/internal/platform/openai"
	"github.com/yungbote/research-reports/internal/realtime"
	"github.com/yungbote/research-reports/internal/realtime/bus"
	"github.com/yungbote/research-reports/internal/reportgen"
	"github.com/yungbote/research-reports/internal/services"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Metrics *observability.Metrics
	Hub     *realtime.Hub
	Events  bus.Bus
	Graph   *neo4jdb.Client
	Gateway *reportgen.Gateway
	Reports services.ReportService
	Server  *apphttp.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

// NewLogger builds the process logger for cfg.LogMode.
func NewLogger(cfg Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDatabase connects to Postgres and applies migrations when cfg.AutoMigrate is set.
func OpenDatabase(log *logger.Logger, cfg Config, migrate bool) (*db.PostgresService, error) {
	pg, err := db.NewPostgresService(log, cfg.PostgresConfig())
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if migrate {
		if err := db.AutoMigrateAll(pg.DB()); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
	}
	return pg, nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg, otelShutdown: func(context.Context) error { return nil }}

	if cfg.Metrics {
		a.Metrics = observability.Init(log)
	}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.OtelConfig())

	pg, err := OpenDatabase(log, cfg, cfg.AutoMigrate)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pg = pg
	a.DB = pg.DB()

	gateway, completer, err := wirePipeline(ctx, log, cfg, a.DB, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gateway

	prompts, err := reportgen.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Events = wireEvents(log, cfg)
	a.Hub = realtime.NewHub(log)

	graph, err := neo4jdb.NewClient(log, neo4jdb.ConfigFromEnv())
	if err != nil {
		log.Warn("neo4j unavailable; provenance graph disabled", "error", err)
		graph = nil
	}
	a.Graph = graph

	a.Reports = services.NewReportService(
		log,
		repos.NewReportRepo(a.DB, log),
		gateway,
		reportgen.NewSectionProcessor(log, gateway, completer, prompts, reportgen.SectionProcessorConfig{
			Timeout:          cfg.Generation.SectionTimeout,
			MaxDocumentChars: cfg.Generation.MaxDocumentChars,
		}),
		reportgen.NewSynthesizer(log, completer, prompts, cfg.Generation.SynthesisTimeout),
		reportgen.NewPromptAnalyzer(log, completer, prompts, cfg.Generation.AnalysisTimeout),
		a.Events,
		a.Graph,
		a.Metrics,
		cfg.ServiceConfig(),
	)

	a.Server = apphttp.NewServer(apphttp.RouterConfig{
		Log:           log,
		ServiceName:   cfg.ServiceName,
		CORSOrigins:   cfg.CORSOrigins,
		Metrics:       a.Metrics,
		ReportHandler: httpH.NewReportHandler(log, a.Reports, a.Hub),
		HealthHandler: httpH.NewHealthHandler(a.DB),
	})
	return a, nil
}

// wirePipeline builds the document gateway and the completion adapter over one OpenAI client.
func wirePipeline(ctx context.Context, log *logger.Logger, cfg Config, gdb *gorm.DB, metrics *observability.Metrics) (*reportgen.Gateway, reportgen.Completer, error) {
	aiCfg := openai.ConfigFromEnv()
	if aiCfg.Timeout < cfg.Generation.SynthesisTimeout {
		aiCfg.Timeout = cfg.Generation.SynthesisTimeout
	}
	ai, err := openai.NewClient(log, aiCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init openai: %w", err)
	}
	store, err := resolveVectorStore(ctx, log, cfg, metrics)
	if err != nil {
		return nil, nil, err
	}
	gateway := reportgen.NewGateway(log, ai, store, repos.NewDocumentRepo(gdb, log), cfg.Generation.CallTimeout)
	return gateway, reportgen.NewOpenAICompleter(ai), nil
}

// wireEvents prefers Redis so events reach subscribers on every instance.
func wireEvents(log *logger.Logger, cfg Config) bus.Bus {
	if cfg.Redis.Addr != "" {
		b, err := bus.NewRedisBus(log, cfg.RedisConfig())
		if err == nil {
			return b
		}
		log.Warn("redis event bus unavailable; falling back to in-process bus", "error", err)
	}
	return bus.NewLocalBus()
}

// Run forwards bus events into the SSE hub and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Events.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	a.Log.Info("serving", "addr", a.Cfg.HTTPAddr, "vector_provider", a.Cfg.Vector.Provider)
	return a.Server.Run(ctx, a.Cfg.HTTPAddr, a.Cfg.DrainTimeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.Events != nil {
		_ = a.Events.Close()
	}
	if a.Graph != nil {
		_ = a.Graph.Close(ctx)
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// IndexCollection embeds and upserts every stored document of collectionID.
func (a *App) IndexCollection(ctx context.Context, collectionID string) (int, error) {
	if a == nil || a.Gateway == nil {
		return 0, fmt.Errorf("app not initialized")
	}
	return a.Gateway.IndexCollection(ctx, collectionID)
}
