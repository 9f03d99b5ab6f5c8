package commands

import (
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/insoln/slack-mm2/config"
	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/services/entity"
	"github.com/insoln/slack-mm2/services/export"
	"github.com/insoln/slack-mm2/services/importer"
	"github.com/insoln/slack-mm2/services/jobs"
	"github.com/insoln/slack-mm2/services/mmclient"
	"github.com/insoln/slack-mm2/services/slackclient"
)

// app is the wired service graph behind every command.
type app struct {
	cfg    *config.AppConfig
	logger *log.Logger
	conn   *sqlx.DB

	entitiesRepo  *db.PostgresEntitiesRepository
	relationsRepo *db.PostgresRelationsRepository
	jobsRepo      *db.PostgresJobsRepository

	entities     *entity.Service
	mm           *mmclient.Client
	slack        *slackclient.Client
	importer     *importer.Service
	orchestrator *export.Orchestrator
	supervisor   *jobs.Supervisor
	plugin       *mmclient.PluginAdmin
}

// buildApp loads the environment config and connects everything. The
// schema is applied on the way up unless startup tasks are disabled.
func buildApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel)

	conn, err := db.NewConnection(cfg.Database.URL, db.PoolOptions{
		Size:     cfg.Database.PoolSize,
		Overflow: cfg.Database.MaxOverflow,
		Timeout:  int(cfg.Database.PoolTimeout / time.Second),
	})
	if err != nil {
		return nil, err
	}
	if !cfg.SkipStartupTasks {
		if err := db.Migrate(conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	a := &app{cfg: cfg, logger: logger, conn: conn}
	a.entitiesRepo = db.NewPostgresEntitiesRepository(conn, cfg.Database.Schema)
	a.relationsRepo = db.NewPostgresRelationsRepository(conn, cfg.Database.Schema)
	a.jobsRepo = db.NewPostgresJobsRepository(conn, cfg.Database.Schema)

	a.entities = entity.NewService(a.entitiesRepo, a.relationsRepo, logger)
	a.mm = mmclient.NewClient(cfg.Mattermost.URL, cfg.Mattermost.Token, mmclient.Options{
		PluginID:       cfg.Plugin.ID,
		MaxConnections: cfg.Mattermost.MaxConnections,
		MaxKeepalive:   cfg.Mattermost.MaxKeepalive,
		EnableHTTP2:    cfg.Mattermost.EnableHTTP2,
	}, logger)
	a.slack = slackclient.NewClient(cfg.Slack.BotToken, cfg.Slack.DownloadRPS, nil, logger)

	exporters := export.NewExporters(a.entities, a.mm, a.slack, cfg, logger)
	a.orchestrator = export.NewOrchestrator(exporters, a.jobsRepo, cfg, logger)
	a.importer = importer.NewService(a.jobsRepo, a.entities, a.slack, a.orchestrator, logger)
	a.supervisor = jobs.NewSupervisor(a.jobsRepo, a.entitiesRepo, a.orchestrator, logger)
	a.plugin = mmclient.NewPluginAdmin(a.mm, cfg.Plugin.ID, cfg.Plugin.BundlePath, logger)
	return a, nil
}

func (a *app) Close() {
	if err := a.conn.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}
