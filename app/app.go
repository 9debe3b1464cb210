package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"shopfloor/client/es"
	"shopfloor/config"
	"shopfloor/conversion"
	"shopfloor/dispatch"
	"shopfloor/domain"
	"shopfloor/domain/completion"
	"shopfloor/domain/fillwork"
	"shopfloor/domain/onsite"
	"shopfloor/domain/progress"
	"shopfloor/domain/transfer"
	"shopfloor/domain/workorder"
	"shopfloor/erpsync"
	"shopfloor/event"
	"shopfloor/indices"
	"shopfloor/lifecycle"
	"shopfloor/notify"
	"shopfloor/persistence"
	"shopfloor/scheduler"
	"shopfloor/servehttp"

	"github.com/sirupsen/logrus"
)

const catalogTTL = 5 * time.Minute

// App holds the wired components of the service.
type App struct {
	Registry *config.Registry
	DS       *persistence.DataSourceManager

	Dispatcher *dispatch.Dispatcher
	Cascade    *lifecycle.Cascade
	Ingestor   *fillwork.Ingestor
	Reporter   *onsite.Reporter
	Progress   *progress.Updater
	Judge      *completion.Judge
	Transfer   *transfer.Service
	ErpSync    *erpsync.Worker
	Conversion *conversion.Worker
	Indexer    *indices.ArchiveIndexer

	closers []io.Closer
}

// Options of New. A nil Source reads tenant views through gorm.
type Options struct {
	Source erpsync.Source
}

func New(registry *config.Registry, ds *persistence.DataSourceManager, opts Options) (*App, error) {
	snapshot := registry.Current()
	cfg := snapshot.Config
	a := &App{Registry: registry, DS: ds}

	a.Progress = progress.NewUpdater(ds)
	a.Judge = completion.NewJudge(ds, cfg.PackagingProcessName)
	a.Transfer = transfer.NewService(ds, a.Judge)
	a.Transfer.PurgeReports = cfg.PurgeReportsOnTransfer
	if err := a.wireArchiveHandlers(cfg); err != nil {
		a.Close()
		return nil, err
	}

	a.Cascade = lifecycle.NewCascade(a.Progress, a.Judge, a.Transfer, registry.Current)
	a.Dispatcher = dispatch.NewDispatcher(cfg.DispatchQueueSize, a.Cascade)
	a.Ingestor = fillwork.NewIngestor(ds, registry.Current, workorder.NewCatalog(catalogTTL), a.Dispatcher)
	a.Reporter = onsite.NewReporter(ds, a.Dispatcher)

	source := opts.Source
	if source == nil {
		gormSource := erpsync.NewGormSource()
		a.closers = append(a.closers, closerFunc(func() error { gormSource.Close(); return nil }))
		source = gormSource
	}
	a.ErpSync = erpsync.NewWorker(ds, source, erpsync.Filter{ExcludedFamilies: cfg.ExcludedFamilies, DateFloor: cfg.DateFloor})
	a.ErpSync.MinFetchInterval = cfg.MinFetchInterval

	templates, err := conversion.LoadTemplates(cfg.ProcessTemplatesFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Conversion = conversion.NewWorker(ds)
	a.Conversion.Templates = templates
	a.Conversion.Location = cfg.Location()
	if cfg.DefaultProcessName != "" {
		a.Conversion.DefaultProcess = cfg.DefaultProcessName
	}
	return a, nil
}

func (a *App) wireArchiveHandlers(cfg *config.Config) error {
	if cfg.ElasticsearchURL != "" {
		client, err := es.NewClient(cfg.ElasticsearchURL, cfg.Env != "prod")
		if err != nil {
			return fmt.Errorf("elasticsearch client: %w", err)
		}
		a.Indexer = indices.NewArchiveIndexer(a.DS, client, cfg.IndexName)
		a.Transfer.Handlers = append(a.Transfer.Handlers, a.Indexer.Handle)
	}
	if cfg.AMQPURL != "" {
		publisher, err := notify.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("amqp publisher: %w", err)
		}
		a.closers = append(a.closers, publisher)
		notifier := notify.NewNotifier(a.DS, publisher, cfg.AMQPExchange)
		a.Transfer.Handlers = append(a.Transfer.Handlers, notifier.Handle)
	}
	return nil
}

// Migrate creates or alters the tables of every entity.
func (a *App) Migrate() error {
	models := append(domain.Models(), &event.EventRecord{})
	return a.DS.GormDB(context.Background()).AutoMigrate(models...).Error
}

func (a *App) Tenants() []config.Tenant {
	return a.Registry.Current().Tenants
}

// Tasks binds the periodic jobs to the components.
func (a *App) Tasks() scheduler.Tasks {
	tasks := scheduler.Tasks{
		SyncTenant: func(ctx context.Context, tenant config.Tenant) error {
			return a.ErpSync.SyncTenant(ctx, tenant, erpsync.Options{AutoMode: true}).Err
		},
		ConvertOrders: func(ctx context.Context) error {
			_, err := a.Conversion.Run(ctx)
			return err
		},
		RecomputeProgress: func(ctx context.Context) error {
			_, err := a.Progress.RecomputeAll(ctx)
			return err
		},
		CheckCompletion: func(ctx context.Context, method domain.CompletionMethod) error {
			_, err := a.Judge.Sweep(ctx, method, a.Cascade.Complete)
			return err
		},
	}
	if a.Indexer != nil {
		tasks.RetryIndex = func(ctx context.Context) error {
			n, err := a.Indexer.RetryUnsynced(ctx)
			if n > 0 {
				logrus.Infof("reindexed %d archives", n)
			}
			return err
		}
	}
	return tasks
}

func (a *App) Services() *servehttp.Services {
	return &servehttp.Services{
		FillWorks:  a.Ingestor,
		Onsite:     a.Reporter,
		Completion: a.Judge,
		Transfer:   a.Transfer,
		ErpSync:    a.ErpSync,
		Tenants:    a.Tenants,
	}
}

func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logrus.Warnf("close failed: %v", err)
		}
	}
	a.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
