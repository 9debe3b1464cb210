package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"shopfloor/app"
	"shopfloor/common"
	"shopfloor/config"
	"shopfloor/domain"
	"shopfloor/domain/completion"
	"shopfloor/domain/workorder"
	"shopfloor/erpsync"
	"shopfloor/infra/tracing"
	"shopfloor/persistence"
	"shopfloor/scheduler"
	"shopfloor/servehttp"

	"github.com/gin-gonic/gin"
	"github.com/juju/gnuflag"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type command struct {
	usage string
	flags func(f *gnuflag.FlagSet) func(ctx context.Context, a *app.App) (interface{}, int, error)
}

var commands = map[string]command{
	"serve":              {usage: "run the scheduler, dispatcher and HTTP surface", flags: serveFlags},
	"sync-orders":        {usage: "replicate ERP orders [-tenant CODE] [-limit N] [-auto]", flags: syncOrdersFlags},
	"convert-orders":     {usage: "convert pending company orders into work orders", flags: convertOrdersFlags},
	"recompute-progress": {usage: "recompute work order progress [-work-order KEY]", flags: recomputeProgressFlags},
	"check-completion":   {usage: "judge completion [-work-order KEY] [-method process|report|both]", flags: checkCompletionFlags},
	"transfer-completed": {usage: "archive completed work orders [-work-order KEY] [-method process|report|both]", flags: transferCompletedFlags},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	verb := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		verb, args = args[0], args[1:]
	}
	cmd, ok := commands[verb]
	if !ok {
		usage(os.Stderr, verb)
		return 1
	}

	f := gnuflag.NewFlagSet(verb, gnuflag.ContinueOnError)
	configPath := f.String("config", os.Getenv("CONFIG_PATH"), "optional YAML config file")
	exec := cmd.flags(f)
	if err := f.Parse(true, args); err != nil {
		return 1
	}

	registry, err := config.NewRegistry(config.EnvLoader(*configPath, os.Environ, time.Now))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	cfg := registry.Current().Config
	common.ConfigureLogging(cfg.LogLevel, cfg.Env)
	if cfg.Env == common.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ds, err := startDatabase(cfg.Database)
	if err != nil {
		logrus.Errorf("database start failed: %v", err)
		return 1
	}
	defer ds.Stop()

	tracer, err := tracing.InitGlobalTracer(common.GetServiceName())
	if err != nil {
		logrus.Warnf("tracing disabled: %v", err)
	} else {
		defer tracer.Close()
	}

	a, err := app.New(registry, ds, app.Options{})
	if err != nil {
		logrus.Errorf("service wiring failed: %v", err)
		return 1
	}
	defer a.Close()
	if err := a.Migrate(); err != nil {
		logrus.Errorf("database migration failed: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	out, code, err := exec(ctx, a)
	if err != nil {
		logrus.Errorf("%s failed: %v", verb, err)
		return 1
	}
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
	return code
}

func usage(w io.Writer, verb string) {
	fmt.Fprintf(w, "unknown command %q, available commands:\n", verb)
	verbs := make([]string, 0, len(commands))
	for v := range commands {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	for _, v := range verbs {
		fmt.Fprintf(w, "  %-20s %s\n", v, commands[v].usage)
	}
}

func startDatabase(c config.Database) (*persistence.DataSourceManager, error) {
	if c.DriverArgs == "" {
		return nil, errors.New("DB_DRIVER_ARGS is required")
	}
	// create database (no conflict)
	if c.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(c.DriverArgs); err != nil {
			return nil, err
		}
	}
	ds := &persistence.DataSourceManager{DatabaseConfig: &persistence.DatabaseConfig{
		DriverType: c.DriverType, DriverArgs: c.DriverArgs, LogMode: c.LogMode, CallTimeout: c.CallTimeout,
	}}
	if err := ds.Start(); err != nil {
		return nil, err
	}
	return ds, nil
}

func serveFlags(f *gnuflag.FlagSet) func(ctx context.Context, a *app.App) (interface{}, int, error) {
	return func(ctx context.Context, a *app.App) (interface{}, int, error) {
		return nil, 0, serve(ctx, a)
	}
}

func serve(ctx context.Context, a *app.App) error {
	cfg := a.Registry.Current().Config
	sched := scheduler.New(a.Tasks())
	if err := sched.Reload(a.Registry.Current()); err != nil {
		return err
	}
	sched.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return servehttp.Serve(gctx, cfg.Address, servehttp.NewEngine(a.Services()), cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		return a.Dispatcher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				snapshot, err := a.Registry.Reload()
				if err != nil {
					continue
				}
				common.ConfigureLogging(snapshot.Config.LogLevel, snapshot.Config.Env)
				if err := sched.Reload(snapshot); err != nil {
					logrus.Errorf("reschedule failed: %v", err)
				}
			}
		}
	})
	logrus.Infof("%s serving on %s", common.GetServiceName(), cfg.Address)
	return g.Wait()
}

func syncOrdersFlags(f *gnuflag.FlagSet) func(ctx context.Context, a *app.App) (interface{}, int, error) {
	tenant := f.String("tenant", "", "sync only this tenant")
	limit := f.Int("limit", 0, "maximum rows fetched per tenant, 0 for all")
	auto := f.Bool("auto", false, "mark orders that already have a work order as converted")
	return func(ctx context.Context, a *app.App) (interface{}, int, error) {
		snapshot := a.Registry.Current()
		opts := erpsync.Options{Limit: *limit, AutoMode: *auto}
		tenants := snapshot.Tenants
		if *tenant != "" {
			t, ok := snapshot.Tenant(*tenant)
			if !ok {
				return nil, 1, fmt.Errorf("unknown tenant %s", *tenant)
			}
			tenants = []config.Tenant{t}
		}
		results := a.ErpSync.SyncAll(ctx, tenants, opts)
		return results, erpsync.ExitCode(results), nil
	}
}

func convertOrdersFlags(f *gnuflag.FlagSet) func(ctx context.Context, a *app.App) (interface{}, int, error) {
	return func(ctx context.Context, a *app.App) (interface{}, int, error) {
		summary, err := a.Conversion.Run(ctx)
		return summary, 0, err
	}
}

func recomputeProgressFlags(f *gnuflag.FlagSet) func(ctx context.Context, a *app.App) (interface{}, int, error) {
	key := f.String("work-order", "", "work order key COMPANY/ORDER/PRODUCT")
	return func(ctx context.Context, a *app.App) (interface{}, int, error) {
		if *key == "" {
			summary, err := a.Progress.RecomputeAll(ctx)
			return summary, 0, err
		}
		wo, err := findWorkOrder(ctx, a, *key)
		if err != nil {
			return nil, 1, err
		}
		outcome, err := a.Progress.Recompute(ctx, wo.ID)
		return outcome, 0, err
	}
}

func checkCompletionFlags(f *gnuflag.FlagSet) func(ctx context.Context, a *app.App) (interface{}, int, error) {
	key := f.String("work-order", "", "work order key COMPANY/ORDER/PRODUCT")
	method := f.String("method", string(domain.CompletionByBoth), "completion method: process, report or both")
	return func(ctx context.Context, a *app.App) (interface{}, int, error) {
		m, err := completion.ParseMethod(*method)
		if err != nil {
			return nil, 1, err
		}
		if *key == "" {
			summary, err := a.Judge.Sweep(ctx, m, nil)
			return summary, 0, err
		}
		k, err := domain.ParseWorkOrderKey(*key)
		if err != nil {
			return nil, 1, err
		}
		result, err := a.Judge.CheckByKey(ctx, k, m)
		return result, 0, err
	}
}

func transferCompletedFlags(f *gnuflag.FlagSet) func(ctx context.Context, a *app.App) (interface{}, int, error) {
	key := f.String("work-order", "", "work order key COMPANY/ORDER/PRODUCT")
	method := f.String("method", string(domain.CompletionByBoth), "completion method: process, report or both")
	return func(ctx context.Context, a *app.App) (interface{}, int, error) {
		m, err := completion.ParseMethod(*method)
		if err != nil {
			return nil, 1, err
		}
		if *key == "" {
			summary, err := a.Judge.Sweep(ctx, m, func(ctx context.Context, r *completion.Result) error {
				_, err := a.Transfer.Transfer(ctx, r.WorkOrderID, m)
				return err
			})
			return summary, 0, err
		}
		k, err := domain.ParseWorkOrderKey(*key)
		if err != nil {
			return nil, 1, err
		}
		result, err := a.Transfer.TransferByKey(ctx, k, m)
		return result, 0, err
	}
}

func findWorkOrder(ctx context.Context, a *app.App, key string) (*domain.WorkOrder, error) {
	k, err := domain.ParseWorkOrderKey(key)
	if err != nil {
		return nil, err
	}
	return workorder.FindByKey(a.DS.GormDB(ctx), k)
}
