package servehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"shopfloor/bizerror"
	"shopfloor/infra/tracing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Services are the operations exposed over HTTP. A nil service leaves its routes unregistered.
type Services struct {
	FillWorks  FillWorkService
	Onsite     OnsiteService
	Completion CompletionService
	Transfer   TransferService
	ErpSync    ErpSyncService
	Tenants    TenantLister
}

func NewEngine(s *Services) *gin.Engine {
	engine := gin.New()
	// work order keys carry url encoded slashes
	engine.UseRawPath = true
	engine.UnescapePathValues = true
	engine.Use(gin.LoggerWithWriter(logrus.StandardLogger().Writer()), tracing.TracingIngress(), bizerror.ErrorHandling())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.FillWorks != nil {
		RegisterFillWorksRestAPI(engine, s.FillWorks)
	}
	if s.Onsite != nil {
		RegisterOnsiteRestAPI(engine, s.Onsite)
	}
	if s.Completion != nil && s.Transfer != nil {
		RegisterWorkOrdersRestAPI(engine, s.Completion, s.Transfer)
	}
	if s.ErpSync != nil && s.Tenants != nil {
		RegisterErpSyncRestAPI(engine, s.ErpSync, s.Tenants)
	}
	RegisterAllocationsRestAPI(engine)
	return engine
}

// Serve runs the server until ctx is done, then shuts it down within shutdownTimeout.
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Infof("[QUIT] shutdown signal has been received, the http server will stop in %s", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("[QUIT] http server is shutdown gracefully")
	return nil
}

func badParam(err error) {
	panic(&bizerror.ErrBadParam{Cause: err})
}
