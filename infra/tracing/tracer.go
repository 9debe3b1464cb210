package tracing

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

// InitGlobalTracer installs a jaeger tracer configured from the JAEGER_* environment variables.
// Tracing stays a no-op when JAEGER_DISABLED is true.
func InitGlobalTracer(serviceName string) (io.Closer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = serviceName
	}
	tracer, closer, err := cfg.NewTracer(
		jaegercfg.Logger(logrusLogger{}),
		jaegercfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	logrus.Infof("tracer of %s initialized, disabled: %v", cfg.ServiceName, cfg.Disabled)
	return closer, nil
}

type logrusLogger struct{}

func (logrusLogger) Error(msg string) {
	logrus.Error("jaeger: ", msg)
}

func (logrusLogger) Infof(msg string, args ...interface{}) {
	logrus.Debugf("jaeger: "+msg, args...)
}
