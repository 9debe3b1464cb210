package common

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func init() {
	logger := logrus.StandardLogger()
	logger.Out = os.Stdout
	logger.Formatter = &logrus.TextFormatter{}
	logger.AddHook(&DefaultFieldsHook{})
}

type DefaultFieldsHook struct {
}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["serviceName"] = GetServiceName()
	e.Data["serviceInstance"] = GetServiceInstance()
	return nil
}

// ConfigureLogging applies level and output format to the standard logger.
// Production environments log JSON, everything else logs text.
func ConfigureLogging(level, env string) {
	logger := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		logger.SetLevel(lvl)
	} else {
		logrus.Warnf("unknown log level %q, keep %s", level, logger.GetLevel())
	}
	if env == EnvProd {
		logger.Formatter = &logrus.JSONFormatter{}
	} else {
		logger.Formatter = &logrus.TextFormatter{}
	}
}

// EntityLogger returns an entry keyed by the identity of a single entity so that
// repeated failures of that entity can be searched.
func EntityLogger(kind, key string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"entity_kind": kind, "entity_key": key})
}
