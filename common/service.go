package common

import (
	"os"
	"strconv"
)

const (
	EnvProd = "prod"
	EnvDev  = "dev"
	EnvTest = "test"

	defaultServiceName = "shopfloor"
)

func GetServiceName() string {
	if name := os.Getenv("SERVICE_NAME"); name != "" {
		return name
	}
	return defaultServiceName
}

func GetServiceInstance() string {
	if instance := os.Getenv("SERVICE_INSTANCE"); instance != "" {
		return instance
	}
	host, err := os.Hostname()
	if err != nil {
		return strconv.Itoa(os.Getpid())
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
