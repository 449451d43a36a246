// Package main is the single entry point for every COACH service. The
// service to run is selected by the SERVICE_TYPE environment variable; its
// settings come from the file named by COACH_SETTINGS.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coach-dss/coach/internal/config"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/settings"
	"github.com/coach-dss/coach/services/authentication"
	"github.com/coach-dss/coach/services/casedb"
	"github.com/coach-dss/coach/services/directory"
	"github.com/coach-dss/coach/services/estimation"
	"github.com/coach-dss/coach/services/interaction"
	"github.com/coach-dss/coach/services/knowledge"
	"github.com/coach-dss/coach/services/ontology"
)

// ServiceRunner is implemented by every COACH service.
type ServiceRunner interface {
	Run(ctx context.Context, addr string) error
	ListenAddr(defaultPort int) string
}

func main() {
	proc, err := config.LoadProcess()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(proc.ServiceName, proc.LogLevel, proc.LogFormat)

	st, err := settings.Load(proc.SettingsPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load settings")
	}

	svc, err := build(proc.ServiceType, proc.ServiceName, st, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create service")
	}

	addr := proc.Addr
	if addr == "" {
		addr = svc.ListenAddr(config.DefaultServicesConfig().Port(proc.ServiceType))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{
		"type":     proc.ServiceType,
		"addr":     addr,
		"settings": proc.SettingsPath,
	}).Info("starting service")

	if err := svc.Run(ctx, addr); err != nil {
		logger.WithError(err).Fatal("service stopped with error")
	}
	logger.Info("service stopped")
}

func build(serviceType, name string, st *settings.Settings, logger *logging.Logger) (ServiceRunner, error) {
	var (
		svc ServiceRunner
		err error
	)
	switch {
	case serviceType == directory.ServiceType:
		svc, err = asRunner(directory.New(directory.Config{Name: name, Settings: st, Logger: logger}))
	case serviceType == authentication.ServiceType:
		svc, err = asRunner(authentication.New(authentication.Config{Name: name, Settings: st, Logger: logger}))
	case serviceType == casedb.ServiceType:
		svc, err = asRunner(casedb.New(casedb.Config{Name: name, Settings: st, Logger: logger}))
	case ontology.IsModelType(serviceType):
		svc, err = asRunner(ontology.New(ontology.Config{Type: serviceType, Name: name, Settings: st, Logger: logger}))
	case serviceType == knowledge.ServiceType:
		svc, err = asRunner(knowledge.New(knowledge.Config{Name: name, Settings: st, Logger: logger}))
	case serviceType == estimation.ServiceType:
		svc, err = asRunner(estimation.New(estimation.Config{Name: name, Settings: st, Logger: logger}))
	case serviceType == interaction.ServiceType:
		svc, err = asRunner(interaction.New(interaction.Config{Name: name, Settings: st, Logger: logger}))
	default:
		err = fmt.Errorf("unknown service type %q (known: %v)", serviceType, config.DefaultServicesConfig().Types())
	}
	return svc, err
}

// asRunner drops typed nil services so callers never see a non-nil
// interface wrapping a nil pointer.
func asRunner[S ServiceRunner](svc S, err error) (ServiceRunner, error) {
	if err != nil {
		return nil, err
	}
	return svc, nil
}
