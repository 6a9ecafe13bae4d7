package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"klaus/elevation/dtm-raster-functions/internal/service"
)

/*
runServe starts the raster function service and blocks until SIGINT or
SIGTERM is received.
*/
func runServe() error {
	// load program configuration
	config, err := loadConfig(true)
	if err != nil {
		return err
	}

	lumberjackLogger := newFileLogger(config)
	logrotateStartYearDay := time.Now().UTC().YearDay()

	// log program start
	slog.Info(progPurpose+" startet", "name", progName, "version", progVersion, "date", progDate, "info", progInfo, "copyright", progCopyright, "command line", os.Args)
	jsonData, _ := json.MarshalIndent(config, "", "  ") // encode to JSON for readability
	slog.Info("content of configuration file", "configuration file", configFile, "content", string(jsonData))

	// build raster function service
	svc, err := service.New(config, newResolver(config))
	if err != nil {
		slog.Error("error building raster function service", "error", err)
		return err
	}
	defer svc.Close()

	// save function catalog
	if config.CatalogFile != "" {
		err = svc.Catalog().SaveCSV(config.CatalogFile)
		if err != nil {
			slog.Error("error saving raster function catalog", "error", err)
			return err
		}
	}

	// define service
	rasterFunctionService := &http.Server{
		Addr:              config.ListenAddress,
		Handler:           service.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	// get hostname
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	// create service
	serviceFailed := make(chan error, 1)
	go func() {
		slog.Info("raster function service listening for requests", "ListenAddress", config.ListenAddress, "hostname", hostname)
		err := rasterFunctionService.ListenAndServeTLS(config.ServerCertificate, config.ServerKey)
		if err != nil && err != http.ErrServerClosed {
			slog.Error("error at rasterFunctionService.ListenAndServeTLS()", "error", err)
			serviceFailed <- err
		}
	}()

	// start rotate trigger (checks, if log rotate is required)
	rotateTrigger := time.Tick(time.Second * 60)

	// start shutdown trigger and subscribe to shutdown signals
	shutdownTrigger := make(chan os.Signal, 1)
	signal.Notify(shutdownTrigger, syscall.SIGINT)  // kill -SIGINT pid -> interrupt
	signal.Notify(shutdownTrigger, syscall.SIGTERM) // kill -SIGTERM pid -> terminated

ForeverLoop:
	for {
		// wait for log rotate or shutdown trigger
		select {
		case <-rotateTrigger:
			logrotateCurrentYearDay := time.Now().UTC().YearDay()
			if logrotateCurrentYearDay != logrotateStartYearDay {
				slog.Info("new day detected, log rotate triggered")
				err := lumberjackLogger.Rotate()
				if err != nil {
					slog.Error("error at lumberjackLogger.Rotate()", "error", err)
				}
				logrotateStartYearDay = logrotateCurrentYearDay
				service.LogStatistics()
			}
		case err := <-serviceFailed:
			return err
		case sig := <-shutdownTrigger:
			// initiate shutdown
			slog.Info("signal received, shutting down raster function service", "signal", sig)
			break ForeverLoop
		}
	}

	// shutdown service (wait max grace period before halting)
	ctx, cancel := context.WithTimeout(context.Background(), config.GracePeriod())
	defer cancel()
	err = rasterFunctionService.Shutdown(ctx)
	if err != nil {
		slog.Error("fatal error at rasterFunctionService.Shutdown()", "error", err)
	}

	// log program end
	service.LogStatistics()
	slog.Info("service gracefully shut down")
	return nil
}
