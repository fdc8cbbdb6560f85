/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command throttlegate is an HTTP gateway that limits the request rate of every client
// and forwards admitted requests to the upstream (or answers them by itself).
package main

import (
	"flag"
	"fmt"
	golog "log"

	"github.com/acronis/go-throttlegate/httpclient"
	"github.com/acronis/go-throttlegate/httpserver/middleware/throttle"
	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/restapi"
	"github.com/acronis/go-throttlegate/service"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the configuration file (YAML or JSON)")
	flag.Parse()

	if err := runApp(*configPath); err != nil {
		golog.Fatal(err)
	}
}

func runApp(configPath string) error {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	restapi.MustInitAndRegisterMetrics(metricsNamespace)
	defer restapi.UnregisterMetrics()

	throttleMetrics := throttle.NewPrometheusMetricsWithOpts(throttle.PrometheusMetricsOpts{Namespace: metricsNamespace})
	throttleMetrics.MustRegister()
	defer throttleMetrics.Unregister()

	upstreamMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
	upstreamMetrics.MustRegister()
	defer upstreamMetrics.Unregister()

	gw, err := newGateway(cfg, logger, gatewayMetrics{Throttle: throttleMetrics, Upstream: upstreamMetrics})
	if err != nil {
		return err
	}

	logger.Info("throttlegate is starting",
		log.Int("max_requests_per_minute", cfg.Throttle.MaxRequestsPerMinute),
		log.String("alg", cfg.Throttle.Alg),
		log.Bool("dry_run", cfg.Throttle.DryRun))

	return service.New(logger, gw.Unit).Start()
}
