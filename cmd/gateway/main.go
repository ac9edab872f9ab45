// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main starts the MQTT-SN gateway: the sensor-network UDP
// transport, the broker-dial factory, and the four-task packet-dispatch
// core (spec.md §2), wired together exactly as cmd/mqtt/main.go wires
// the teacher's HTTP/WS proxy and message-broker forwarder.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/mqttsn-gateway/internal/config"
	"github.com/absmach/mqttsn-gateway/internal/gateway"
	"github.com/absmach/mqttsn-gateway/internal/logger"
	"github.com/absmach/mqttsn-gateway/internal/roster"
	"github.com/absmach/mqttsn-gateway/internal/transport"
	"github.com/absmach/mqttsn-gateway/pkg/messaging"
	mqttpub "github.com/absmach/mqttsn-gateway/pkg/messaging/mqtt"
	"github.com/absmach/mqttsn-gateway/pkg/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const svcName = "mqttsn-gateway"

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load %s configuration: %s", svcName, err)
	}

	lg, err := logger.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %s", err)
	}

	var exitCode int
	defer logger.ExitWithError(&exitCode)

	if cfg.InstanceID == "" {
		id, err := uuid.New().ID()
		if err != nil {
			lg.Error(fmt.Sprintf("failed to generate instanceID: %s", err))
			exitCode = 1
			return
		}
		cfg.InstanceID = id
	}

	r, err := roster.Load(cfg.RosterFile)
	if err != nil {
		lg.Error(fmt.Sprintf("failed to load roster: %s", err))
		exitCode = 1
		return
	}

	predefined, err := roster.LoadPredefinedTopics(cfg.PredefinedTopicFile)
	if err != nil {
		lg.Error(fmt.Sprintf("failed to load pre-defined topics: %s", err))
		exitCode = 1
		return
	}

	drv, err := transport.NewUDP(cfg.SensorNetListenAddr, broadcastAddrFor(cfg.SensorNetListenAddr))
	if err != nil {
		lg.Error(fmt.Sprintf("failed to bind sensor-network transport: %s", err))
		exitCode = 1
		return
	}
	defer drv.Close()

	dial := func(ctx context.Context, clientID, login, password string) (messaging.PubSub, error) {
		return mqttpub.New(mqttpub.Config{
			URL:            cfg.BrokerURL,
			ClientID:       clientID,
			Username:       login,
			Password:       password,
			ConnectTimeout: cfg.BrokerConnectTimeout,
			QoS:            1,
		}, lg)
	}

	gw := gateway.New(cfg, lg, drv, dial)
	gw.Roster = r
	gw.PredefinedTopics = predefined

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(gw.Metrics.Registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			lg.Warn("metrics server stopped", "error", err)
		}
	}()

	go stopSignalHandler(cancel, lg)

	lg.Info(fmt.Sprintf("starting %s", svcName), "listen", cfg.SensorNetListenAddr, "broker", cfg.BrokerURL)
	if err := gw.Run(ctx); err != nil {
		lg.Error(fmt.Sprintf("gateway terminated: %s", err))
		exitCode = 1
	}
}

// broadcastAddrFor derives the limited-broadcast address for the same
// port a gateway listens on; sensor-network deployments typically
// front this with a link-layer broadcast, so only the port need match.
func broadcastAddrFor(listenAddr string) string {
	return "255.255.255.255" + portSuffix(listenAddr)
}

func portSuffix(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i:]
		}
	}
	return ":10000"
}

func stopSignalHandler(cancel context.CancelFunc, lg *slog.Logger) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	lg.Info(fmt.Sprintf("%s shutdown by signal: %s", svcName, sig))
	cancel()
}
