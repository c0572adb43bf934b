// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/hdds-team/hdds-sub002/internal/config"
	"github.com/hdds-team/hdds-sub002/internal/participant"
	"github.com/hdds-team/hdds-sub002/internal/telemetry"
	"github.com/hdds-team/hdds-sub002/pkg/log"
)

var (
	flagGops       bool
	flagConfigFile string
	flagLogLevel   string
	flagLogDateTime bool
)

func cliInit() {
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigFile, "config", "", "Path to a `config.json` overriding the built-in defaults")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.Parse()
}

// shutdownGrace bounds how long Shutdown is allowed to drain in-flight
// listener/control goroutines before main gives up waiting.
const shutdownGrace = 5 * time.Second

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	// See https://github.com/google/gops (runtime overhead is almost zero).
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("loading config failed: %s", err.Error())
	}

	p, err := participant.New(cfg)
	if err != nil {
		log.Fatalf("constructing participant failed: %s", err.Error())
	}
	if err := p.Start(); err != nil {
		log.Fatalf("starting participant failed: %s", err.Error())
	}
	log.Infof("hddsd: participant %x running on domain %d", p.GuidPrefix(), cfg.DomainID)

	exporter, err := telemetry.NewExporter()
	if err != nil {
		log.Fatalf("constructing telemetry exporter failed: %s", err.Error())
	}
	if err := exporter.Start(telemetry.DefaultSnapshotInterval); err != nil {
		log.Fatalf("starting telemetry exporter failed: %s", err.Error())
	}

	var wg sync.WaitGroup
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		log.Info("hddsd: shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := p.Shutdown(ctx); err != nil {
			log.Errorf("participant shutdown error: %s", err.Error())
		}
		if err := exporter.Shutdown(); err != nil {
			log.Errorf("telemetry shutdown error: %s", err.Error())
		}
	}()

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(25)
	}
	wg.Wait()
	log.Info("hddsd: graceful shutdown completed")
}
