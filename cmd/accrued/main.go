/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accrual-ledger-go/internal/api"
	"accrual-ledger-go/internal/common"
	"accrual-ledger-go/internal/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	console := flag.Bool("console", true, "Read enroll/unenroll/balance commands from stdin")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides METRICS_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting accrual ledger",
		zap.String("backend", cfg.Ledger.StorageBackend),
		zap.String("hourly_rate", cfg.Accrual.HourlyRate.String()),
		zap.Duration("tick_period", cfg.Accrual.TickPeriod))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Scheduler.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start accrual scheduler", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		services.Scheduler.Stop()
		return nil
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr)
		})
	}

	if *console {
		// Not part of the group: a blocked stdin read cannot be interrupted.
		go readCommands(ctx, os.Stdin, os.Stdout, services.Commands)
	}

	zap.L().Info("Press Ctrl+C to stop")
	<-gctx.Done()

	zap.L().Info("Shutdown signal received, waiting for the current tick to finish...")

	// The scheduler only observes cancellation at a tick boundary.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Accrual.TickPeriod+10*time.Second)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			zap.L().Error("Background task failed", zap.Error(err))
		}
		zap.L().Info("Accrual ledger stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}

	if err := services.Ledger.Flush(context.Background()); err != nil {
		zap.L().Error("Final snapshot flush failed", zap.Error(err))
	}
}

// readCommands feeds stdin lines to the command surface until EOF or ctx ends
func readCommands(ctx context.Context, in io.Reader, out io.Writer, commands *api.CommandService) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		reply, err := commands.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply)
	}
	if err := scanner.Err(); err != nil {
		zap.L().Warn("Stopped reading commands", zap.Error(err))
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}()

	zap.L().Info("Serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
