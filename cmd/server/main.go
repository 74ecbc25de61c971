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
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainportal-mint-go/internal/common"
	"chainportal-mint-go/internal/config"
	"chainportal-mint-go/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting mint server", zap.String("addr", cfg.Server.Addr))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	services.Reconciler.Start(ctx)

	srv := server.New(cfg.Server, services.Queries, services.Orchestrator)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	zap.L().Info("Mint server running", zap.Strings("chains", services.Connectors.Symbols()))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, draining pipelines...")
	case err := <-serveErr:
		if err != nil {
			zap.L().Error("Server stopped unexpectedly", zap.Error(err))
		}
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	// In-flight pipelines hold user funds; let them reach a terminal state.
	if err := services.Orchestrator.Wait(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			zap.L().Warn("Forced shutdown with pipelines still running")
		} else {
			zap.L().Warn("Pipeline drain failed", zap.Error(err))
		}
	} else {
		zap.L().Info("All pipelines finished")
	}

	services.Reconciler.Stop()
	cancel()
	zap.L().Info("Mint server stopped")
}
