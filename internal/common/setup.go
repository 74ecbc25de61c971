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

package common

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"chainportal-mint-go/internal/api"
	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/chain/ethereum"
	"chainportal-mint-go/internal/chain/solana"
	"chainportal-mint-go/internal/database"
	"chainportal-mint-go/internal/fees"
	"chainportal-mint-go/internal/formance"
	"chainportal-mint-go/internal/metrics"
	"chainportal-mint-go/internal/mint"
	"chainportal-mint-go/internal/minter"
	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/reconcile"
	"chainportal-mint-go/internal/refund"
	"chainportal-mint-go/internal/storage"
	"chainportal-mint-go/internal/transport"
	"chainportal-mint-go/internal/verifier"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService    *database.Service
	Connectors   *chain.Registry
	Fees         *fees.Calculator
	Orchestrator *mint.Orchestrator
	Reconciler   *reconcile.Reconciler
	Queries      *api.QueryService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the full minting stack from configuration.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	httpClient, err := transport.NewHTTPClient(cfg.Pipeline.StageTimeout)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	connectors, err := initializeConnectors(ctx, cfg, httpClient)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	var mirror refund.Mirror
	if cfg.Formance.Enabled {
		m, err := formance.NewMirror(ctx, cfg.Formance)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		mirror = m
	} else {
		zap.L().Info("Formance mirror disabled")
	}

	pipelineMetrics := metrics.Pipeline()
	calculator := fees.NewCalculator(cfg.Chains, oracles(connectors), dbService, cfg.Pipeline.FeeCacheMaxAge)
	refunds := refund.NewEngine(connectors, cfg.Chains, dbService, mirror, pipelineMetrics, cfg.Pipeline.DeltaTimeout)

	orchestrator := mint.NewOrchestrator(mint.Deps{
		Ledger:     dbService,
		Connectors: connectors,
		Fees:       calculator,
		Verifier:   verifier.New(refunds, cfg.Chains),
		Refunder:   refunds,
		Uploader:   storage.NewUploader(cfg.Storage, httpClient),
		Minter:     minter.NewClient(cfg.Minter, httpClient),
		Mirror:     mirror,
		Metrics:    pipelineMetrics,
	}, cfg.Pipeline)

	reconciler := reconcile.New(reconcile.Config{
		Ledger:     dbService,
		Connectors: connectors,
		Metrics:    pipelineMetrics,
		Interval:   cfg.Reconcile.Interval,
		BatchSize:  cfg.Reconcile.BatchSize,
		MinAge:     cfg.Reconcile.MinAge,
	})

	zap.L().Info("Services initialized",
		zap.Strings("chains", connectors.Symbols()),
		zap.Bool("formance_mirror", mirror != nil))

	return &Services{
		DbService:    dbService,
		Connectors:   connectors,
		Fees:         calculator,
		Orchestrator: orchestrator,
		Reconciler:   reconciler,
		Queries:      api.NewQueryService(dbService, calculator, cfg.ClientEnv),
	}, nil
}

// InitializeReadOnly initializes the database and the fee calculator without
// any signing keys. Useful for CLI queries.
func InitializeReadOnly(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	httpClient, err := transport.NewHTTPClient(cfg.Pipeline.StageTimeout)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	readOnly := make(map[string]models.ChainConfig, len(cfg.Chains))
	for symbol, c := range cfg.Chains {
		c.PlatformKey = ""
		readOnly[symbol] = c
	}
	connectors, err := initializeConnectors(ctx, &models.Config{Chains: readOnly}, httpClient)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	calculator := fees.NewCalculator(cfg.Chains, oracles(connectors), dbService, cfg.Pipeline.FeeCacheMaxAge)
	return &Services{
		DbService:  dbService,
		Connectors: connectors,
		Fees:       calculator,
		Queries:    api.NewQueryService(dbService, calculator, cfg.ClientEnv),
	}, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

// initializeConnectors builds one connector per configured chain. SOL uses
// the Solana connector; every other symbol is treated as an EVM chain.
func initializeConnectors(ctx context.Context, cfg *models.Config, httpClient *http.Client) (*chain.Registry, error) {
	var list []chain.Connector
	for symbol, chainCfg := range cfg.Chains {
		var (
			conn chain.Connector
			err  error
		)
		switch strings.ToUpper(symbol) {
		case "SOL":
			conn, err = solana.NewConnector(chainCfg, httpClient)
		default:
			conn, err = ethereum.NewConnector(ctx, chainCfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s connector: %w", symbol, err)
		}
		zap.L().Info("Chain connector ready",
			zap.String("chain", symbol),
			zap.String("platform_address", conn.PlatformAddress()))
		list = append(list, conn)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no chains configured")
	}
	return chain.NewRegistry(list...), nil
}

func oracles(registry *chain.Registry) map[string]fees.Oracle {
	out := make(map[string]fees.Oracle)
	for _, symbol := range registry.Symbols() {
		conn, err := registry.Get(symbol)
		if err != nil {
			continue
		}
		out[symbol] = conn
	}
	return out
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
