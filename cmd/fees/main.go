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
	"flag"
	"strings"

	"chainportal-mint-go/internal/common"
	"chainportal-mint-go/internal/config"
	"chainportal-mint-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	assetFlag := flag.String("asset", string(models.AssetNFT), "Asset type to price (NFT or Token)")
	chainsFlag := flag.String("chains", "", "Comma-separated chain symbols (default: all configured chains)")
	bytesFlag := flag.Int("bytes", 0, "Metadata payload size in bytes")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeReadOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	chains := services.Connectors.Symbols()
	if *chainsFlag != "" {
		chains = strings.Split(*chainsFlag, ",")
	}

	result := services.Queries.MintFees(ctx, models.AssetType(*assetFlag), chains, *bytesFlag)
	if !result.Success {
		logger.Fatal("Failed to quote mint fees", zap.String("error", result.Error))
	}

	common.PrintFeeQuote(models.AssetType(*assetFlag), *bytesFlag, result.Fees)
}
