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
	"fmt"

	"chainportal-mint-go/internal/common"
	"chainportal-mint-go/internal/config"
	"chainportal-mint-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	pubkeyFlag := flag.String("pubkey", "", "Payer public key to list transactions for")
	idFlag := flag.String("id", "", "Show a single transaction by id")
	limitFlag := flag.Int("limit", 20, "Maximum number of transactions")
	offsetFlag := flag.Int("offset", 0, "Number of transactions to skip")
	flag.Parse()

	if *pubkeyFlag == "" && *idFlag == "" {
		logger.Fatal("Either --pubkey or --id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	services, err := common.InitializeReadOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *idFlag != "" {
		result := services.Queries.TransactionDetails(ctx, *idFlag)
		if !result.Success {
			logger.Fatal("Failed to load transaction", zap.String("id", *idFlag), zap.String("error", result.Error))
		}
		common.PrintTransactions("TRANSACTION DETAILS", []models.TransactionDetails{*result.Transaction})
		return
	}

	result := services.Queries.TransactionHistory(ctx, *pubkeyFlag, *limitFlag, *offsetFlag)
	if !result.Success {
		logger.Fatal("Failed to load history", zap.String("pubkey", *pubkeyFlag), zap.String("error", result.Error))
	}
	common.PrintTransactions(fmt.Sprintf("TRANSACTION HISTORY: %s", *pubkeyFlag), result.Transactions)
}
