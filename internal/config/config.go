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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	lockTTL, err := getEnvDuration("LOCK_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	readTimeout, err := getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	eventTimeout, err := getEnvDuration("EVENT_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	stageTimeout, err := getEnvDuration("PIPELINE_STAGE_TIMEOUT", 3*time.Minute)
	if err != nil {
		return nil, err
	}

	deltaTimeout, err := getEnvDuration("PIPELINE_DELTA_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	feeCacheMaxAge, err := getEnvDuration("FEE_CACHE_MAX_AGE", 12*time.Hour)
	if err != nil {
		return nil, err
	}

	reconcileInterval, err := getEnvDuration("RECONCILE_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	reconcileMinAge, err := getEnvDuration("RECONCILE_MIN_AGE", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	rateLimit, err := getEnvDecimal("RATE_LIMIT_PER_SECOND", decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}

	minterEndpoints, err := getEnvMap("MINTER_ENDPOINTS")
	if err != nil {
		return nil, err
	}

	chains, err := LoadChainConfig(getEnvString("CHAINS_FILE", "chains.yaml"))
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "chainportal.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			LockTTL:         lockTTL,
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":3000"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			EventTimeout:    eventTimeout,
			RateLimit:       rateLimit.InexactFloat64(),
			RateBurst:       getEnvInt("RATE_BURST", 5),
			AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"localhost:4200"}),
			ShutdownTimeout: shutdownTimeout,
		},
		Pipeline: models.PipelineConfig{
			StageTimeout:   stageTimeout,
			DeltaTimeout:   deltaTimeout,
			FeeCacheMaxAge: feeCacheMaxAge,
		},
		Reconcile: models.ReconcileConfig{
			Interval:  reconcileInterval,
			BatchSize: getEnvInt("RECONCILE_BATCH_SIZE", 50),
			MinAge:    reconcileMinAge,
		},
		Storage: models.StorageConfig{
			BaseURL: getEnvString("STORAGE_BASE_URL", "http://localhost:8090"),
			APIKey:  os.Getenv("STORAGE_API_KEY"),
		},
		Minter: models.MinterConfig{
			Endpoints: minterEndpoints,
			APIKey:    os.Getenv("MINTER_API_KEY"),
		},
		Formance: models.FormanceConfig{
			Enabled:      getEnvBool("FORMANCE_ENABLED", false),
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "chainportal"),
		},
		Chains:    chains,
		ClientEnv: getEnvString("CLI_ENVIRONMENT", `{"blockchainNetworks":{"solana":{"selected":"devnet"},"ethereum":{"selected":"sepolia"}}}`),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvMap parses "SOL=http://a,ETH=http://b" into a map keyed by the upper-cased left side.
func getEnvMap(key string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range getEnvList(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid entry for %s: %q", key, pair)
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out, nil
}
