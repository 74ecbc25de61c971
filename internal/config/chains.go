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
	"path/filepath"
	"strings"
	"time"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// ChainFileEntry is one chain in the chains file. Amounts are strings so they
// parse into decimals without float rounding.
type ChainFileEntry struct {
	Symbol              string            `yaml:"symbol"`
	RPCURL              string            `yaml:"rpc_url"`
	PlatformAddress     string            `yaml:"platform_address"`
	PlatformKeyEnv      string            `yaml:"platform_key_env"`
	ConfirmTimeout      string            `yaml:"confirm_timeout"`
	Confirmations       uint64            `yaml:"confirmations"`
	MinRefundCost       string            `yaml:"min_refund_cost"`
	RefundFeeMargin     string            `yaml:"refund_fee_margin"`
	PlatformFees        map[string]string `yaml:"platform_fees"`
	MintGasUnits        uint64            `yaml:"mint_gas_units"`
	DeployGasUnits      uint64            `yaml:"deploy_gas_units"`
	StoragePricePerByte string            `yaml:"storage_price_per_byte"`
	StoragePriceURL     string            `yaml:"storage_price_url"`
}

type ChainsFile struct {
	Chains []ChainFileEntry `yaml:"chains"`
}

// LoadChainConfig reads the per-chain fee table. Platform signing keys are
// never stored in the file; each entry names the env var holding its key.
func LoadChainConfig(chainsFile string) (map[string]models.ChainConfig, error) {
	var chainsPath string
	if filepath.IsAbs(chainsFile) {
		chainsPath = chainsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		chainsPath = filepath.Join(wd, chainsFile)
	}

	data, err := os.ReadFile(chainsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", chainsFile, err)
	}

	return ParseChainConfig(data)
}

func ParseChainConfig(data []byte) (map[string]models.ChainConfig, error) {
	var file ChainsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse chains file: %w", err)
	}

	chains := make(map[string]models.ChainConfig, len(file.Chains))
	for i, entry := range file.Chains {
		if entry.Symbol == "" {
			return nil, fmt.Errorf("chain at index %d missing symbol", i)
		}
		if entry.RPCURL == "" {
			return nil, fmt.Errorf("chain %s missing rpc_url", entry.Symbol)
		}
		if entry.PlatformAddress == "" {
			return nil, fmt.Errorf("chain %s missing platform_address", entry.Symbol)
		}
		cfg, err := entry.toChainConfig()
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", entry.Symbol, err)
		}
		if _, dup := chains[cfg.Symbol]; dup {
			return nil, fmt.Errorf("chain %s configured twice", cfg.Symbol)
		}
		chains[cfg.Symbol] = cfg
	}

	return chains, nil
}

func (e ChainFileEntry) toChainConfig() (models.ChainConfig, error) {
	symbol := strings.ToUpper(e.Symbol)
	cfg := models.ChainConfig{
		Symbol:          symbol,
		RPCURL:          e.RPCURL,
		PlatformAddress: e.PlatformAddress,
		Confirmations:   e.Confirmations,
		MintGasUnits:    e.MintGasUnits,
		DeployGasUnits:  e.DeployGasUnits,
		StoragePriceURL: e.StoragePriceURL,
		PlatformFees:    make(map[models.AssetType]decimal.Decimal, len(e.PlatformFees)),
	}

	keyEnv := e.PlatformKeyEnv
	if keyEnv == "" {
		keyEnv = symbol + "_PLATFORM_KEY"
	}
	cfg.PlatformKey = os.Getenv(keyEnv)

	var err error
	if cfg.ConfirmTimeout, err = parseDuration(e.ConfirmTimeout, 60*time.Second); err != nil {
		return cfg, fmt.Errorf("confirm_timeout: %w", err)
	}
	if cfg.MinRefundCost, err = parseDecimal(e.MinRefundCost, decimal.Zero); err != nil {
		return cfg, fmt.Errorf("min_refund_cost: %w", err)
	}
	if cfg.RefundFeeMargin, err = parseDecimal(e.RefundFeeMargin, decimal.RequireFromString("0.3")); err != nil {
		return cfg, fmt.Errorf("refund_fee_margin: %w", err)
	}
	if cfg.StoragePricePerByte, err = parseDecimal(e.StoragePricePerByte, decimal.Zero); err != nil {
		return cfg, fmt.Errorf("storage_price_per_byte: %w", err)
	}

	for assetType, raw := range e.PlatformFees {
		at := models.AssetType(assetType)
		if !at.Valid() {
			return cfg, fmt.Errorf("unknown asset type %q in platform_fees", assetType)
		}
		fee, err := decimal.NewFromString(raw)
		if err != nil {
			return cfg, fmt.Errorf("platform_fees.%s: %w", assetType, err)
		}
		if fee.IsNegative() {
			return cfg, fmt.Errorf("platform_fees.%s cannot be negative", assetType)
		}
		cfg.PlatformFees[at] = fee
	}

	return cfg, nil
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func parseDecimal(raw string, def decimal.Decimal) (decimal.Decimal, error) {
	if raw == "" {
		return def, nil
	}
	return decimal.NewFromString(raw)
}
