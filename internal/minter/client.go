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

package minter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/transport"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrMintFailed   = errors.New("mint failed")
	ErrDeployFailed = errors.New("contract deployment failed")
	ErrNoMinter     = errors.New("no minter configured for chain")
)

// MintParams is one mint submitted to a chain's minting sidecar. For tokens,
// ContractAddress is the freshly deployed contract.
type MintParams struct {
	Chain           string             `json:"-"`
	AssetType       models.AssetType   `json:"assetType"`
	Owner           string             `json:"owner"`
	URI             string             `json:"uri"`
	Name            string             `json:"name"`
	Symbol          string             `json:"symbol,omitempty"`
	Attributes      []models.Attribute `json:"attributes,omitempty"`
	RoyaltyPercent  float64            `json:"royalty,omitempty"`
	ContractAddress string             `json:"contractAddress,omitempty"`
	Supply          *decimal.Decimal   `json:"supply,omitempty"`
	Decimals        *int               `json:"decimals,omitempty"`
}

// Result is a landed mint. OnChainCost is what the sidecar reports the
// platform paid; the ledger prefers the observed balance delta of TxRef.
type Result struct {
	TxRef       string          `json:"txRef"`
	AssetID     string          `json:"assetId,omitempty"`
	OnChainCost decimal.Decimal `json:"onChainCost"`
}

type Deployment struct {
	ContractAddress string          `json:"contractAddress"`
	TxRef           string          `json:"txRef"`
	OnChainCost     decimal.Decimal `json:"onChainCost"`
}

type deployRequest struct {
	Name         string           `json:"name"`
	Symbol       string           `json:"symbol"`
	Description  string           `json:"description,omitempty"`
	URI          string           `json:"uri"`
	Supply       *decimal.Decimal `json:"supply,omitempty"`
	Decimals     *int             `json:"decimals,omitempty"`
	ExternalLink string           `json:"externalLink,omitempty"`
}

// Client submits mints and contract deployments to per-chain sidecars.
type Client struct {
	endpoints map[string]string
	apiKey    string
	client    *http.Client
}

func NewClient(cfg models.MinterConfig, client *http.Client) *Client {
	endpoints := make(map[string]string, len(cfg.Endpoints))
	for symbol, url := range cfg.Endpoints {
		endpoints[strings.ToUpper(symbol)] = strings.TrimRight(url, "/")
	}
	return &Client{endpoints: endpoints, apiKey: cfg.APIKey, client: client}
}

func (c *Client) endpoint(chain string) (string, error) {
	url, ok := c.endpoints[strings.ToUpper(chain)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoMinter, chain)
	}
	return url, nil
}

func (c *Client) Mint(ctx context.Context, params MintParams) (Result, error) {
	base, err := c.endpoint(params.Chain)
	if err != nil {
		return Result{}, err
	}

	var out Result
	if err := transport.PostJSON(ctx, c.client, base+"/mint", c.apiKey, params, &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMintFailed, err)
	}
	if out.TxRef == "" {
		return Result{}, fmt.Errorf("%w: sidecar returned no transaction reference", ErrMintFailed)
	}

	zap.L().Info("Asset minted",
		zap.String("chain", params.Chain),
		zap.String("asset_type", string(params.AssetType)),
		zap.String("owner", params.Owner),
		zap.String("tx_ref", out.TxRef),
		zap.String("on_chain_cost", out.OnChainCost.String()))
	return out, nil
}

// DeployContract creates the fungible token contract that a Token mint targets.
func (c *Client) DeployContract(ctx context.Context, chain string, meta *models.TokenMetadata, uri string) (Deployment, error) {
	base, err := c.endpoint(chain)
	if err != nil {
		return Deployment{}, err
	}

	req := deployRequest{
		Name:         meta.Name,
		Symbol:       meta.Symbol,
		Description:  meta.Description,
		URI:          uri,
		Supply:       meta.Supply,
		Decimals:     meta.Decimals,
		ExternalLink: meta.ExternalLink,
	}

	var out Deployment
	if err := transport.PostJSON(ctx, c.client, base+"/deploy", c.apiKey, req, &out); err != nil {
		return Deployment{}, fmt.Errorf("%w: %v", ErrDeployFailed, err)
	}
	if out.ContractAddress == "" || out.TxRef == "" {
		return Deployment{}, fmt.Errorf("%w: incomplete sidecar response", ErrDeployFailed)
	}

	zap.L().Info("Token contract deployed",
		zap.String("chain", chain),
		zap.String("contract", out.ContractAddress),
		zap.String("tx_ref", out.TxRef))
	return out, nil
}
