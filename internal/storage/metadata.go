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

package storage

import (
	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
)

type DocumentAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type DocumentProperties struct {
	Royalty float64 `json:"royalty,omitempty"`
}

// NFTDocument is the off-chain metadata JSON an NFT's URI points at.
// Optional fields are only present when set.
type NFTDocument struct {
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	Image             string              `json:"image"`
	AnimationURL      string              `json:"animation_url,omitempty"`
	ExternalURL       string              `json:"external_url,omitempty"`
	Symbol            string              `json:"symbol,omitempty"`
	Attributes        []DocumentAttribute `json:"attributes,omitempty"`
	Creator           string              `json:"creator,omitempty"`
	IsLimitedEdition  bool                `json:"isLimitedEdition,omitempty"`
	TotalEditions     int                 `json:"totalEditions,omitempty"`
	EditionNumber     int                 `json:"editionNumber,omitempty"`
	Royalty           float64             `json:"royalty,omitempty"`
	Properties        *DocumentProperties `json:"properties,omitempty"`
	Tags              []string            `json:"tags,omitempty"`
	License           string              `json:"license,omitempty"`
	CreationTimestamp string              `json:"creationTimestamp,omitempty"`
}

// TokenDocument is the off-chain metadata JSON of a fungible token.
type TokenDocument struct {
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	Description string           `json:"description,omitempty"`
	Image       string           `json:"image"`
	ExternalURL string           `json:"external_url,omitempty"`
	Decimals    *int             `json:"decimals,omitempty"`
	Supply      *decimal.Decimal `json:"supply,omitempty"`
}

// NewNFTDocument builds the metadata document for an uploaded media URI.
// Animated media and 3D models share the media URI when embedAnimation is set.
func NewNFTDocument(meta *models.NFTMetadata, mediaURI string, embedAnimation bool) NFTDocument {
	doc := NFTDocument{
		Name:             meta.Title,
		Description:      meta.Description,
		Image:            mediaURI,
		ExternalURL:      meta.ExternalLink,
		Symbol:           meta.Symbol,
		Creator:          meta.Creator,
		IsLimitedEdition: meta.IsLimitedEdition,
		TotalEditions:    meta.TotalEditions,
		EditionNumber:    meta.EditionNumber,
		Royalty:          meta.Royalty,
		Tags:             meta.Tags,
		License:          meta.License,
	}
	if embedAnimation {
		doc.AnimationURL = mediaURI
	}
	for _, a := range meta.Attributes {
		doc.Attributes = append(doc.Attributes, DocumentAttribute{TraitType: a.Type, Value: a.Value})
	}
	if meta.Royalty > 0 {
		doc.Properties = &DocumentProperties{Royalty: meta.Royalty}
	}
	if meta.CreationTimestampToggle {
		doc.CreationTimestamp = meta.CreationTimestamp
	}
	return doc
}

func NewTokenDocument(meta *models.TokenMetadata, mediaURI string) TokenDocument {
	return TokenDocument{
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Description: meta.Description,
		Image:       mediaURI,
		ExternalURL: meta.ExternalLink,
		Decimals:    meta.Decimals,
		Supply:      meta.Supply,
	}
}
