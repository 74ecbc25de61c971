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

package mint

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	maxNameLength        = 32
	maxDescriptionLength = 200
	maxSymbolLength      = 10
	maxAttributes        = 6
	maxAttributeType     = 32
	maxAttributeValue    = 64
	maxTokenDecimals     = 9
)

var (
	maxTokenSupply = decimal.New(1, 19)

	errMissingMetadata = errors.New("Metadata for the selected asset type is required.")
)

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

// validate checks a request's structure. The returned message is user-facing.
func validate(req models.MintRequest) error {
	if req.PaymentSignature == "" {
		return errors.New("A payment transaction signature is required.")
	}
	switch req.AssetType {
	case models.AssetNFT:
		if req.NFT == nil {
			return errMissingMetadata
		}
		return validateNFT(req.NFT)
	case models.AssetToken:
		if req.Token == nil {
			return errMissingMetadata
		}
		return validateToken(req.Token)
	default:
		return fmt.Errorf("Unsupported asset type %q.", req.AssetType)
	}
}

func validateNFT(m *models.NFTMetadata) error {
	switch {
	case m.Title == "" || tooLong(m.Title, maxNameLength):
		return fmt.Errorf("NFT name is required and should be at most %d characters long.", maxNameLength)
	case m.Description == "" || tooLong(m.Description, maxDescriptionLength):
		return fmt.Errorf("NFT description is required and should be at most %d characters long.", maxDescriptionLength)
	case len(m.Media) == 0:
		return errors.New("NFT media file is required.")
	case tooLong(m.Symbol, maxSymbolLength):
		return fmt.Errorf("NFT symbol should be at most %d characters long.", maxSymbolLength)
	case len(m.Attributes) > maxAttributes:
		return fmt.Errorf("NFT attributes should not be more than %d.", maxAttributes)
	case m.Royalty < 0 || m.Royalty > 100:
		return errors.New("NFT royalty should be a percentage between 0 and 100.")
	case m.IsLimitedEdition && (m.TotalEditions < 1 || m.EditionNumber < 1 || m.EditionNumber > m.TotalEditions):
		return errors.New("NFT edition number should be between 1 and the total number of editions.")
	}
	for _, a := range m.Attributes {
		if a.Type == "" || tooLong(a.Type, maxAttributeType) || tooLong(a.Value, maxAttributeValue) {
			return fmt.Errorf("NFT attribute type is required and shouldn't be longer than %d, and value shouldn't be longer than %d.", maxAttributeType, maxAttributeValue)
		}
	}
	return nil
}

func validateToken(m *models.TokenMetadata) error {
	switch {
	case m.Name == "" || tooLong(m.Name, maxNameLength):
		return fmt.Errorf("Token name is required and should be at most %d characters long.", maxNameLength)
	case m.Symbol == "" || tooLong(m.Symbol, maxSymbolLength):
		return fmt.Errorf("Token symbol is required and should be at most %d characters long.", maxSymbolLength)
	case len(m.Media) == 0:
		return errors.New("Token icon media is required.")
	case m.Supply != nil && (m.Supply.LessThan(decimal.NewFromInt(1)) || m.Supply.GreaterThan(maxTokenSupply)):
		return errors.New("Token supply should be a positive number and at most 1e19.")
	case m.Decimals != nil && (*m.Decimals < 0 || *m.Decimals > maxTokenDecimals):
		return fmt.Errorf("Token decimals should be between 0 and %d.", maxTokenDecimals)
	case tooLong(m.Description, maxDescriptionLength):
		return fmt.Errorf("Token description should be at most %d characters long.", maxDescriptionLength)
	}
	return nil
}
