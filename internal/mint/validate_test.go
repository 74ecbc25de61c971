package mint

import (
	"strings"
	"testing"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateNFT(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *models.NFTMetadata)
		wantErr string
	}{
		{"valid", func(*models.NFTMetadata) {}, ""},
		{"missing title", func(m *models.NFTMetadata) { m.Title = "" }, "NFT name"},
		{"title at limit", func(m *models.NFTMetadata) { m.Title = strings.Repeat("a", 32) }, ""},
		{"title too long", func(m *models.NFTMetadata) { m.Title = strings.Repeat("a", 33) }, "NFT name"},
		{"multibyte title counts runes", func(m *models.NFTMetadata) { m.Title = strings.Repeat("é", 32) }, ""},
		{"missing description", func(m *models.NFTMetadata) { m.Description = "" }, "NFT description"},
		{"description too long", func(m *models.NFTMetadata) { m.Description = strings.Repeat("d", 201) }, "NFT description"},
		{"missing media", func(m *models.NFTMetadata) { m.Media = nil }, "media file"},
		{"symbol too long", func(m *models.NFTMetadata) { m.Symbol = "ABCDEFGHIJK" }, "symbol"},
		{"too many attributes", func(m *models.NFTMetadata) { m.Attributes = make([]models.Attribute, 7) }, "attributes"},
		{"attribute without type", func(m *models.NFTMetadata) { m.Attributes = []models.Attribute{{Value: "x"}} }, "attribute type"},
		{"attribute value too long", func(m *models.NFTMetadata) {
			m.Attributes = []models.Attribute{{Type: "t", Value: strings.Repeat("v", 65)}}
		}, "attribute type"},
		{"royalty above 100", func(m *models.NFTMetadata) { m.Royalty = 101 }, "royalty"},
		{"negative royalty", func(m *models.NFTMetadata) { m.Royalty = -1 }, "royalty"},
		{"edition beyond total", func(m *models.NFTMetadata) {
			m.IsLimitedEdition, m.TotalEditions, m.EditionNumber = true, 5, 6
		}, "edition"},
		{"valid edition", func(m *models.NFTMetadata) {
			m.IsLimitedEdition, m.TotalEditions, m.EditionNumber = true, 5, 5
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := nftRequest("sig")
			tt.mutate(req.NFT)
			err := validate(req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	supply := func(s string) *decimal.Decimal {
		v := decimal.RequireFromString(s)
		return &v
	}
	decimals := func(n int) *int { return &n }

	tests := []struct {
		name    string
		meta    models.TokenMetadata
		wantErr string
	}{
		{"valid", models.TokenMetadata{Name: "Coin", Symbol: "CN", Media: []byte{1}, Supply: supply("1000"), Decimals: decimals(9)}, ""},
		{"missing name", models.TokenMetadata{Symbol: "CN", Media: []byte{1}}, "Token name"},
		{"missing symbol", models.TokenMetadata{Name: "Coin", Media: []byte{1}}, "Token symbol"},
		{"missing media", models.TokenMetadata{Name: "Coin", Symbol: "CN"}, "icon"},
		{"zero supply", models.TokenMetadata{Name: "Coin", Symbol: "CN", Media: []byte{1}, Supply: supply("0")}, "supply"},
		{"supply at max", models.TokenMetadata{Name: "Coin", Symbol: "CN", Media: []byte{1}, Supply: supply("10000000000000000000")}, ""},
		{"supply above max", models.TokenMetadata{Name: "Coin", Symbol: "CN", Media: []byte{1}, Supply: supply("10000000000000000001")}, "supply"},
		{"too many decimals", models.TokenMetadata{Name: "Coin", Symbol: "CN", Media: []byte{1}, Decimals: decimals(10)}, "decimals"},
		{"negative decimals", models.TokenMetadata{Name: "Coin", Symbol: "CN", Media: []byte{1}, Decimals: decimals(-1)}, "decimals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := tt.meta
			err := validate(models.MintRequest{AssetType: models.AssetToken, PaymentSignature: "sig", Token: &meta})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	assert.Error(t, validate(models.MintRequest{AssetType: models.AssetNFT}))
	assert.Error(t, validate(models.MintRequest{AssetType: models.AssetNFT, PaymentSignature: "sig"}))
	assert.Error(t, validate(models.MintRequest{AssetType: "Bond", PaymentSignature: "sig"}))
}
