package models

import (
	"github.com/shopspring/decimal"
)

// MintRequest is one inbound request to mint an asset paid for by PaymentSignature
type MintRequest struct {
	Chain            string         `json:"blockchain"`
	AssetType        AssetType      `json:"assetType"`
	PaymentSignature string         `json:"paymentTxSignature"`
	NFT              *NFTMetadata   `json:"nftMetadata,omitempty"`
	Token            *TokenMetadata `json:"tokenMetadata,omitempty"`
}

// PayloadSize is the number of bytes that will be sent to metadata storage.
func (r MintRequest) PayloadSize() int {
	switch {
	case r.NFT != nil:
		return len(r.NFT.Media)
	case r.Token != nil:
		return len(r.Token.Media)
	}
	return 0
}

// Attribute is one trait of an NFT, e.g. Color: Red
type Attribute struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type NFTMetadata struct {
	Title                   string      `json:"title"`
	Description             string      `json:"description"`
	Media                   []byte      `json:"media"`
	MediaName               string      `json:"mediaName"`
	MediaContentType        string      `json:"mediaContentType"`
	Symbol                  string      `json:"symbol,omitempty"`
	Attributes              []Attribute `json:"attributes,omitempty"`
	Creator                 string      `json:"creator,omitempty"`
	IsLimitedEdition        bool        `json:"isLimitedEdition,omitempty"`
	TotalEditions           int         `json:"totalEditions,omitempty"`
	EditionNumber           int         `json:"editionNumber,omitempty"`
	Royalty                 float64     `json:"royalty,omitempty"`
	Tags                    []string    `json:"tags,omitempty"`
	License                 string      `json:"license,omitempty"`
	ExternalLink            string      `json:"externalLink,omitempty"`
	CreationTimestampToggle bool        `json:"creationTimestampToggle,omitempty"`
	CreationTimestamp       string      `json:"creationTimestamp,omitempty"`
}

type TokenMetadata struct {
	Name             string           `json:"name"`
	Symbol           string           `json:"symbol"`
	Media            []byte           `json:"media"`
	MediaName        string           `json:"mediaName"`
	MediaContentType string           `json:"mediaContentType"`
	Supply           *decimal.Decimal `json:"supply,omitempty"`
	Decimals         *int             `json:"decimals,omitempty"`
	Description      string           `json:"description,omitempty"`
	ExternalLink     string           `json:"externalLink,omitempty"`
}

// Event is one ordered progress report of a minting pipeline.
// Done is set on the final event, successful or not.
type Event struct {
	StepID int         `json:"stepId"`
	Result string      `json:"result"`
	Error  *ErrorEvent `json:"error,omitempty"`
	Done   bool        `json:"done"`
}

// ErrorEvent is the user-safe description of a terminal failure
type ErrorEvent struct {
	Kind            string `json:"kind"`
	Message         string `json:"message"`
	RefundAttempted bool   `json:"refundAttempted"`
	Refunded        bool   `json:"refunded"`
}

// ChainTransaction is a settled native transfer as read from a chain
type ChainTransaction struct {
	Signature string
	Sender    string
	Recipient string
	Amount    decimal.Decimal
	Success   bool
	Err       string
}

// TransferResult is the outcome of an outgoing native transfer
type TransferResult struct {
	Success bool
	TxRef   string
	Err     error
}
