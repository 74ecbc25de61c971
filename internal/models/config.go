package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Pipeline  PipelineConfig
	Reconcile ReconcileConfig
	Storage   StorageConfig
	Minter    MinterConfig
	Formance  FormanceConfig
	Chains    map[string]ChainConfig
	ClientEnv string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	LockTTL         time.Duration
}

// ServerConfig holds HTTP and websocket listener settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	EventTimeout    time.Duration
	RateLimit       float64
	RateBurst       int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// PipelineConfig bounds the minting saga
type PipelineConfig struct {
	StageTimeout   time.Duration
	DeltaTimeout   time.Duration
	FeeCacheMaxAge time.Duration
}

// ReconcileConfig holds the expense correction loop settings
type ReconcileConfig struct {
	Interval  time.Duration
	BatchSize int
	MinAge    time.Duration
}

// StorageConfig points at the metadata storage gateway
type StorageConfig struct {
	BaseURL string
	APIKey  string
}

// MinterConfig points at the per-chain minting sidecars, keyed by chain symbol
type MinterConfig struct {
	Endpoints map[string]string
	APIKey    string
}

// FormanceConfig holds the optional ledger mirror settings
type FormanceConfig struct {
	Enabled      bool
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ChainConfig is the per-chain fee table and connection settings.
// Amounts are in the chain's native unit.
type ChainConfig struct {
	Symbol              string
	RPCURL              string
	PlatformKey         string
	PlatformAddress     string
	ConfirmTimeout      time.Duration
	Confirmations       uint64
	MinRefundCost       decimal.Decimal
	RefundFeeMargin     decimal.Decimal
	PlatformFees        map[AssetType]decimal.Decimal
	MintGasUnits        uint64
	DeployGasUnits      uint64
	StoragePricePerByte decimal.Decimal
	StoragePriceURL     string
}

// PlatformFee returns the configured platform fee for an asset type, zero when unset.
func (c ChainConfig) PlatformFee(assetType AssetType) decimal.Decimal {
	if fee, ok := c.PlatformFees[assetType]; ok {
		return fee
	}
	return decimal.Zero
}
