package config

import "git.home.luguber.info/inful/pagesmith/internal/foundation/normalization"

// ProviderType identifies the generation service implementation.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
)

var providerNormalizer = normalization.NewNormalizer(map[string]ProviderType{
	"anthropic": ProviderAnthropic,
	"claude":    ProviderAnthropic,
	"openai":    ProviderOpenAI,
}, ProviderAnthropic)

// StorageDriver identifies the document store backend.
type StorageDriver string

const (
	StorageSQLite StorageDriver = "sqlite"
	StorageMongo  StorageDriver = "mongo"
	StorageMemory StorageDriver = "memory"
)

var storageNormalizer = normalization.NewNormalizer(map[string]StorageDriver{
	"sqlite":  StorageSQLite,
	"mongo":   StorageMongo,
	"mongodb": StorageMongo,
	"memory":  StorageMemory,
}, StorageSQLite)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryNormalizer = normalization.NewNormalizer(map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
}, RetryBackoffLinear)

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return retryNormalizer.Normalize(raw)
}
