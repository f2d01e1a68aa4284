package config

const (
	defaultConfigPath           = "~/.config/titlemonitor/config.toml"
	defaultThrottleSeconds      = 600
	defaultCISISPath            = "cisis"
	defaultExportTimeoutSeconds = 600
	defaultEncoding             = EncodingLatin1
	defaultCatalogURL           = "http://127.0.0.1:4242/rpc"
	defaultCatalogTimeout       = 30
	defaultCatalogRetryAttempts = 3
	defaultCatalogRetryDelay    = 2
	defaultCatalogRatePerSecond = 10
	defaultChangeProxy          = ProxyDigest
	defaultDispatchConcurrency  = 1
	defaultStateDir             = "~/.local/share/titlemonitor"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogMaxSizeMB         = 50
	defaultLogMaxBackups        = 5
)

// Supported record change proxies.
const (
	// ProxyDigest fingerprints the full serialized record.
	ProxyDigest = "digest"
	// ProxyLength fingerprints only the serialized byte length.
	ProxyLength = "length"
)

// Supported ISO-2709 export encodings.
const (
	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf-8"
)

// Collections lists the collection acronyms the catalog accepts.
var Collections = []string{"scl", "arg", "sza"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Monitor: Monitor{
			ThrottleSeconds: defaultThrottleSeconds,
		},
		CISIS: CISIS{
			Path:                 defaultCISISPath,
			ExportTimeoutSeconds: defaultExportTimeoutSeconds,
			Encoding:             defaultEncoding,
		},
		Catalog: Catalog{
			URL:               defaultCatalogURL,
			TimeoutSeconds:    defaultCatalogTimeout,
			RetryAttempts:     defaultCatalogRetryAttempts,
			RetryDelaySeconds: defaultCatalogRetryDelay,
			RatePerSecond:     defaultCatalogRatePerSecond,
		},
		Dispatch: Dispatch{
			ChangeProxy: defaultChangeProxy,
			Concurrency: defaultDispatchConcurrency,
		},
		State: State{
			Dir: defaultStateDir,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
	}
}
