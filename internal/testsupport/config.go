package testsupport

import (
	"path/filepath"
	"testing"

	"titlemonitor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The monitored file path points into the temp tree but is not created;
// use WithMasterFile or WriteFile for that.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Monitor.MonitoredFile = filepath.Join(base, "bases", "title", "title.mst")
	cfgVal.Monitor.Collection = "scl"
	cfgVal.Monitor.ThrottleSeconds = 1
	cfgVal.CISIS.Path = filepath.Join(base, "cisis")
	cfgVal.CISIS.ExportTimeoutSeconds = 10
	cfgVal.Catalog.RetryDelaySeconds = 1
	cfgVal.Catalog.RatePerSecond = 0
	cfgVal.State.Dir = filepath.Join(base, "state")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithMasterFile writes content to the monitored file.
func WithMasterFile(content []byte) ConfigOption {
	return func(b *configBuilder) {
		WriteBytes(b.t, b.cfg.Monitor.MonitoredFile, content)
	}
}

// WithStubMX installs an mx stub in the CISIS directory that exports iso.
func WithStubMX(iso []byte) ConfigOption {
	return func(b *configBuilder) {
		WriteStubMX(b.t, b.cfg.CISIS.Path, iso)
	}
}

// WithCatalogURL points the catalog client at url (usually an httptest server).
func WithCatalogURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.URL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.State.Dir)
}
