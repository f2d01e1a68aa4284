package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"titlemonitor/internal/config"
	"titlemonitor/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional checks are displayed but never block startup.
	Optional bool
}

// RunAll executes every check for cfg, including the optional ones.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := required(cfg)
	results = append(results, CheckDirectoryAccess("State directory", cfg.State.Dir))
	catalog := CheckCatalog(ctx, cfg.Catalog.URL)
	catalog.Optional = true
	results = append(results, catalog)
	return results
}

// Validate runs the checks that must pass before polling starts. The error
// is marked services.ErrConfiguration and lists every failure.
func Validate(cfg *config.Config) error {
	if cfg == nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "validate", "configuration missing", nil)
	}
	var failures []string
	for _, result := range required(cfg) {
		if !result.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "validate",
		strings.Join(failures, "; "), errors.New("environment not ready"))
}

func required(cfg *config.Config) []Result {
	return []Result{
		CheckMonitoredFile(cfg.Monitor.MonitoredFile),
		CheckCISIS(cfg.CISIS.Path),
		CheckThrottle(cfg.Monitor.ThrottleSeconds),
	}
}
