package isis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"titlemonitor/internal/logging"
	"titlemonitor/internal/record"
	"titlemonitor/internal/services"
)

// MXBinaryName is the CISIS utility used for exports.
const MXBinaryName = "mx"

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the converter.
type Option func(*Converter)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Converter) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithEncoding selects how field bytes are decoded: "latin1" (default) or "utf-8".
func WithEncoding(name string) Option {
	return func(c *Converter) {
		c.decoder = decoderFor(name)
	}
}

// WithTempDir sets where ISO exports are written.
func WithTempDir(dir string) Option {
	return func(c *Converter) {
		c.tempDir = dir
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = logging.NewComponentLogger(logger, "isis")
	}
}

// Converter exports master files through mx and parses the result.
type Converter struct {
	binary  string
	timeout time.Duration
	decoder *encoding.Decoder
	tempDir string
	exec    Executor
	logger  *slog.Logger
}

// New constructs a converter for the CISIS installation in cisisPath.
func New(cisisPath string, exportTimeoutSeconds int, opts ...Option) (*Converter, error) {
	cisisPath = strings.TrimSpace(cisisPath)
	if cisisPath == "" {
		return nil, errors.New("cisis path required")
	}
	c := &Converter{
		binary:  filepath.Join(cisisPath, MXBinaryName),
		timeout: time.Duration(exportTimeoutSeconds) * time.Second,
		decoder: decoderFor(""),
		exec:    commandExecutor{},
		logger:  logging.NewComponentLogger(nil, "isis"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Binary returns the mx path the converter runs.
func (c *Converter) Binary() string {
	return c.binary
}

// DatabaseName strips the .mst extension; mx addresses databases by base name.
func DatabaseName(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".mst") {
		return strings.TrimSuffix(path, filepath.Ext(path))
	}
	return path
}

// Convert exports every active record of the master file at path.
func (c *Converter) Convert(ctx context.Context, path string) ([]record.Record, error) {
	workDir, err := os.MkdirTemp(c.tempDir, "titlemonitor-iso-")
	if err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			c.logger.Debug("export cleanup failed", logging.String("dir", workDir), logging.Error(err))
		}
	}()
	isoPath := filepath.Join(workDir, "export.iso")

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{DatabaseName(path), "iso=" + isoPath, "-all", "now"}
	started := time.Now()
	var output []string
	if err := c.exec.Run(runCtx, c.binary, args, func(line string) {
		output = append(output, line)
	}); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "isis", "export",
				fmt.Sprintf("mx export exceeded %s", c.timeout), err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "isis", "export",
			strings.TrimSpace("mx export failed "+lastLine(output)), err)
	}

	file, err := os.Open(isoPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "isis", "export", "mx produced no iso export", err)
	}
	defer file.Close()

	records, err := NewReader(file, c.decoder).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse iso export: %w", err)
	}
	c.logger.Debug("master file exported",
		logging.String(logging.FieldEventType, "isis_export_complete"),
		logging.String("database", DatabaseName(path)),
		logging.Int("records", len(records)),
		logging.Duration("duration", time.Since(started)),
	)
	return records, nil
}

// Version returns the banner printed by "mx what".
func (c *Converter) Version(ctx context.Context) (string, error) {
	var lines []string
	if err := c.exec.Run(ctx, c.binary, []string{"what"}, func(line string) {
		lines = append(lines, line)
	}); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "isis", "version", "mx what failed", err)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return "(" + trimmed + ")"
		}
	}
	return ""
}

func decoderFor(name string) *encoding.Decoder {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return nil
	default:
		return charmap.ISO8859_1.NewDecoder()
	}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	// mx reports errors on stderr; share the pipe so they reach onStdout.
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	if scanErr := forwardLines(stdout, onStdout); scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

func forwardLines(r io.Reader, forward func(string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if forward != nil {
			forward(scanner.Text())
		}
	}
	return scanner.Err()
}
