package selection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrDbtLs is returned when `dbt ls` fails.
var ErrDbtLs = errors.New("dbt ls command failed")

// defaultDbtExecutable is used when DbtConfig.Executable is empty.
const defaultDbtExecutable = "dbt"

// CommandRunner runs a command and returns its standard output.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// DbtResolver resolves selectors with `dbt ls` inside a dbt project.
type DbtResolver struct {
	cfg    DbtConfig
	run    CommandRunner
	logger *slog.Logger
}

// NewDbtResolver creates a resolver for the project in cfg. A nil run uses os/exec.
func NewDbtResolver(cfg DbtConfig, run CommandRunner, logger *slog.Logger) *DbtResolver {
	if logger == nil {
		logger = slog.Default()
	}

	if run == nil {
		run = execCommand
	}

	if cfg.Executable == "" {
		cfg.Executable = defaultDbtExecutable
	}

	return &DbtResolver{cfg: cfg, run: run, logger: logger}
}

// Resolve lists the nodes dbt selects for selector.
// A selection matching nothing returns an empty list, not an error.
func (r *DbtResolver) Resolve(ctx context.Context, selector string) ([]string, error) {
	args := r.args(selector)

	r.logger.Debug("Running dbt ls",
		slog.String("selector", selector),
		slog.String("project_dir", r.cfg.ProjectDir))

	output, err := r.run(ctx, r.cfg.ProjectDir, r.cfg.Executable, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: selector '%s': %w", ErrDbtLs, selector, err)
	}

	nodes := parseLsOutput(output)
	if len(nodes) == 0 {
		r.logger.Warn("The selection criterion does not match any nodes",
			slog.String("selector", selector))
	}

	return nodes, nil
}

func (r *DbtResolver) args(selector string) []string {
	args := []string{"--log-format", "text", "-q", "ls"}
	if selector != "" {
		args = append(args, "-s", selector)
	}

	if r.cfg.ProjectDir != "" {
		args = append(args, "--project-dir", absPath(r.cfg.ProjectDir))
	}

	if r.cfg.ProfilesDir != "" {
		args = append(args, "--profiles-dir", absPath(r.cfg.ProfilesDir))
	}

	if r.cfg.Target != "" {
		args = append(args, "--target", r.cfg.Target)
	}

	return args
}

// parseLsOutput keeps node name lines and drops JSON log lines, which dbt prints
// when nothing matches.
func parseLsOutput(output []byte) []string {
	nodes := []string{}

	for _, line := range strings.Split(string(output), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
			continue
		}

		nodes = append(nodes, trimmed)
	}

	return nodes
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return abs
}

func execCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // executable comes from trusted config
	cmd.Dir = dir

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}

		return nil, err
	}

	return output, nil
}
