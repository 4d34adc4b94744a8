package selection

import (
	"log/slog"

	"github.com/correlator-io/alertmon/internal/filters"
)

// NewResolver picks the resolver cfg supports: dbt when a project dir is set, the
// static graph when nodes or selectors are declared, otherwise nil.
func NewResolver(cfg *Config, logger *slog.Logger) filters.NodeResolver {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg == nil {
		return nil
	}

	if cfg.Dbt.ProjectDir != "" {
		logger.Info("Resolving selectors with dbt",
			slog.String("project_dir", cfg.Dbt.ProjectDir))

		return NewDbtResolver(cfg.Dbt, nil, logger)
	}

	if len(cfg.Nodes) > 0 || len(cfg.Selectors) > 0 {
		logger.Info("Resolving selectors from static config",
			slog.Int("nodes", len(cfg.Nodes)),
			slog.Int("selectors", len(cfg.Selectors)))

		return NewStaticResolver(cfg, logger)
	}

	return nil
}
