package cfg

import (
	"errors"
	"flag"
	"fmt"
	"math"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	DBLogMinMillis        int

	DupRadiusMeters    float64
	DupScanLimit       int
	PriorityHigh       float64
	PriorityMedium     float64
	RelevanceThreshold float64
	ScoringFile        string

	TrendDays   int
	HeatmapCell float64
	ExportDir   string

	VisionEndpoint  string
	ClaudeAPIKey    string
	ClaudeModel     string
	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DBLogMinMillis, "db-log-min-ms", 0, "only log SQL statements slower than this many milliseconds (0 = log all)")

	fs.Float64Var(&c.DupRadiusMeters, "dup-radius-meters", 250, "distance within which a new complaint joins an existing cluster (meters)")
	fs.IntVar(&c.DupScanLimit, "dup-scan-limit", 200, "number of most recent geolocated complaints scanned for duplicates")
	fs.Float64Var(&c.PriorityHigh, "priority-high", 0.75, "minimum score for HIGH priority")
	fs.Float64Var(&c.PriorityMedium, "priority-medium", 0.45, "minimum score for MEDIUM priority")
	fs.Float64Var(&c.RelevanceThreshold, "relevance-threshold", 0.35, "minimum image confidence for a photo to count as a city issue")
	fs.StringVar(&c.ScoringFile, "scoring-file", "", "optional YAML file overriding priority thresholds and object-type weights")

	fs.IntVar(&c.TrendDays, "trend-days", 7, "default window for daily trends (1..366)")
	fs.Float64Var(&c.HeatmapCell, "heatmap-cell", 0.01, "default heatmap cell size in degrees")
	fs.StringVar(&c.ExportDir, "export-dir", "exports", "directory export payload files are written to")

	fs.StringVar(&c.VisionEndpoint, "vision-endpoint", "", "image classifier URL (empty = photos are not classified)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude text classifier (empty = text is not classified)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-haiku-4-5", "Claude model used for text classification")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.DBLogMinMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_LOG_MIN_MS %d (must be >= 0)", c.DBLogMinMillis))
	}

	if !finite(c.DupRadiusMeters) || c.DupRadiusMeters <= 0 || c.DupRadiusMeters > 10000 {
		errs = append(errs, fmt.Errorf("invalid DUP_RADIUS_METERS %v (must be in (0, 10000])", c.DupRadiusMeters))
	}
	if c.DupScanLimit <= 0 || c.DupScanLimit > 10000 {
		errs = append(errs, fmt.Errorf("invalid DUP_SCAN_LIMIT %d (must be 1..10000)", c.DupScanLimit))
	}

	errs = append(errs, validateThresholds(c.PriorityHigh, c.PriorityMedium)...)

	if !finite(c.RelevanceThreshold) || c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid RELEVANCE_THRESHOLD %v (must be in [0, 1])", c.RelevanceThreshold))
	}

	if c.TrendDays <= 0 || c.TrendDays > 366 {
		errs = append(errs, fmt.Errorf("invalid TREND_DAYS %d (must be 1..366)", c.TrendDays))
	}
	if !finite(c.HeatmapCell) || c.HeatmapCell < geo.MinCellSize || c.HeatmapCell > geo.MaxCellSize {
		errs = append(errs, fmt.Errorf("invalid HEATMAP_CELL %v (must be in [%g, %g])", c.HeatmapCell, geo.MinCellSize, geo.MaxCellSize))
	}

	if c.ExportDir == "" {
		errs = append(errs, errors.New("EXPORT_DIR is required"))
	}

	// A model is only needed when the text classifier is enabled
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateThresholds(high, medium float64) []error {
	var errs []error
	if !finite(high) || high <= 0 || high > 1 {
		errs = append(errs, fmt.Errorf("invalid PRIORITY_HIGH %v (must be in (0, 1])", high))
	}
	if !finite(medium) || medium <= 0 || medium > 1 {
		errs = append(errs, fmt.Errorf("invalid PRIORITY_MEDIUM %v (must be in (0, 1])", medium))
	}
	if medium >= high {
		errs = append(errs, fmt.Errorf("PRIORITY_HIGH %v must be greater than PRIORITY_MEDIUM %v", high, medium))
	}
	return errs
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
