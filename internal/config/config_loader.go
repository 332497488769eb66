package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/services"
	"github.com/Marketen/exitbus-verifier/internal/clproof"
	"github.com/Marketen/exitbus-verifier/internal/merkle"
)

// Mainnet layouts: Deneb before the pivot, Electra from it on.
const (
	DefaultGIFirstValidatorPrev      = "0x0000000000000000000000000000000000000000000000000056000000000028"
	DefaultGIFirstValidatorCurr      = "0x0000000000000000000000000000000000000000000000000096000000000028"
	DefaultGIHistoricalSummariesPrev = "0x0000000000000000000000000000000000000000000000000000000000003b00"
	DefaultGIHistoricalSummariesCurr = "0x0000000000000000000000000000000000000000000000000000000000005b00"

	DefaultFirstSupportedSlot = 8626176  // Deneb
	DefaultPivotSlot          = 11649024 // Electra
)

// Config holds runtime configuration for the exitbus-verifier service.
type Config struct {
	ListenAddr       string
	AllowedOrigins   string
	EnableMetrics    bool
	BeaconNodeURL    string
	ExecutionNodeURL string
	DBPath           string
	PollInterval     time.Duration
	SecondsPerSlot   uint64

	Proofs clproof.Config

	ExitBusLimits          services.LimitParams
	TriggerLimits          services.LimitParams
	ConsolidationLimits    services.LimitParams
	MaxValidatorsPerReport uint64
}

// env returns the trimmed value of key, or def when unset or blank.
func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envUint(key string, def uint64) (uint64, error) {
	s := env(key, strconv.FormatUint(def, 10))
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func envGIndex(key, def string) (merkle.GIndex, error) {
	s := env(key, def)
	var g merkle.GIndex
	if err := g.UnmarshalText([]byte(s)); err != nil {
		return merkle.GIndex{}, fmt.Errorf("invalid %s (want packed bytes32 hex): %w", key, err)
	}
	return g, nil
}

func envLimits(prefix string, keys [3]string, def services.LimitParams) (services.LimitParams, error) {
	var (
		p   services.LimitParams
		err error
	)
	if p.MaxExitRequestsLimit, err = envUint(prefix+keys[0], def.MaxExitRequestsLimit); err != nil {
		return p, err
	}
	if p.ExitsPerFrame, err = envUint(prefix+keys[1], def.ExitsPerFrame); err != nil {
		return p, err
	}
	if p.FrameDurationSeconds, err = envUint(prefix+keys[2], def.FrameDurationSeconds); err != nil {
		return p, err
	}
	return p, nil
}

var (
	exitLimitKeys          = [3]string{"MAX_EXIT_REQUESTS_LIMIT", "EXITS_PER_FRAME", "FRAME_DURATION_SECONDS"}
	consolidationLimitKeys = [3]string{"MAX_LIMIT", "PER_FRAME", "FRAME_DURATION_SECONDS"}
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       env("LISTEN_ADDR", ":8080"),
		AllowedOrigins:   env("API_ALLOWED_ORIGINS", "*"),
		BeaconNodeURL:    env("BEACON_NODE_URL", ""),
		ExecutionNodeURL: env("EXECUTION_NODE_URL", ""),
		DBPath:           env("DB_PATH", ""),
	}
	if cfg.BeaconNodeURL == "" && cfg.ExecutionNodeURL == "" {
		return nil, fmt.Errorf("BEACON_NODE_URL or EXECUTION_NODE_URL is required")
	}

	metricsStr := env("ENABLE_METRICS", "true")
	enable, err := strconv.ParseBool(metricsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ENABLE_METRICS: %q", metricsStr)
	}
	cfg.EnableMetrics = enable

	sec, err := envUint("POLL_INTERVAL_SECONDS", 12)
	if err != nil {
		return nil, err
	}
	if sec == 0 {
		return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS: must be positive")
	}
	cfg.PollInterval = time.Duration(sec) * time.Second

	if cfg.SecondsPerSlot, err = envUint("SECONDS_PER_SLOT", 12); err != nil {
		return nil, err
	}
	if cfg.SecondsPerSlot == 0 {
		return nil, fmt.Errorf("invalid SECONDS_PER_SLOT: must be positive")
	}

	p := &cfg.Proofs
	if p.GIFirstValidatorPrev, err = envGIndex("GI_FIRST_VALIDATOR_PREV", DefaultGIFirstValidatorPrev); err != nil {
		return nil, err
	}
	if p.GIFirstValidatorCurr, err = envGIndex("GI_FIRST_VALIDATOR_CURR", DefaultGIFirstValidatorCurr); err != nil {
		return nil, err
	}
	if p.GIHistoricalSummariesPrev, err = envGIndex("GI_HISTORICAL_SUMMARIES_PREV", DefaultGIHistoricalSummariesPrev); err != nil {
		return nil, err
	}
	if p.GIHistoricalSummariesCurr, err = envGIndex("GI_HISTORICAL_SUMMARIES_CURR", DefaultGIHistoricalSummariesCurr); err != nil {
		return nil, err
	}
	first, err := envUint("FIRST_SUPPORTED_SLOT", DefaultFirstSupportedSlot)
	if err != nil {
		return nil, err
	}
	pivot, err := envUint("PIVOT_SLOT", DefaultPivotSlot)
	if err != nil {
		return nil, err
	}
	if first > pivot {
		return nil, fmt.Errorf("FIRST_SUPPORTED_SLOT %d is after PIVOT_SLOT %d", first, pivot)
	}
	p.FirstSupportedSlot, p.PivotSlot = domain.Slot(first), domain.Slot(pivot)

	if cfg.ExitBusLimits, err = envLimits("", exitLimitKeys, services.LimitParams{}); err != nil {
		return nil, err
	}
	if cfg.TriggerLimits, err = envLimits("TW_", exitLimitKeys, services.LimitParams{}); err != nil {
		return nil, err
	}
	if cfg.ConsolidationLimits, err = envLimits("CONSOLIDATION_", consolidationLimitKeys, services.LimitParams{}); err != nil {
		return nil, err
	}

	if cfg.MaxValidatorsPerReport, err = envUint("MAX_VALIDATORS_PER_REPORT", services.DefaultMaxValidatorsPerReport); err != nil {
		return nil, err
	}
	if cfg.MaxValidatorsPerReport == 0 {
		return nil, fmt.Errorf("invalid MAX_VALIDATORS_PER_REPORT: must be positive")
	}

	return cfg, nil
}
