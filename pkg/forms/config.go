package forms

import (
	"os"
	"strconv"
	"time"
)

// FormsConfig controls analytics windows and export limits.
type FormsConfig struct {
	AnalyticsLocation *time.Location // Zone for week/month/day boundaries. Default UTC.
	TrendDefaultDays  int            // Trend window when none is requested. Default 30.
	TrendMaxDays      int            // Largest accepted trend window. Default 366.
	ExportMaxRows     int            // Rows per export; 0 means unlimited. Default 0.
}

// DefaultFormsConfig returns the default form engine configuration.
func DefaultFormsConfig() *FormsConfig {
	return &FormsConfig{
		AnalyticsLocation: time.UTC,
		TrendDefaultDays:  30,
		TrendMaxDays:      366,
	}
}

// FormsConfigFromEnv loads config from environment variables.
// FORMS_ANALYTICS_TIMEZONE, FORMS_TREND_DEFAULT_DAYS, FORMS_TREND_MAX_DAYS,
// FORMS_EXPORT_MAX_ROWS
func FormsConfigFromEnv() *FormsConfig {
	cfg := DefaultFormsConfig()

	if v := os.Getenv("FORMS_ANALYTICS_TIMEZONE"); v != "" {
		if loc, err := time.LoadLocation(v); err == nil {
			cfg.AnalyticsLocation = loc
		}
	}

	if v := os.Getenv("FORMS_TREND_DEFAULT_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TrendDefaultDays = n
		}
	}

	if v := os.Getenv("FORMS_TREND_MAX_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TrendMaxDays = n
		}
	}

	if v := os.Getenv("FORMS_EXPORT_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ExportMaxRows = n
		}
	}

	return cfg
}
