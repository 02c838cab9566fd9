// Package config provides configuration loading for GridPulse Core.
//
// Configuration is loaded from a YAML file with three layers of precedence
// (lowest to highest): built-in defaults, file contents, and environment
// variable overrides of the form GRIDPULSE_SECTION_KEY.
//
// The monitor section holds the tunables of the telemetry core: the wattage
// floor used by status classification, the TTL of cached device records, the
// idle timeout after which a silent device is presumed disconnected, and the
// cadence of the background idle sweep.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	store := device.NewStore(rdb, cfg.Monitor, logger)
//
// All durations in the file are plain integer seconds; helper methods on
// MonitorConfig convert them to time.Duration for callers.
package config
