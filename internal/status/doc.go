// Package status derives a device's operating state from telemetry.
//
// Classification combines three inputs: the electrical reading (is the
// device actually drawing load?), the commanded relay value (should it
// be?), and the configured working-hours window (is now a time when
// automatic mode expects it to be powered?). The result is a
// (state, severity) pair; only non-normal severities feed the alert
// pipeline.
//
// The working-hours window may span midnight (streetlights typically run
// 18:00-05:00); the evaluation handles both the before-midnight and
// after-midnight portions of such windows.
package status
