// Package ingest is the telemetry ingestion boundary.
//
// Devices publish a status report every few seconds on unit/{mac}/status
// and a liveness beacon on unit/{mac}/alive. The service normalizes each
// raw payload into a typed reading at the boundary - timestamp
// conversion, GPS field renaming, synthetic substitutions for meterless
// bench hardware, interval-energy derivation - so the rest of the system
// never touches wire shapes.
//
// Flow per status message:
//
//	normalize -> resolve record (cache, then catalog) -> merge into the
//	live store -> mirror to history -> alert pipeline
//
// Telemetry from a MAC absent from the catalog lands in a short-lived
// unknown-devices marker and is otherwise discarded. Every failure mode
// is isolated to the single message involved.
//
// The package also owns the outbound command channel: toggle, auto-mode,
// and schedule pushes on unit/{mac}/command.
package ingest
