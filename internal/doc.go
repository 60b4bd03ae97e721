// Package internal contains the core implementation packages for
// signdeck.
//
// These packages follow Go's internal package convention: they are not
// importable by external modules and together implement the billboard
// fleet console behind the signdeck CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - manifest: the display manifest document and its invariants
//   - cdn: the write path to the GitHub-backed CDN (uploads, manifest
//     edits, publish workflow dispatch, local directory sync)
//   - github: GitHub contents API client with retry
//   - mqtt: broker session, topic layout and reconnect handling
//   - fleet: command dispatch, the command state machine and the device
//     registry
//   - store: SQLite-backed command history and console settings
//   - secrets: GitHub token storage (keyring with file fallback)
//   - server: the admin HTTP API and WebSocket event stream
//   - config: Viper-based configuration with defaults and validation
//   - logging, errors, version: cross-cutting support
//
// # Inter-Package Communication
//
// The cdn publisher is the only writer to the CDN repository and owns
// the manifest read-modify-write cycle. The fleet tracker is the only
// consumer of device status traffic; the server and the CLI observe it
// through its event subscription. Every package reports failures as
// internal/errors values so HTTP handlers and the CLI can map them
// uniformly.
package internal
