// Package migrations embeds all SQL migration files so the binary is
// self-contained. This is required for the desktop sidecar, which runs with an
// unpredictable working directory where ./migrations/ does not exist.
package migrations

import "embed"

// FS contains per-driver *.sql migration files embedded at compile time.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
