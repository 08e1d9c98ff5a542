// Package workspace manages scratch directories for builds and deploys,
// supporting both ephemeral (timestamped) and persistent (fixed-path) modes.
//
// Ephemeral mode creates timestamped directories (e.g., blogbuilder-20260830-122336)
// suitable for one-shot operations like a deploy clone, cleaning up completely
// after use.
//
// Persistent mode uses a fixed directory path that persists across builds,
// enabling the incremental page cache to survive between runs.
package workspace
