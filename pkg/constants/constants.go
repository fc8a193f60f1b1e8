// Package constants provides shared constants used throughout the directory
// codebase. This includes output file names, file permissions and the
// configuration defaults that must agree between the CLI and the library.
package constants

import "time"

// Output file names, relative to the output directory
const (
	// MergedFile holds every canonical record
	MergedFile = "merged.vcf"

	// PublicFile holds the public projection
	PublicFile = "public.vcf"

	// MembersFile holds the members projection
	MembersFile = "members.vcf"

	// AdminFile holds the admin projection
	AdminFile = "admin.vcf"

	// ExcludedFile holds excluded records in passthrough mode. It is never
	// exported.
	ExcludedFile = "excluded.vcf"

	// AuditFile holds conflicts, origins and diagnostics
	AuditFile = "audit.yaml"
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// PrivateFilePermissions is for outputs holding non-public contact data (rw-------)
	PrivateFilePermissions = 0600
)

// Configuration defaults
const (
	// ConfigName is the config file name without extension, searched in the
	// home and working directories
	ConfigName = ".directory"

	// EnvPrefix prefixes every environment variable
	EnvPrefix = "DIRECTORY"

	// DefaultOutputDir is where outputs go when no directory is configured
	DefaultOutputDir = "out"

	// DefaultInputPattern matches collector files when no input is configured
	DefaultInputPattern = "*.vcf"
)

// Timeout constants
const (
	// WatchDebounce is the quiet period after the last input change before
	// the watch command re-runs
	WatchDebounce = 500 * time.Millisecond

	// ShutdownTimeout bounds graceful shutdown after an error
	ShutdownTimeout = 5 * time.Second
)
