/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Common paths
 */

package hidock

import (
	"os"
	"path/filepath"
)

// userStateDir returns the user-owned directory this driver stores its
// config, cache, and downloads under. This is a single-user USB driver,
// not a privileged system daemon, so it defaults under the invoking
// user's home directory rather than /etc or /var/lib. A home directory
// lookup failure falls back to a relative directory in the current
// working directory.
func userStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".hidock"
	}
	return filepath.Join(home, ".hidock")
}

var (
	// PathConfDir is the directory searched for the driver's config file
	PathConfDir = userStateDir()

	// PathProgState is the directory holding durable program state
	PathProgState = userStateDir()

	// PathLogDir is the directory holding per-device log files
	PathLogDir = filepath.Join(PathProgState, "log")

	// PathCacheDir is the directory holding the metadata cache
	PathCacheDir = filepath.Join(PathProgState, "cache")

	// PathLockDir is the directory holding lock files
	PathLockDir = filepath.Join(PathProgState, "lock")

	// PathDownloadDir is the default directory downloaded recordings are
	// written to
	PathDownloadDir = filepath.Join(PathProgState, "downloads")
)

// System-wide paths, kept only as an explicit opt-in override for a
// deployment that still wants to run the driver as a shared system
// service. Nothing defaults to these; a caller wires them in through
// Configuration.CacheDir/LogDir or the config file's [paths] section.
const (
	SystemConfDir  = "/etc/hidock-driver"
	SystemProgState = "/var/lib/hidock-driver"
)
