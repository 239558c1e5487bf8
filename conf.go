/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Program configuration
 */

package hidock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// ConfFileName is the name of the driver's configuration file
const ConfFileName = "hidock-driver.conf"

// Configuration holds the tunable parameters of the driver. Values not
// present in the loaded file keep their Conf defaults.
type Configuration struct {
	LogDevice  LogLevel // per-device log mask
	LogConsole LogLevel // console log mask

	ColorConsole bool // enable ANSI colors on console

	ConnectRetryCount int // connect() attempts before giving up
	HealthCheckPeriod int // seconds between idle health checks

	CacheDir    string // metadata cache directory
	LogDir      string // per-device log directory
	DownloadDir string // default destination directory for downloaded recordings
}

// Conf is the global configuration instance, seeded with defaults
var Conf = Configuration{
	LogDevice:         LogDebug,
	LogConsole:        LogInfo,
	ColorConsole:      true,
	ConnectRetryCount: ConnectRetryCount,
	HealthCheckPeriod: int(HealthCheckInterval.Seconds()),
	CacheDir:          PathCacheDir,
	LogDir:            PathLogDir,
	DownloadDir:       PathDownloadDir,
}

// ConfLoad loads configuration overrides from the driver's config file,
// searching PathConfDir first and then the executable's own directory.
// A missing file is not an error; Conf simply keeps its defaults.
func ConfLoad() error {
	exepath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("conf: %w", err)
	}
	exepath = filepath.Dir(exepath)

	files := []string{
		filepath.Join(PathConfDir, ConfFileName),
		filepath.Join(exepath, ConfFileName),
	}

	for _, file := range files {
		if err := confLoadFile(file); err != nil {
			return fmt.Errorf("conf: %w", err)
		}
	}

	return nil
}

func confLoadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return err
	}

	logging := cfg.Section("logging")
	if key := logging.Key("device-log"); key.String() != "" {
		Conf.LogDevice = parseLogLevel(key.String())
	}
	if key := logging.Key("console-log"); key.String() != "" {
		Conf.LogConsole = parseLogLevel(key.String())
	}
	if logging.HasKey("console-color") {
		Conf.ColorConsole = logging.Key("console-color").MustBool(Conf.ColorConsole)
	}

	conn := cfg.Section("connection")
	if conn.HasKey("retry-count") {
		Conf.ConnectRetryCount = conn.Key("retry-count").MustInt(Conf.ConnectRetryCount)
	}
	if conn.HasKey("health-check-period") {
		Conf.HealthCheckPeriod = conn.Key("health-check-period").MustInt(Conf.HealthCheckPeriod)
	}

	paths := cfg.Section("paths")
	if paths.HasKey("cache-dir") {
		Conf.CacheDir = paths.Key("cache-dir").String()
	}
	if paths.HasKey("log-dir") {
		Conf.LogDir = paths.Key("log-dir").String()
	}
	if paths.HasKey("download-dir") {
		Conf.DownloadDir = paths.Key("download-dir").String()
	}

	return nil
}

// parseLogLevel parses a comma-separated list of level names
func parseLogLevel(s string) LogLevel {
	var mask LogLevel
	for _, tok := range strings.Split(s, ",") {
		switch strings.TrimSpace(tok) {
		case "":
		case "error":
			mask |= LogError
		case "info":
			mask |= LogInfo | LogError
		case "debug":
			mask |= LogDebug | LogInfo | LogError
		case "trace-jensen":
			mask |= LogTraceJensen | LogDebug | LogInfo | LogError
		case "trace-usb":
			mask |= LogTraceUSB | LogDebug | LogInfo | LogError
		case "all", "trace-all":
			mask |= LogAll
		}
	}
	return mask
}
