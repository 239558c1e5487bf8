/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * The hidockctl command-line tool
 */

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/gousb"

	hidock "github.com/hidock-tools/hidock-driver"
)

const usageText = `Usage:
    %s command [args]

Commands are:
    discover             - list HiDock devices found on the bus
    info                 - connect and print device_info and card_info
    list                 - connect and list recordings
    download <file>      - download a recording to the configured download directory
    delete <file>        - delete a recording from the device
    format <code>        - format the storage card (code is 1..4)
    sync-time            - set the device clock to the host's current time
    health                - report connection health statistics

Options:
    -v                   - enable verbose (debug) console logging
`

func usage() {
	fmt.Printf(usageText, os.Args[0])
	os.Exit(0)
}

func usageError(format string, args ...interface{}) {
	if format != "" {
		fmt.Printf(format+"\n", args...)
	}
	fmt.Printf("Try %s -h for more information\n", os.Args[0])
	os.Exit(1)
}

func main() {
	args := os.Args[1:]
	verbose := false

	var filtered []string
	for _, a := range args {
		switch a {
		case "-h", "-help", "--help":
			usage()
		case "-v":
			verbose = true
		default:
			filtered = append(filtered, a)
		}
	}
	args = filtered

	if len(args) == 0 {
		usageError("Missing command")
	}

	hidock.Log.Check(hidock.ConfLoad())

	if hidock.Conf.ColorConsole {
		hidock.Console.ToColorConsole()
	} else {
		hidock.Console.ToConsole()
	}

	consoleLevel := hidock.Conf.LogConsole
	if verbose {
		consoleLevel = hidock.LogAll
	}
	hidock.Console.SetLevels(consoleLevel)
	hidock.Log.Cc(hidock.LogAll, hidock.Console)

	ctx := gousb.NewContext()
	defer ctx.Close()

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "discover":
		runDiscover(ctx)
	case "info":
		runInfo(ctx)
	case "list":
		runList(ctx)
	case "download":
		if len(rest) != 1 {
			usageError("download requires exactly one filename")
		}
		runDownload(ctx, rest[0])
	case "delete":
		if len(rest) != 1 {
			usageError("delete requires exactly one filename")
		}
		runDelete(ctx, rest[0])
	case "format":
		if len(rest) != 1 {
			usageError("format requires a confirmation code")
		}
		runFormat(ctx, rest[0])
	case "sync-time":
		runSyncTime(ctx)
	case "health":
		runHealth(ctx)
	default:
		usageError("Unknown command %q", cmd)
	}
}

func runDiscover(ctx *gousb.Context) {
	devices, err := hidock.Discover(ctx)
	hidock.Log.Check(err)

	if len(devices) == 0 {
		hidock.Log.Info(0, "No HiDock devices found")
		return
	}

	for _, d := range devices {
		hidock.Log.Info(0, "%s  %s  (vid=%04x pid=%04x)", d.ID, d.Name, d.VendorID, d.ProductID)
	}
}

// connect opens the first discovered device and returns a ready façade.
// The caller must call Disconnect when done.
func connect(ctx *gousb.Context) *hidock.Device {
	os.MkdirAll(hidock.Conf.CacheDir, 0755)
	cache, err := hidock.OpenMetadataCache(hidock.Conf.CacheDir + "/metadata.db")
	if err != nil {
		hidock.Log.Info(0, "cache unavailable, continuing without it: %s", err)
		cache = nil
	}

	dev := hidock.NewDevice(ctx, hidock.Log, cache, hidock.Conf.DownloadDir)

	info, err := dev.Connect("")
	hidock.Log.Check(err)

	hidock.Log.Info(0, "connected: version=%s serial=%s", info.VersionCode, info.Serial)

	return dev
}

func runInfo(ctx *gousb.Context) {
	dev := connect(ctx)
	defer dev.Disconnect()

	info := dev.GetDeviceInfo()
	hidock.Log.Info(0, "version=%s serial=%s", info.VersionCode, info.Serial)

	card, err := dev.GetStorageInfo()
	hidock.Log.Check(err)
	hidock.Log.Info(0, "storage: %d/%d MB used", card.UsedMB, card.TotalMB)
}

func runList(ctx *gousb.Context) {
	dev := connect(ctx)
	defer dev.Disconnect()

	recs, err := dev.GetRecordings(true)
	hidock.Log.Check(err)

	for _, r := range recs {
		ts := "unknown"
		if r.Timestamp != nil {
			ts = r.Timestamp.Format(time.RFC3339)
		}
		hidock.Log.Info(0, "%-32s %10d bytes  %8s  %s", r.Filename, r.FileLength, r.Duration, ts)
	}
}

func runDownload(ctx *gousb.Context, filename string) {
	dev := connect(ctx)
	defer dev.Disconnect()

	done := make(chan hidock.Operation, 1)
	dev.DownloadRecording(filename, func(update hidock.Operation) {
		switch update.Status {
		case hidock.StatusCompleted, hidock.StatusFailed, hidock.StatusCancelled:
			done <- update
		case hidock.StatusInProgress:
			hidock.Log.Info(0, "%s: %d/%d bytes", filename, update.BytesDone, update.BytesTotal)
		}
	})

	final := <-done
	if final.Status != hidock.StatusCompleted {
		hidock.Log.Exit(0, "download failed: %s", final.Err)
	}
	hidock.Log.Info(0, "wrote %s (%d bytes)", final.LocalPath, final.BytesDone)
}

func runDelete(ctx *gousb.Context, filename string) {
	dev := connect(ctx)
	defer dev.Disconnect()

	done := make(chan hidock.Operation, 1)
	dev.DeleteRecording(filename, func(update hidock.Operation) {
		switch update.Status {
		case hidock.StatusCompleted, hidock.StatusFailed, hidock.StatusCancelled:
			done <- update
		}
	})

	final := <-done
	if final.Status != hidock.StatusCompleted {
		hidock.Log.Exit(0, "delete failed: %s", final.Err)
	}
	hidock.Log.Info(0, "deleted %s", filename)
}

func runFormat(ctx *gousb.Context, codeArg string) {
	code, err := strconv.Atoi(codeArg)
	if err != nil || code < 1 || code > 4 {
		usageError("format: confirmation code must be 1..4")
	}

	dev := connect(ctx)
	defer dev.Disconnect()

	hidock.Log.Check(dev.FormatStorage(byte(code)))
	hidock.Log.Info(0, "storage formatted")
}

func runSyncTime(ctx *gousb.Context) {
	dev := connect(ctx)
	defer dev.Disconnect()

	hidock.Log.Check(dev.SyncTime(time.Time{}))
	hidock.Log.Info(0, "device clock synced")
}

func runHealth(ctx *gousb.Context) {
	dev := connect(ctx)
	defer dev.Disconnect()

	stats := dev.GetConnectionStats()
	hidock.Log.Info(0, "connected=%v model=%s timeouts=%d pipe_errors=%d protocol_errors=%d connection_lost=%d",
		stats.Connected, stats.Model, stats.TimeoutCount, stats.PipeErrorCount,
		stats.ProtocolErrors, stats.ConnectionLost)

	if dev.TestConnection() {
		hidock.Log.Info(0, "device responsive")
	} else {
		hidock.Log.Info(0, "device not responding")
	}
}
