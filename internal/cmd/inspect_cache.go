package cmd

import (
	"fmt"

	"github.com/alpinemaps/tilescheduler/internal/diskcache"
	"github.com/alpinemaps/tilescheduler/internal/tileid"
	"github.com/spf13/cobra"
)

var inspectCacheCmd = &cobra.Command{
	Use:   "inspect-cache [dir]",
	Short: "Print a summary of a disk cache directory",
	Long: `inspect-cache opens a disk cache directory and prints a one-shot
summary: quad count, zoom-level range, payload size, and a status histogram
(good/not-found/network-error counts). It does not start the scheduler and
writes no quad files. It opens the directory through the same store the
daemon uses, which is not read-only: it creates the directory and its SQLite
index (in WAL mode) if they are absent.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspectCache,
}

func init() {
	rootCmd.AddCommand(inspectCacheCmd)
}

func runInspectCache(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	dir := args[0]
	store, err := diskcache.Open(dir, logger)
	if err != nil {
		return fmt.Errorf("inspect-cache: %w", err)
	}
	defer store.Close()

	quads := store.ReadAll()

	var minZoom, maxZoom uint8 = tileid.MaxZoom, 0
	histogram := map[tileid.Status]int{}
	var totalBytes int64

	for _, q := range quads {
		if q.ID.Zoom < minZoom {
			minZoom = q.ID.Zoom
		}
		if q.ID.Zoom > maxZoom {
			maxZoom = q.ID.Zoom
		}
		histogram[q.NetworkInfo().Status]++
		for i := 0; i < q.NTiles; i++ {
			t := q.Tiles[i]
			totalBytes += int64(len(t.Ortho) + len(t.HeightRaw) + len(t.Vector))
		}
	}

	fmt.Printf("directory:    %s\n", dir)
	fmt.Printf("quad count:   %d\n", len(quads))
	if len(quads) > 0 {
		fmt.Printf("zoom range:   %d..%d\n", minZoom, maxZoom)
	}
	fmt.Printf("payload size: %s\n", humanizeBytes(totalBytes))
	fmt.Printf("status histogram:\n")
	fmt.Printf("  good:          %d\n", histogram[tileid.Good])
	fmt.Printf("  not_found:     %d\n", histogram[tileid.NotFound])
	fmt.Printf("  network_error: %d\n", histogram[tileid.NetworkError])

	return nil
}
