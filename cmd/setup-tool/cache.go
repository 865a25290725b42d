package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/setup-tool/internal/config"
	"github.com/tsukumogami/setup-tool/internal/log"
	"github.com/tsukumogami/setup-tool/internal/progress"
	"github.com/tsukumogami/setup-tool/internal/toolcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the tool cache",
	Long: `Manage binaries kept in the tool cache between jobs.

Only entries written by setup-tool are listed or removed; other tools'
entries in a shared runner cache are left alone.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached binaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd)
		if err != nil {
			return err
		}
		entries, err := c.List()
		if err != nil {
			return err
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), listOutput(entries))
		}
		printEntries(cmd.OutOrStdout(), c.Root(), entries)
		return nil
	},
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <asset> [version]",
	Short: "Remove cached binaries",
	Long: `Remove the cached binary for one version of an asset, or every
version when no version is given.

Examples:
  setup-tool cache remove ziglint-linux-x86_64 v0.5.2
  setup-tool cache remove ziglint-linux-x86_64`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd)
		if err != nil {
			return err
		}
		version := toolcache.AnyVersion
		if len(args) == 2 {
			version = args[1]
		}
		n, err := c.Remove(args[0], version)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache %s\n", n, plural(n, "entry", "entries"))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached binary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd)
		if err != nil {
			return err
		}
		n, err := c.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tool cache cleared (%d %s)\n", n, plural(n, "entry", "entries"))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheCmd.PersistentFlags().String(config.KeyCacheDir, "", "Tool cache directory")
	cacheListCmd.Flags().Bool("json", false, "Output in JSON format")
}

func openCache(cmd *cobra.Command) (*toolcache.Cache, error) {
	dir, _ := cmd.Flags().GetString(config.KeyCacheDir)
	if dir == "" {
		dir, _ = runner.Lookup(config.KeyCacheDir)
	}
	home, err := config.HomeDir()
	if err != nil {
		return nil, err
	}
	return toolcache.New(config.CacheRootFor(dir, home), toolcache.WithLogger(log.Default())), nil
}

type entryOutput struct {
	Asset    string    `json:"asset"`
	Version  string    `json:"version"`
	Arch     string    `json:"arch"`
	Path     string    `json:"path"`
	Size     int64     `json:"size_bytes"`
	StoredAt time.Time `json:"stored_at"`
}

func listOutput(entries []*toolcache.Entry) []entryOutput {
	out := make([]entryOutput, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryOutput{
			Asset:    e.AssetName,
			Version:  e.Version,
			Arch:     e.Arch,
			Path:     e.Path,
			Size:     e.Size,
			StoredAt: e.StoredAt.UTC(),
		})
	}
	return out
}

func printEntries(w io.Writer, root string, entries []*toolcache.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No cached binaries in %s\n", root)
		return
	}
	fmt.Fprintf(w, "Cached binaries in %s (%d total):\n\n", root, len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %-32s  %-12s  %-6s  %s\n", e.AssetName, e.Version, e.Arch, progress.FormatBytes(e.Size))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
