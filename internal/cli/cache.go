package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dorsadeh/wheel/internal/data"
)

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local dataset cache",
	}
	cmd.AddCommand(newCacheStatsCmd(app))
	cmd.AddCommand(newCacheClearCmd(app))
	return cmd
}

func (a *App) openCache() (*data.Cache, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return data.NewCache(cfg.Data.CacheDir, a.Log)
}

func newCacheStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := app.openCache()
			if err != nil {
				return err
			}
			stats, err := cache.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\nFiles:   %d\nSize:    %.2f MB\n",
				stats.Entries, stats.Files, stats.SizeMB)
			return nil
		},
	}
}

func newCacheClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached dataset files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := app.openCache()
			if err != nil {
				return err
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
}
