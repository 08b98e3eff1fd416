package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/edumarques81/stellar-coverfetch/internal/config"
	"github.com/edumarques81/stellar-coverfetch/internal/infra/cache"
)

// runIndex inspects and maintains the cover index.
func runIndex(cfg *config.Config, args []string, out io.Writer) error {
	db := cache.NewDB(cfg.DBPath)
	if err := db.Open(); err != nil {
		return fmt.Errorf("open cover index: %w", err)
	}
	defer db.Close()
	dao := cache.NewDAO(db)

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "list":
		covers, total, err := dao.ListCovers(cache.CoverFilter{}, cache.NewPagination(1, 200))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tARTIST\tALBUM\tSIZE\tFETCHED\tPATH")
		for _, c := range covers {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%dx%d\t%s\t%s\n",
				c.Source, c.Artist, c.Album, c.Width, c.Height, c.FetchedAt.Format("2006-01-02 15:04"), c.Path)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if total > len(covers) {
			fmt.Fprintf(out, "(%d of %d covers)\n", len(covers), total)
		}

	case "stats":
		stats, err := db.GetStats()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "covers: %d\nsize:   %d bytes\n", stats.CoverCount, stats.TotalSize)
		for source, n := range stats.BySource {
			fmt.Fprintf(out, "  %-12s %d\n", source, n)
		}

	case "prune":
		n, err := dao.PruneMissing()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d entries\n", n)

	case "clear":
		if err := db.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(out, "index cleared")

	default:
		return fmt.Errorf("unknown index command %q", sub)
	}
	return nil
}
