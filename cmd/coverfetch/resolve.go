package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/config"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/artwork"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
	"github.com/edumarques81/stellar-coverfetch/internal/infra/cache"
	"github.com/edumarques81/stellar-coverfetch/internal/infra/tags"
)

// runResolve resolves the cover of each file in turn and prints one line per
// file: path, source, cover location and dimensions.
func runResolve(ctx context.Context, cfg *config.Config, files []string, out io.Writer) error {
	if len(files) == 0 {
		return errors.New("resolve needs at least one audio file")
	}

	// Files are addressed by absolute path, so the search is not bounded by
	// the music directory.
	finder := artwork.NewFilesystemFinder("").WithMaxLevels(cfg.Local.MaxLevels)
	host := tags.NewFileHost(finder)

	var rec cover.Recorder
	if cfg.DBPath != "" {
		db, dao, err := openIndex(cfg.DBPath)
		if err != nil {
			log.Warn().Err(err).Msg("Cover index unavailable, covers will not be recorded")
		} else {
			defer db.Close()
			rec = cache.NewRecorder(dao)
		}
	}

	resolver := cover.NewResolver(buildRegistry(cfg, host, host), newFetcher(cfg), resolverOptions(cfg, rec, nil)...)

	missing := 0
	for _, file := range files {
		path, err := filepath.Abs(file)
		if err != nil {
			path = file
		}

		song, err := tags.ReadSong(path)
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("Failed to read song")
			missing++
			continue
		}

		c, err := resolver.Resolve(ctx, *song)
		if errors.Is(err, cover.ErrCancelled) {
			return err
		}
		if err != nil {
			log.Debug().Err(err).Str("file", file).Msg("No cover")
			fmt.Fprintf(out, "%s\t-\tnot found\n", file)
			missing++
			continue
		}

		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", file, c.Source, coverLocation(c), dimensions(c))
	}

	if missing > 0 {
		return fmt.Errorf("%d of %d files without cover", missing, len(files))
	}
	return nil
}

func coverLocation(c *cover.Cover) string {
	if c.Path != "" {
		return c.Path
	}
	return fmt.Sprintf("(%s, %d bytes)", c.MimeType, len(c.Data))
}

func dimensions(c *cover.Cover) string {
	var w, h int
	var err error
	if len(c.Data) > 0 {
		w, h, err = artwork.Dimensions(c.Data)
	} else {
		w, h, err = artwork.FileDimensions(c.Path)
	}
	if err != nil {
		return "?"
	}
	return fmt.Sprintf("%dx%d", w, h)
}
