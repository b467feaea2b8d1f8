// Command provision writes the placeholder e-book PDF when the configured file is missing.
package main

import (
	"flag"
	"os"

	"github.com/noah-isme/ebook-pix/internal/config"
	"github.com/noah-isme/ebook-pix/internal/ebook"
	"github.com/noah-isme/ebook-pix/internal/obs"
)

func main() {
	path := flag.String("path", "", "PDF path (defaults to EBOOK_PATH)")
	flag.Parse()

	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), os.Getenv("OBS_LOG_LEVEL"))

	product := ebook.DefaultProduct()
	if cfg, err := config.Load(); err == nil {
		product = cfg.Product()
	} else {
		logger.Warn().Err(err).Msg("config incomplete; using default product")
	}
	if *path != "" {
		product.FilePath = *path
	}

	created, err := ebook.EnsurePlaceholder(product.FilePath, product)
	if err != nil {
		logger.Fatal().Err(err).Str("path", product.FilePath).Msg("provision e-book")
	}
	if created {
		logger.Info().Str("path", product.FilePath).Msg("placeholder PDF written")
		return
	}
	logger.Info().Str("path", product.FilePath).Msg("e-book already present")
}
