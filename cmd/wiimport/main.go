// Command wiimport seeds the NextGIS Web water-source layer from an Excel
// workbook. It is a one-shot operator tool, run before the survey bot goes
// live in a municipality.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/Agafia/bot-fire-water-sources/internal/bulkload"
	"github.com/Agafia/bot-fire-water-sources/internal/nextgis"
	"github.com/Agafia/bot-fire-water-sources/internal/util"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	var (
		file         = flag.String("file", "", "path to the source .xlsx workbook (required)")
		sheet        = flag.String("sheet", "", "worksheet name, defaults to the first sheet")
		host         = flag.String("nextgis-host", os.Getenv("NEXTGIS_HOST"), "NextGIS Web instance base URL (overrides $NEXTGIS_HOST)")
		user         = flag.String("nextgis-user", os.Getenv("NEXTGIS_USER"), "NextGIS Web user (overrides $NEXTGIS_USER)")
		password     = flag.String("nextgis-password", os.Getenv("NEXTGIS_PASSWORD"), "NextGIS Web password (overrides $NEXTGIS_PASSWORD)")
		resource     = flag.Int("points-resource", util.ParseIntEnv("NEXTGIS_POINTS_RESOURCE", 0), "resource id of the water-source layer (overrides $NEXTGIS_POINTS_RESOURCE)")
		organization = flag.Int("organization-resource", util.ParseIntEnv("NEXTGIS_ORGANIZATION_RESOURCE", 0), "resource id of the organizations table (overrides $NEXTGIS_ORGANIZATION_RESOURCE)")
		botURL       = flag.String("bot-url", os.Getenv("BOT_DEEP_LINK_URL"), "deep-link base embedded in descriptions (overrides $BOT_DEEP_LINK_URL)")
	)
	flag.Parse()

	if *file == "" {
		slog.Error("The -file flag is required")
		flag.Usage()
		os.Exit(2)
	}

	features, err := nextgis.NewClient(
		nextgis.WithHost(*host),
		nextgis.WithCredentials(*user, *password),
	)
	if err != nil {
		slog.Error("Failed to create NextGIS client", "error", err)
		os.Exit(1)
	}

	loader := bulkload.NewLoader(features,
		bulkload.WithResource(*resource),
		bulkload.WithOrganizationResource(*organization),
		bulkload.WithBotURL(*botURL),
		bulkload.WithSheet(*sheet),
	)

	created, err := loader.Run(context.Background(), *file)
	if err != nil {
		slog.Error("Import failed", "error", err, "created_before_failure", created)
		os.Exit(1)
	}
	slog.Info("Import completed", "created", created)
}
