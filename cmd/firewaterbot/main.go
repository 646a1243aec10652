package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Agafia/bot-fire-water-sources/internal/bot"
	"github.com/Agafia/bot-fire-water-sources/internal/gdrive"
	"github.com/Agafia/bot-fire-water-sources/internal/lockfile"
	"github.com/Agafia/bot-fire-water-sources/internal/messaging"
	"github.com/Agafia/bot-fire-water-sources/internal/models"
	"github.com/Agafia/bot-fire-water-sources/internal/nextgis"
	"github.com/Agafia/bot-fire-water-sources/internal/store"
	"github.com/Agafia/bot-fire-water-sources/internal/survey"
	"github.com/Agafia/bot-fire-water-sources/internal/telegram"
	"github.com/Agafia/bot-fire-water-sources/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for bot state data
	DefaultStateDir = "/var/lib/firewaterbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "firewaterbot.db"
	// DefaultTimezone is the survey area's time zone
	DefaultTimezone = "Asia/Yekaterinburg"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	loc, err := time.LoadLocation(*flags.timezone)
	if err != nil {
		slog.Error("Failed to load time zone", "error", err, "timezone", *flags.timezone)
		os.Exit(1)
	}

	// One long-poller per bot token, and SQLite tolerates only one writer.
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}
	defer lock.Release()

	states, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to open conversation state store", "error", err)
		os.Exit(1)
	}
	defer states.Close()

	features, err := nextgis.NewClient(
		nextgis.WithHost(*flags.nextgisHost),
		nextgis.WithCredentials(*flags.nextgisUser, *flags.nextgisPassword),
	)
	if err != nil {
		slog.Error("Failed to create NextGIS client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := gdrive.NewClient(ctx, gdrive.WithCredentialsFile(*flags.gdriveCredentials))
	if err != nil {
		slog.Error("Failed to create Drive client", "error", err)
		os.Exit(1)
	}

	transportOpts := []telegram.Option{telegram.WithToken(*flags.botToken)}
	if *flags.debug {
		transportOpts = append(transportOpts, telegram.WithDebug())
	}
	transport, err := telegram.NewService(transportOpts...)
	if err != nil {
		slog.Error("Failed to create Telegram transport", "error", err)
		os.Exit(1)
	}

	var gate messaging.Gate = messaging.AllowAllGate{}
	if *flags.channelID != 0 {
		gate = telegram.NewMembershipGate(transport, *flags.channelID)
		slog.Info("Membership gate enabled", "channel_id", *flags.channelID)
	} else {
		slog.Warn("No channel id configured, membership gate disabled")
	}

	tracker := messaging.NewMessageTracker()
	coordinator := survey.NewCoordinator(states, features, storage, transport, tracker,
		survey.WithResources(*flags.pointsResource, *flags.checkupResource, *flags.organizationResource),
		survey.WithParentFolder(*flags.gdriveParentFolder),
		survey.WithNotifyChat(*flags.notifyChatID),
		survey.WithErrorChat(*flags.errorChatID),
		survey.WithBotURL(*flags.botURL),
	)
	executor := survey.NewExecutor(states, features, transport, tracker, coordinator,
		survey.WithPointsResource(*flags.pointsResource),
		survey.WithTimezone(loc),
		survey.WithHelpLinks(parseHelpLinks(*flags.helpLinks)),
	)

	slog.Info("Bootstrapping fire-water-source survey bot",
		"points_resource", *flags.pointsResource,
		"checkup_resource", *flags.checkupResource,
		"timezone", *flags.timezone,
		"dsn_set", *flags.dbDSN != "")
	if err := bot.New(transport, gate, executor, states).Run(ctx); err != nil && err != context.Canceled {
		slog.Error("Survey bot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Survey bot exited successfully")
}

// Config holds environment configuration
type Config struct {
	BotToken             string
	ChannelID            int64
	NotifyChatID         int64
	ErrorChatID          int64
	BotURL               string
	HelpLinks            string
	NextGISHost          string
	NextGISUser          string
	NextGISPassword      string
	PointsResource       int
	CheckupResource      int
	OrganizationResource int
	GDriveCredentials    string
	GDriveParentFolder   string
	DatabaseURL          string
	StateDir             string
	Timezone             string
}

// Flags holds command line flag values
type Flags struct {
	botToken             *string
	channelID            *int64
	notifyChatID         *int64
	errorChatID          *int64
	botURL               *string
	helpLinks            *string
	nextgisHost          *string
	nextgisUser          *string
	nextgisPassword      *string
	pointsResource       *int
	checkupResource      *int
	organizationResource *int
	gdriveCredentials    *string
	gdriveParentFolder   *string
	stateDir             *string
	dbDSN                *string
	timezone             *string
	debug                *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		BotToken:             os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChannelID:            util.ParseInt64Env("TELEGRAM_CHANNEL_ID", 0),
		NotifyChatID:         util.ParseInt64Env("TELEGRAM_NOTIFY_CHAT_ID", 0),
		ErrorChatID:          util.ParseInt64Env("TELEGRAM_ERROR_CHAT_ID", 0),
		BotURL:               os.Getenv("BOT_DEEP_LINK_URL"),
		HelpLinks:            os.Getenv("HELP_LINKS"),
		NextGISHost:          os.Getenv("NEXTGIS_HOST"),
		NextGISUser:          os.Getenv("NEXTGIS_USER"),
		NextGISPassword:      os.Getenv("NEXTGIS_PASSWORD"),
		PointsResource:       util.ParseIntEnv("NEXTGIS_POINTS_RESOURCE", 0),
		CheckupResource:      util.ParseIntEnv("NEXTGIS_CHECKUP_RESOURCE", 0),
		OrganizationResource: util.ParseIntEnv("NEXTGIS_ORGANIZATION_RESOURCE", 0),
		GDriveCredentials:    os.Getenv("GDRIVE_CREDENTIALS_FILE"),
		GDriveParentFolder:   os.Getenv("GDRIVE_PARENT_FOLDER"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		StateDir:             os.Getenv("FIREWATER_STATE_DIR"),
		Timezone:             os.Getenv("TIMEZONE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FIREWATER_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.Timezone == "" {
		config.Timezone = DefaultTimezone
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.BotToken != "",
		"TELEGRAM_CHANNEL_ID", config.ChannelID,
		"TELEGRAM_NOTIFY_CHAT_ID", config.NotifyChatID,
		"NEXTGIS_HOST", config.NextGISHost,
		"NEXTGIS_USER_SET", config.NextGISUser != "",
		"NEXTGIS_POINTS_RESOURCE", config.PointsResource,
		"NEXTGIS_CHECKUP_RESOURCE", config.CheckupResource,
		"GDRIVE_CREDENTIALS_FILE_SET", config.GDriveCredentials != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"FIREWATER_STATE_DIR", config.StateDir,
		"TIMEZONE", config.Timezone)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		botToken:             flag.String("bot-token", config.BotToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		channelID:            flag.Int64("channel-id", config.ChannelID, "Telegram channel whose members may use the bot, 0 disables the gate (overrides $TELEGRAM_CHANNEL_ID)"),
		notifyChatID:         flag.Int64("notify-chat-id", config.NotifyChatID, "Telegram chat receiving completion broadcasts, 0 disables (overrides $TELEGRAM_NOTIFY_CHAT_ID)"),
		errorChatID:          flag.Int64("error-chat-id", config.ErrorChatID, "Telegram chat receiving commit failure reports, 0 disables (overrides $TELEGRAM_ERROR_CHAT_ID)"),
		botURL:               flag.String("bot-url", config.BotURL, "deep-link base for regenerated descriptions, e.g. https://t.me/<bot>?start (overrides $BOT_DEEP_LINK_URL)"),
		helpLinks:            flag.String("help-links", config.HelpLinks, "comma-separated label|url pairs for the /help reply (overrides $HELP_LINKS)"),
		nextgisHost:          flag.String("nextgis-host", config.NextGISHost, "NextGIS Web instance base URL (overrides $NEXTGIS_HOST)"),
		nextgisUser:          flag.String("nextgis-user", config.NextGISUser, "NextGIS Web user (overrides $NEXTGIS_USER)"),
		nextgisPassword:      flag.String("nextgis-password", config.NextGISPassword, "NextGIS Web password (overrides $NEXTGIS_PASSWORD)"),
		pointsResource:       flag.Int("points-resource", config.PointsResource, "resource id of the water-source layer (overrides $NEXTGIS_POINTS_RESOURCE)"),
		checkupResource:      flag.Int("checkup-resource", config.CheckupResource, "resource id of the checkup layer (overrides $NEXTGIS_CHECKUP_RESOURCE)"),
		organizationResource: flag.Int("organization-resource", config.OrganizationResource, "resource id of the organizations table (overrides $NEXTGIS_ORGANIZATION_RESOURCE)"),
		gdriveCredentials:    flag.String("gdrive-credentials", config.GDriveCredentials, "path to the Drive service account key file (overrides $GDRIVE_CREDENTIALS_FILE)"),
		gdriveParentFolder:   flag.String("gdrive-parent-folder", config.GDriveParentFolder, "Drive folder holding per-source folders (overrides $GDRIVE_PARENT_FOLDER)"),
		stateDir:             flag.String("state-dir", config.StateDir, "state directory for bot data (overrides $FIREWATER_STATE_DIR)"),
		dbDSN:                flag.String("db-dsn", config.DatabaseURL, "conversation state database DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		timezone:             flag.String("timezone", config.Timezone, "IANA time zone of the survey area (overrides $TIMEZONE)"),
		debug:                flag.Bool("debug", util.ParseBoolEnv("TELEGRAM_DEBUG", false), "enable Telegram Bot API request logging (overrides $TELEGRAM_DEBUG)"),
	}

	flag.Parse()

	// Follow an overridden state directory when the DSN kept its default.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStore opens the conversation state store matching the DSN type.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// parseHelpLinks parses comma-separated "label|url" pairs.
func parseHelpLinks(raw string) []models.Link {
	var links []models.Link
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		label, url, ok := strings.Cut(pair, "|")
		if !ok {
			slog.Warn("Ignoring malformed help link", "pair", pair)
			continue
		}
		links = append(links, models.Link{Label: strings.TrimSpace(label), URL: strings.TrimSpace(url)})
	}
	return links
}
