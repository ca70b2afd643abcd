package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/kindatcart/cartcheck/internal/api"
	"github.com/kindatcart/cartcheck/internal/genai"
	"github.com/kindatcart/cartcheck/internal/lockfile"
	"github.com/kindatcart/cartcheck/internal/messaging"
	"github.com/kindatcart/cartcheck/internal/store"
	"github.com/kindatcart/cartcheck/internal/util"
	"github.com/kindatcart/cartcheck/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CartCheck state data
	DefaultStateDir = "/var/lib/cartcheck"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "cartcheck.db"
	// DefaultVerifyToken matches new deployments that have not set their own
	DefaultVerifyToken = "cartcheck-verify-token"
)

// Messaging backend names accepted by -backend / $MESSAGING_BACKEND.
const (
	backendCloudAPI  = "cloudapi"
	backendTwilio    = "twilio"
	backendWhatsmeow = "whatsmeow"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// A shared profile database must not be served by two bot instances.
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		lock, err := lockfile.Acquire(filepath.Dir(*flags.dbDSN))
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	msgService, err := buildMessagingService(flags)
	if err != nil {
		slog.Error("Failed to initialize messaging backend", "error", err, "backend", *flags.backend)
		os.Exit(1)
	}

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping CartCheck", "backend", *flags.backend, "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, genaiOpts, msgService, apiOpts); err != nil {
		slog.Error("CartCheck failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CartCheck exited successfully")
}

// Config holds environment configuration
type Config struct {
	WhatsAppToken   string
	WhatsAppPhoneID string
	VerifyToken     string
	OpenAIKey       string
	DatabaseURL     string
	StateDir        string
	APIAddr         string
	Backend         string
	WhatsmeowDSN    string
	QRPath          string
}

// Flags holds command line flag values
type Flags struct {
	backend      *string
	token        *string
	phoneID      *string
	verifyToken  *string
	openaiKey    *string
	stateDir     *string
	dbDSN        *string
	apiAddr      *string
	qrOutput     *string
	numeric      *bool
	whatsmeowDSN *string
}

// initializeLogger sets up structured logging; CARTCHECK_DEBUG enables debug output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("CARTCHECK_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		WhatsAppToken:   os.Getenv("WHATSAPP_TOKEN"),
		WhatsAppPhoneID: os.Getenv("WHATSAPP_PHONE_ID"),
		VerifyToken:     util.EnvOrDefault("VERIFY_TOKEN", DefaultVerifyToken),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.EnvOrDefault("CARTCHECK_STATE_DIR", DefaultStateDir),
		APIAddr:         os.Getenv("API_ADDR"),
		Backend:         util.EnvOrDefault("MESSAGING_BACKEND", backendCloudAPI),
		WhatsmeowDSN:    os.Getenv("WHATSMEOW_DB_DSN"),
		QRPath:          os.Getenv("WHATSMEOW_QR_OUTPUT"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"WHATSAPP_TOKEN_SET", config.WhatsAppToken != "",
		"WHATSAPP_PHONE_ID_SET", config.WhatsAppPhoneID != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CARTCHECK_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		backend:      flag.String("backend", config.Backend, "messaging backend: cloudapi, twilio, or whatsmeow (overrides $MESSAGING_BACKEND)"),
		token:        flag.String("whatsapp-token", config.WhatsAppToken, "WhatsApp Cloud API token (overrides $WHATSAPP_TOKEN)"),
		phoneID:      flag.String("whatsapp-phone-id", config.WhatsAppPhoneID, "WhatsApp business phone number ID (overrides $WHATSAPP_PHONE_ID)"),
		verifyToken:  flag.String("verify-token", config.VerifyToken, "webhook verification token (overrides $VERIFY_TOKEN)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for CartCheck data (overrides $CARTCHECK_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the profile store (overrides $DATABASE_URL)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		qrOutput:     flag.String("qr-output", config.QRPath, "path to write whatsmeow login QR code (overrides $WHATSMEOW_QR_OUTPUT)"),
		numeric:      flag.Bool("numeric-code", false, "use numeric whatsmeow login code instead of QR code"),
		whatsmeowDSN: flag.String("whatsmeow-db-dsn", config.WhatsmeowDSN, "database DSN for whatsmeow session data (overrides $WHATSMEOW_DB_DSN)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"backend", *flags.backend,
		"tokenSet", *flags.token != "",
		"phoneIDSet", *flags.phoneID != "",
		"openaiKeySet", *flags.openaiKey != "",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr)

	// Follow a changed state directory when the DSN was left at its default
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildMessagingService constructs the selected messaging backend
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch *flags.backend {
	case backendCloudAPI:
		return messaging.NewCloudAPIService(
			messaging.WithToken(*flags.token),
			messaging.WithPhoneID(*flags.phoneID),
		)
	case backendTwilio:
		// Credentials come from the TWILIO_* environment variables
		return messaging.NewTwilioService()
	case backendWhatsmeow:
		var waOpts []whatsapp.Option
		dsn := *flags.whatsmeowDSN
		if dsn == "" {
			dsn = filepath.Join(*flags.stateDir, "whatsmeow.db")
		}
		waOpts = append(waOpts, whatsapp.WithDBDSN(dsn))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsmeowService(client), nil
	default:
		return nil, fmt.Errorf("unknown messaging backend %q", *flags.backend)
	}
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		storeOpts = append(storeOpts, store.WithDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.verifyToken != "" {
		apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))
	}
	return apiOpts
}
