package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/flowdesk/flowdesk/internal/clinic"
	"github.com/flowdesk/flowdesk/internal/genai"
	"github.com/flowdesk/flowdesk/internal/messaging"
	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/session"
	"github.com/flowdesk/flowdesk/internal/store"
	"github.com/flowdesk/flowdesk/internal/transfer"
	"github.com/flowdesk/flowdesk/internal/twilioclient"
	"github.com/flowdesk/flowdesk/internal/whatsapp"
	"github.com/flowdesk/flowdesk/internal/workflow"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FlowDesk state data
	DefaultStateDir = "/var/lib/flowdesk"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "flowdesk.db"
	// DefaultChannel selects the messaging channel when none is configured
	DefaultChannel = "whatsapp"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping FlowDesk with configured modules")
	if err := run(flags); err != nil {
		slog.Error("FlowDesk failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FlowDesk exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	WhatsAppDSN string
	StateDir    string
	OpenAIKey   string
	Channel     string
	WorkflowDef string
	Attendant   string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	waDSN       *string
	openaiKey   *string
	channel     *string
	workflowDef *string
	attendant   *string
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:    os.Getenv("FLOWDESK_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		Channel:     os.Getenv("FLOWDESK_CHANNEL"),
		WorkflowDef: os.Getenv("FLOWDESK_WORKFLOW_FILE"),
		Attendant:   os.Getenv("FLOWDESK_ATTENDANT_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FLOWDESK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Channel == "" {
		config.Channel = DefaultChannel
	}

	// The whatsmeow session database defaults to a separate SQLite file in
	// the state directory so it never collides with the application store.
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, "whatsmeow.db")
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"FLOWDESK_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"FLOWDESK_CHANNEL", config.Channel,
		"FLOWDESK_WORKFLOW_FILE", config.WorkflowDef,
		"FLOWDESK_ATTENDANT_NUMBER_SET", config.Attendant != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for FlowDesk data (overrides $FLOWDESK_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the application store (overrides $DATABASE_URL)"),
		waDSN:       flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		channel:     flag.String("channel", config.Channel, "messaging channel: whatsapp or twilio (overrides $FLOWDESK_CHANNEL)"),
		workflowDef: flag.String("workflow-file", config.WorkflowDef, "workflow definition JSON to load (overrides $FLOWDESK_WORKFLOW_FILE)"),
		attendant:   flag.String("attendant-number", config.Attendant, "phone number of the human attendant for transfers (overrides $FLOWDESK_ATTENDANT_NUMBER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"waDSN_set", *flags.waDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"channel", *flags.channel,
		"workflowFile", *flags.workflowDef)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.waDSN} {
		if store.DetectDSNType(dsn) != "sqlite3" || strings.Contains(dsn, "://") {
			continue
		}
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// buildStore constructs the application store based on the DSN type.
func buildStore(dsn string) (store.Store, error) {
	switch store.DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	case "redis":
		slog.Debug("Detected Redis DSN, configuring Redis store")
		return store.NewRedisStore(store.WithDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		return store.NewSQLiteStore(store.WithDSN(dsn))
	}
}

// buildService constructs the messaging channel selected by configuration.
func buildService(flags Flags) (messaging.Service, error) {
	switch strings.ToLower(*flags.channel) {
	case "twilio":
		client, err := twilioclient.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	default:
		var waOpts []whatsapp.Option
		if *flags.waDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
		}
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
		return messaging.NewWhatsAppService(client), nil
	}
}

// loadWorkflow loads the configured definition file, falling back to the
// stored or seeded clinic scheduling workflow.
func loadWorkflow(ctx context.Context, st store.Store, path string) (*models.Definition, error) {
	if path != "" {
		def, err := workflow.LoadDefinitionFile(path)
		if err != nil {
			return nil, err
		}
		if err := st.SaveDefinition(ctx, def); err != nil {
			return nil, err
		}
		slog.Info("Workflow definition loaded from file", "path", path, "workflow_id", def.ID)
		return def, nil
	}

	seed := workflow.DefaultDefinition()
	def, err := st.Definition(ctx, seed.ID)
	if err != nil {
		if !errors.Is(err, models.ErrWorkflowNotFound) {
			return nil, err
		}
		if err := st.SaveDefinition(ctx, seed); err != nil {
			return nil, err
		}
		slog.Info("Seeded default workflow definition", "workflow_id", seed.ID)
		return seed, nil
	}
	slog.Info("Workflow definition loaded from store", "workflow_id", def.ID)
	return def, nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	def, err := loadWorkflow(ctx, st, *flags.workflowDef)
	if err != nil {
		return err
	}

	directory := clinic.DefaultDirectory()
	records := clinic.NewRecords(st)

	engineOpts := []workflow.EngineOption{workflow.WithRecords(records)}
	if *flags.openaiKey != "" {
		ai, err := genai.NewClient(*flags.openaiKey)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, workflow.WithAI(ai))
	} else {
		slog.Warn("No OpenAI API key configured; AI nodes will use fallback routing")
	}

	engine, err := workflow.NewEngine(def, directory, engineOpts...)
	if err != nil {
		return err
	}

	svc, err := buildService(flags)
	if err != nil {
		return err
	}

	transfers := transfer.NewCoordinator(messaging.NewServiceNotifier(svc))
	defer transfers.Stop()

	var bot *messaging.Bot
	sessions := session.NewManager(
		func(conversationID string) { bot.ReleaseConversation(conversationID) },
		session.WithWarnFunc(func(conversationID string, remaining time.Duration) {
			bot.WarnConversation(conversationID, remaining)
		}),
	)
	defer sessions.Stop()

	bot = messaging.NewBot(svc, st, engine, transfers, sessions,
		messaging.WithAttendantNumber(*flags.attendant))

	if err := bot.Start(ctx); err != nil {
		return err
	}
	sessions.Start()

	slog.Info("FlowDesk running", "workflow_id", def.ID, "channel", *flags.channel)
	<-ctx.Done()

	slog.Info("Shutting down")
	return bot.Stop()
}
