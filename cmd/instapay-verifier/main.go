package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // Containers often ship without zoneinfo

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/instapay-verifier/internal/ocr"
	"github.com/zombor/instapay-verifier/internal/payment"
	"github.com/zombor/instapay-verifier/internal/verification"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("instapay-verifier")
	var (
		port              = fs.IntLong("port", 8080, "HTTP server port")
		dbPath            = fs.StringLong("db", "instapay-verifier.db", "Database file path")
		storagePath       = fs.StringLong("storage", "./receipts", "Receipt archive directory path")
		providerType      = fs.StringLong("provider", "gemini", "OCR provider: 'gemini' or 'cloudfunction'")
		geminiKey         = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel       = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ocrURL            = fs.StringLong("ocr-url", "", "OCR cloud function URL (provider 'cloudfunction')")
		authUser          = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass          = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		timezone          = fs.StringLong("timezone", "Africa/Cairo", "Time zone for receipt times printed without an offset")
		maxAge            = fs.IntLong("max-age", verification.DefaultMaxAgeMinutes, "Oldest accepted transaction, in minutes")
		strictMetadata    = fs.BoolLong("strict-metadata", "Reject images without EXIF creation timestamps")
		checkReferences   = fs.BoolLong("check-references", "Reject references already consumed by a booking")
		rejectOverpayment = fs.BoolLong("reject-overpayment", "Treat amounts above the expected amount as illegitimate")
		autoConsume       = fs.BoolLong("auto-consume", "Consume the reference of every approved receipt")
		showVersion       = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INSTAPAY_VERIFIER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	location, err := time.LoadLocation(*timezone)
	if err != nil {
		slog.Error("Invalid time zone", "timezone", *timezone, "error", err)
		os.Exit(1)
	}

	slog.Info("Initializing database...")
	db, err := payment.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var provider ocr.Provider
	switch *providerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini provider...", "model", *geminiModel)
		provider, err = ocr.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "cloudfunction":
		slog.Info("Initializing OCR cloud function provider...", "url", *ocrURL)
		provider, err = ocr.NewCloudFunction(*ocrURL)
		if err != nil {
			slog.Error("Failed to initialize OCR cloud function", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid provider type", "type", *providerType, "valid", "gemini or cloudfunction")
		os.Exit(1)
	}
	defer provider.Close()

	slog.Info("Initializing storage...")
	store, err := payment.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	allowMore := !*rejectOverpayment
	config := payment.Config{
		Defaults: verification.Options{
			MaxAgeMinutes:         *maxAge,
			StrictMetadataCheck:   *strictMetadata,
			AllowMoreThanExpected: &allowMore,
			CheckReferenceUsage:   *checkReferences,
		},
		AutoConsume: *autoConsume,
	}

	verifier := verification.NewVerifier(db, location)
	service := payment.NewService(db, provider, store, verifier, config)

	basicAuth := payment.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := payment.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"timezone", location.String(),
		"max_age_minutes", *maxAge,
		"check_references", *checkReferences,
		"auto_consume", *autoConsume,
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
