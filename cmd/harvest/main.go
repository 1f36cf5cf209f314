package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/patent-harvester/internal/config"
	"github.com/dvloznov/patent-harvester/internal/extract"
	"github.com/dvloznov/patent-harvester/internal/llm"
	"github.com/dvloznov/patent-harvester/internal/logger"
	"github.com/dvloznov/patent-harvester/internal/patents"
	"github.com/dvloznov/patent-harvester/internal/schema"
	"github.com/dvloznov/patent-harvester/internal/tasks"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runExtract(log)
	case "mirror":
		runMirror(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Patent Harvester CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  harvest <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run       Extract a table from the local patent store")
	fmt.Println("  mirror    Sync patent documents from a GCS bucket")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'harvest <command> -h' for more information on a command.")
}

func runExtract(log zerolog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file (optional)")
	query := fs.String("query", "", "substring that matching patents must contain")
	columns := fs.String("columns", "", "target schema, e.g. material:TEXT,thickness_um:NUMERIC")
	out := fs.String("out", "", "write the result CSV to this file instead of stdout")
	fs.Parse(os.Args[2:])

	if *query == "" || *columns == "" {
		log.Fatal().Msg("Usage: harvest run -query TEXT -columns name:TYPE[,name:TYPE...]")
	}

	dataset, err := parseColumns(*query, *columns)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid target schema")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	gemini, err := llm.NewGemini(ctx, llm.Config{
		TranscribeModel: cfg.Gemini.TranscribeModel,
		RelevanceModel:  cfg.Gemini.RelevanceModel,
		NullToken:       cfg.Extract.NullToken,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	locator := patents.NewLocator(cfg.Patents.StoreDir, log)
	registry := tasks.NewRegistry(cfg.Extract.Retention)
	orchestrator := extract.New(locator, gemini, gemini, registry, extract.Config{
		Workers:         cfg.Extract.Workers,
		MatchLimit:      cfg.Extract.MatchLimit,
		MaxTablesPerDoc: cfg.Extract.MaxTablesPerDoc,
		NullToken:       cfg.Extract.NullToken,
	}, log)

	log.Info().Str("query", *query).Str("store_dir", cfg.Patents.StoreDir).Msg("Starting extraction")

	taskID, snap := orchestrator.Submit(ctx, dataset)
	lastMessage := ""
	for snap.Status != tasks.StateCompleted && snap.Status != tasks.StateError {
		if snap.Message != lastMessage {
			log.Info().Str("status", string(snap.Status)).Msg(snap.Message)
			lastMessage = snap.Message
		}
		time.Sleep(500 * time.Millisecond)
		snap, _ = registry.Snapshot(taskID)
	}

	for _, msg := range snap.Errors {
		log.Warn().Msg(msg)
	}
	if snap.Status == tasks.StateError {
		log.Fatal().Msg(snap.Message)
	}
	log.Info().Msg(snap.Message)

	csvText, _, _ := registry.Result(taskID)
	if *out == "" {
		fmt.Print(csvText)
		return
	}
	if err := os.WriteFile(*out, []byte(csvText), 0o644); err != nil {
		log.Fatal().Err(err).Str("path", *out).Msg("Failed to write result")
	}
	fmt.Printf("Wrote result to %s\n", *out)
}

func runMirror(log zerolog.Logger) {
	fs := flag.NewFlagSet("mirror", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file (optional)")
	bucket := fs.String("bucket", "", "GCS bucket name (defaults to configured mirror bucket)")
	prefix := fs.String("prefix", "", "object prefix within the bucket")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *bucket == "" {
		*bucket = cfg.Patents.MirrorBucket
	}
	if *prefix == "" {
		*prefix = cfg.Patents.MirrorPrefix
	}
	if *bucket == "" {
		log.Fatal().Msg("Usage: harvest mirror -bucket NAME [-prefix PREFIX]")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	n, err := patents.MirrorBucket(ctx, *bucket, *prefix, cfg.Patents.StoreDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Mirror failed")
	}
	fmt.Printf("Downloaded %d documents from gs://%s/%s to %s\n", n, *bucket, *prefix, cfg.Patents.StoreDir)
}

// parseColumns turns "name:TYPE,name:TYPE" into a validated dataset.
func parseColumns(query, spec string) (*schema.Dataset, error) {
	var names []string
	var types []schema.ColumnType
	for _, part := range strings.Split(spec, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("column %q: want name:TYPE", part)
		}
		names = append(names, name)
		types = append(types, schema.ColumnType(strings.ToUpper(typ)))
	}
	return schema.New(query, names, types)
}
