package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/philmod/tldrist/internal/config"
	"github.com/philmod/tldrist/internal/digest"
	"github.com/philmod/tldrist/internal/fetch"
	"github.com/philmod/tldrist/internal/figure"
	"github.com/philmod/tldrist/internal/llm"
	"github.com/philmod/tldrist/internal/mail"
	"github.com/philmod/tldrist/internal/pipeline"
	"github.com/philmod/tldrist/internal/summarize"
	"github.com/philmod/tldrist/internal/task"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath  string
		dryRun      bool
		minItems    int
		maxItems    int
		concurrency int
		outputPath  string
		verbose     bool
	)

	flag.StringVar(&configPath, "config", os.Getenv("TLDRIST_CONFIG"), "Path to YAML config file (optional)")
	flag.BoolVar(&dryRun, "dry-run", false, "Fetch and summarize but skip email delivery and task updates")
	flag.IntVar(&minItems, "min", -1, "Skip the run when fewer eligible tasks exist (-1 uses config)")
	flag.IntVar(&maxItems, "max", -1, "Maximum processed items surfaced in the digest (-1 uses config)")
	flag.IntVar(&concurrency, "concurrency", 0, "Concurrent task limit (0 uses config)")
	flag.StringVar(&outputPath, "out", "", "Path to write the digest HTML (empty uses config)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if minItems >= 0 {
		cfg.Pipeline.MinItems = minItems
	}
	if maxItems >= 0 {
		cfg.Pipeline.MaxItems = maxItems
	}
	if concurrency > 0 {
		cfg.Pipeline.Concurrency = concurrency
	}
	if outputPath != "" {
		cfg.OutputPath = outputPath
	}
	if verbose || cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := cfg.Validate(dryRun); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(cfg, dryRun); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, dryRun bool) error {
	ctx := context.Background()

	clientCfg := openai.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.BaseURL != "" {
		clientCfg.BaseURL = cfg.LLM.BaseURL
	}
	provider := &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(clientCfg)}

	summarizer := &summarize.Summarizer{Client: provider, Model: cfg.LLM.Model}
	orch := &pipeline.Orchestrator{
		Tasks:       task.NewTodoistClient(cfg.Todoist.Token),
		Fetcher:     &fetch.Fetcher{Timeout: cfg.Pipeline.FetchTimeout},
		Summarizer:  summarizer,
		Figures:     figure.NewLocator(),
		Digest:      digest.NewComposer(provider, cfg.LLM.Model),
		ProjectID:   cfg.Todoist.ProjectID,
		Recipient:   cfg.Mail.RecipientEmail,
		MinItems:    cfg.Pipeline.MinItems,
		MaxItems:    cfg.Pipeline.MaxItems,
		Concurrency: cfg.Pipeline.Concurrency,
	}
	if !dryRun && cfg.Mail.GmailAddress != "" {
		orch.Mailer = &mail.Sender{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			From:     cfg.Mail.GmailAddress,
			Password: cfg.Mail.AppPassword,
		}
	}

	res, err := orch.Run(ctx, dryRun)
	if err != nil {
		return err
	}
	if res.Skipped {
		log.Info().Int("found", res.TasksFound).Msg("run skipped below minimum threshold")
		return nil
	}

	if cfg.OutputPath != "" && res.DigestHTML != "" {
		if err := os.WriteFile(cfg.OutputPath, []byte(res.DigestHTML), 0o644); err != nil {
			return fmt.Errorf("write digest to %s: %w", cfg.OutputPath, err)
		}
		log.Info().Str("path", cfg.OutputPath).Msg("digest written")
	}

	log.Info().
		Int("found", res.TasksFound).
		Int("processed", len(res.Processed)).
		Int("failed", len(res.Failed)).
		Int("updated", res.TasksUpdated).
		Bool("email_sent", res.EmailSent).
		Msg("run complete")
	return nil
}
