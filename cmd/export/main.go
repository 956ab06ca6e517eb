// Command export downloads the CSV of one survey cut from the backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockedby/survey-portal/internal/catalog"
	"github.com/blockedby/survey-portal/internal/config"
	"github.com/blockedby/survey-portal/internal/dashboard"
	"github.com/blockedby/survey-portal/internal/logger"
	"github.com/blockedby/survey-portal/internal/portalapi"
)

type options struct {
	studyID   int64
	question  string
	dimension string
	filters   portalapi.Filters
	token     string
	out       string
}

func parseFlags(args []string, cat *catalog.Catalog) (*options, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)

	opts := &options{filters: portalapi.Filters(catalog.EmptyFilters())}
	fs.Int64Var(&opts.studyID, "study", 0, "study id (0 = first study)")
	fs.StringVar(&opts.question, "question", cat.DefaultQuestion(), "question code")
	fs.StringVar(&opts.dimension, "dimension", catalog.DefaultDimension, "distribution dimension")
	fs.StringVar(&opts.token, "token", os.Getenv("PORTAL_TOKEN"), "bearer token")
	fs.StringVar(&opts.out, "out", "", "output file (default: study-{id}-{question}-{dimension}.csv)")

	filterValues := make(map[string]*string, len(catalog.Dimensions))
	for _, d := range catalog.Dimensions {
		filterValues[d] = fs.String(d, "", "filter on "+d)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	for d, v := range filterValues {
		opts.filters[d] = *v
	}

	if err := cat.ValidateView(opts.question, opts.dimension, opts.filters); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return err
	}

	opts, err := parseFlags(args, cat)
	if err != nil {
		return err
	}

	client := portalapi.NewClient(cfg.APIBaseURL,
		portalapi.WithTimeout(cfg.APITimeout()),
		portalapi.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst),
	)

	if opts.studyID == 0 {
		studies, err := client.GetStudies(ctx)
		if err != nil {
			return err
		}
		if len(studies) == 0 {
			return fmt.Errorf("no studies available")
		}
		opts.studyID = studies[0].ID
		log.Info().Int64("study_id", opts.studyID).Str("name", studies[0].Name).Msg("using first study")
	}

	content, err := client.ExportCSV(ctx, opts.studyID, opts.question, opts.dimension, opts.filters, portalapi.StaticToken(opts.token))
	if err != nil {
		return err
	}

	out := opts.out
	if out == "" {
		out = dashboard.ExportFilename(dashboard.Selection{
			StudyID:      opts.studyID,
			QuestionCode: opts.question,
			Dimension:    opts.dimension,
		})
	}
	if out == "-" {
		_, err = os.Stdout.Write(content)
		return err
	}
	if err := os.WriteFile(out, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	log.Info().Str("file", out).Int("bytes", len(content)).Msg("export written")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
