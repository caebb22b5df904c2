package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/kzhara/lathemind/backend/internal/adapters/database"
	"github.com/kzhara/lathemind/backend/internal/adapters/search"
	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/clients/postgres"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/observability"
	"github.com/kzhara/lathemind/backend/pkg/config"
)

// Offline audit over the sample store: rebuilds the metadata index from a
// full scan and optionally runs structural checks on every stored program.
func main() {
	var verify bool
	flag.BoolVar(&verify, "verify", false, "run structural checks on stored programs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}

	observability.InitLogger("lathemind-indexer", cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	repo := database.NewSampleAdapter(pgClient)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure samples schema")
	}

	samples, err := repo.ListAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to scan sample store")
	}

	index := search.NewMetadataIndex()
	index.Rebuild(samples)
	log.Info().Int("samples", index.Len()).Msg("metadata index rebuilt")

	if !verify {
		return
	}

	flagged := 0
	for _, sample := range samples {
		program := entities.NCProgram{Code: sample.ProgramCode}

		var issues []string
		if !program.HasProgramNumber() {
			issues = append(issues, "missing program number")
		}
		if !program.HasEndCode() {
			issues = append(issues, "missing end code")
		}
		for _, code := range program.DangerousCodes() {
			issues = append(issues, "dangerous code "+code)
		}
		if len(issues) > 0 {
			log.Warn().
				Str("sample_id", sample.ID).
				Str("name", sample.Metadata.Name).
				Strs("issues", issues).
				Msg("sample failed structural checks")
			flagged++
		}
	}
	log.Info().Int("flagged", flagged).Int("total", len(samples)).Msg("verification complete")
}
