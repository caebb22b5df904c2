package main

import (
	"context"
	"log"
	"os"

	"github.com/kzhara/lathemind/backend/internal/adapters/blob"
	"github.com/kzhara/lathemind/backend/internal/adapters/database"
	"github.com/kzhara/lathemind/backend/internal/adapters/search"
	"github.com/kzhara/lathemind/backend/internal/application/services"
	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/clients/postgres"
	"github.com/kzhara/lathemind/backend/pkg/config"
)

type seedSample struct {
	program string
	meta    entities.SampleMetadata
}

var seedSamples = []seedSample{
	{
		program: `O0001 (SUS304 SHAFT OD ROUGH/FINISH)
G28 U0 W0
T0101
G97 S1200 M03
G00 X52.0 Z2.0
G71 U1.5 R0.5
G71 P10 Q20 U0.4 W0.1 F0.25
N10 G00 X30.0
G01 Z-45.0 F0.15
X48.0 Z-60.0
N20 X52.0
G70 P10 Q20
G00 X100.0 Z100.0
M05
M30`,
		meta: entities.SampleMetadata{
			Name:          "SUS304 stepped shaft",
			Material:      "SUS304",
			MachiningType: entities.MachiningTypeOuterDiameter,
			Tags:          []string{"chamfer", "rough", "finish"},
			SpindleSpeed:  1200,
			FeedRate:      0.25,
		},
	},
	{
		program: `O0002 (S45C BORE)
G28 U0 W0
T0303
G97 S900 M03
G00 X18.0 Z2.0
G01 Z-30.0 F0.12
G00 X16.0
Z2.0
G00 X100.0 Z100.0
M05
M30`,
		meta: entities.SampleMetadata{
			Name:          "S45C bored bushing",
			Material:      "S45C",
			MachiningType: entities.MachiningTypeInnerDiameter,
			Tags:          []string{"boring"},
			SpindleSpeed:  900,
			FeedRate:      0.12,
		},
	},
	{
		program: `O0003 (A5056 M10 THREAD)
G28 U0 W0
T0505
G97 S600 M03
G00 X12.0 Z3.0
G76 P021060 Q100 R0.05
G76 X8.375 Z-20.0 P812 Q300 F1.5
G00 X100.0 Z100.0
M05
M30`,
		meta: entities.SampleMetadata{
			Name:          "A5056 M10 external thread",
			Material:      "A5056",
			MachiningType: entities.MachiningTypeThreading,
			Tags:          []string{"thread", "m10"},
			SpindleSpeed:  600,
			FeedRate:      1.5,
		},
	},
	{
		program: `O0004 (SUS304 FACE AND GROOVE)
G28 U0 W0
T0202
G97 S1000 M03
G00 X42.0 Z0.0
G01 X-1.0 F0.1
G00 X38.0 Z-15.0
G01 X34.0 F0.08
G00 X38.0
G00 X100.0 Z100.0
M05
M30`,
		meta: entities.SampleMetadata{
			Name:          "SUS304 facing with groove",
			Material:      "SUS304",
			MachiningType: entities.MachiningTypeGrooving,
			Tags:          []string{"groove", "facing"},
			SpindleSpeed:  1000,
			FeedRate:      0.1,
		},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()

	repo := database.NewSampleAdapter(pgClient)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating samples before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE samples`); err != nil {
			log.Fatalf("Failed to truncate samples: %v", err)
		}
	}

	knowledge := services.NewKnowledgeService(repo, search.NewMetadataIndex(), blob.NewMemoryAdapter())

	for _, s := range seedSamples {
		id, err := knowledge.RegisterSample(ctx, s.program, nil, "", s.meta)
		if err != nil {
			log.Fatalf("Failed to seed sample %q: %v", s.meta.Name, err)
		}
		log.Printf("Seeded sample %q as %s", s.meta.Name, id)
	}

	log.Printf("Seeding complete: %d samples", len(seedSamples))
}
