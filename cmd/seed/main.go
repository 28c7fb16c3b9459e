// Command main runs the database seeder for CarKey.
package main

import (
	"context"
	"flag"
	"log"

	"carkey/internal/config"
	"carkey/internal/database"
	"carkey/internal/seed"
)

func main() {
	opts := seed.DefaultOptions()

	preset := flag.String("preset", "", "YAML preset file; flags given explicitly override it")
	users := flag.Int("users", opts.Users, "Number of regular users to create")
	boards := flag.Int("boards", opts.BoardsPerUser, "Boards per user")
	clean := flag.Bool("clean", opts.Clean, "Clean database before seeding")
	randSeed := flag.Int64("rand-seed", 0, "Fixed random seed for reproducible data (0 = random)")
	flag.Parse()

	if *preset != "" {
		loaded, err := seed.LoadPreset(*preset)
		if err != nil {
			log.Fatalf("Failed to load preset: %v", err)
		}
		opts = loaded
		log.Printf("Applying preset: %s", *preset)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "users":
			opts.Users = *users
		case "boards":
			opts.BoardsPerUser = *boards
		case "clean":
			opts.Clean = *clean
		case "rand-seed":
			opts.RandSeed = *randSeed
		}
	})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if opts.BestThreshold == 0 {
		opts.BestThreshold = cfg.BestBoardThreshold
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Printf("Target: %d users (+%d staff), %d boards each, clean=%v", opts.Users, opts.Staff, opts.BoardsPerUser, opts.Clean)

	sum, err := seed.NewSeeder(db).Run(context.Background(), opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Created %d users, %d boards (%d best), %d replies, %d likes, %d articles, %d analyses",
		sum.Users, sum.Boards, sum.BestBoards, sum.Replies, sum.Likes, sum.Articles, sum.Analyses)
	log.Printf("All seeded users have the password: %s", opts.Password)
}
