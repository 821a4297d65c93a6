package main

import (
	"context"
	"log"

	"library-circulation/internal/circulation"
	"library-circulation/internal/config"
	"library-circulation/internal/firebase"
	"library-circulation/internal/models"
	"library-circulation/internal/redis"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	fbClient, err := firebase.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		log.Fatalf("init firebase: %v", err)
	}
	defer fbClient.Close()

	branches := []models.Branch{
		{ID: "central", Name: "Central Library", Address: "1 Market Square"},
		{ID: "north", Name: "North Branch", Address: "42 Oak Street"},
		{ID: "riverside", Name: "Riverside Branch", Address: "7 Quay Road"},
	}
	for i := range branches {
		if err := fbClient.CreateBranch(ctx, &branches[i]); err != nil {
			log.Printf("branch %s: %v", branches[i].ID, err)
			continue
		}
		log.Printf("branch %s (%s)", branches[i].ID, branches[i].Name)
	}

	books := []models.Book{
		{
			Title:   "The Witcher: The Last Wish",
			Authors: []string{"Andrzej Sapkowski"},
			Branches: map[string]models.BranchHolding{
				"central": {Name: "Central Library", NumberOfCopies: 3},
				"north":   {Name: "North Branch", NumberOfCopies: 1},
			},
		},
		{
			Title:   "Crime and Punishment",
			Authors: []string{"Fyodor Dostoevsky"},
			Branches: map[string]models.BranchHolding{
				"central": {Name: "Central Library", NumberOfCopies: 2},
			},
		},
		{
			Title:   "Sapiens",
			Authors: []string{"Yuval Noah Harari"},
			Branches: map[string]models.BranchHolding{
				"central":   {Name: "Central Library", NumberOfCopies: 4},
				"riverside": {Name: "Riverside Branch", NumberOfCopies: 2},
			},
		},
		{
			Title:   "Nineteen Eighty-Four",
			Authors: []string{"George Orwell"},
			Branches: map[string]models.BranchHolding{
				"north":     {Name: "North Branch", NumberOfCopies: 2},
				"riverside": {Name: "Riverside Branch", NumberOfCopies: 1},
			},
		},
		{
			Title:   "Good Omens",
			Authors: []string{"Terry Pratchett", "Neil Gaiman"},
			Branches: map[string]models.BranchHolding{
				"central": {Name: "Central Library", NumberOfCopies: 1},
			},
		},
	}
	for i := range books {
		if err := fbClient.CreateBook(ctx, &books[i]); err != nil {
			log.Printf("book %q: %v", books[i].Title, err)
			continue
		}
		log.Printf("book %s %q", books[i].ID, books[i].Title)
	}

	for _, id := range []string{"reader-1", "reader-2"} {
		if err := fbClient.CreateUser(ctx, &models.User{ID: id}); err != nil {
			log.Printf("user %s: %v", id, err)
		}
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	store := redis.NewStore(rdb, redis.WithLedgerRules(cfg.Ledger))
	defer store.Close()
	if err := store.LoadScripts(ctx); err != nil {
		log.Fatalf("load scripts: %v", err)
	}

	res, err := circulation.NewService(store, fbClient, nil).SeedAvailability(ctx)
	if err != nil {
		log.Fatalf("seed availability: %v", err)
	}
	log.Printf("done: %d counters seeded, %d already present", res.Seeded, res.Skipped)
}
