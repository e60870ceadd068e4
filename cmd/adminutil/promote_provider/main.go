package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/sudo-init-do/handyhub/internal/config"
	"github.com/sudo-init-do/handyhub/internal/db"
	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
	"github.com/sudo-init-do/handyhub/internal/store/pgstore"
	"github.com/sudo-init-do/handyhub/internal/store/sqlitestore"
)

// promote_provider sets a user's role to ServiceProvider with the given skills and rate.
// Usage:
//
//	go run ./cmd/adminutil/promote_provider -user u1 -skills plumbing,tiling -rate 300
func main() {
	userID := flag.String("user", "", "id of the user to promote")
	skills := flag.String("skills", "", "comma separated skills")
	rate := flag.Float64("rate", -1, "hourly rate (negative keeps the current one)")
	flag.Parse()

	if *userID == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/promote_provider -user <id> -skills plumbing")
	}
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	var users store.Users
	switch cfg.DBDriver {
	case "sqlite":
		st, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		defer st.Close()
		users = st
	default:
		pool, err := db.Init(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()
		users = pgstore.New(pool)
	}

	u, err := users.GetUser(ctx, *userID)
	if errors.Is(err, store.ErrNotFound) {
		log.Fatalf("no user found with id: %s (users appear after their first authenticated request)", *userID)
	}
	if err != nil {
		log.Fatalf("load user: %v", err)
	}
	if u.Role == models.RoleAdmin {
		log.Fatalf("refusing to demote admin %s", *userID)
	}

	u.Role = models.RoleServiceProvider
	if *skills != "" {
		u.Skills = strings.Split(*skills, ",")
	}
	if *rate >= 0 {
		u.Rate = rate
	}
	if err := users.UpsertUser(ctx, u); err != nil {
		log.Fatalf("failed to promote user: %v", err)
	}
	fmt.Printf("User %s promoted to ServiceProvider (skills=%v).\n", *userID, models.NormalizeSkills(u.Skills))
}
