package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sudo-init-do/handyhub/internal/config"
	"github.com/sudo-init-do/handyhub/internal/utils"
)

// mint_token signs a development identity token with JWT_SECRET.
// Usage:
//
//	go run ./cmd/adminutil/mint_token -user u1 -role ServiceProvider -skills plumbing,tiling -rate 300
func main() {
	userID := flag.String("user", "", "user id")
	role := flag.String("role", "CommunityMember", "CommunityMember, ServiceProvider or Admin")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email address")
	skills := flag.String("skills", "", "comma separated skills")
	rate := flag.Float64("rate", -1, "provider rate (negative for none)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/mint_token -user <id> [-role ServiceProvider]")
	}
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatalf("JWT_SECRET is not set")
	}

	spec := utils.TokenSpec{UserID: *userID, Role: *role, Name: *name, Email: *email, TTL: *ttl}
	if *skills != "" {
		spec.Skills = strings.Split(*skills, ",")
	}
	if *rate >= 0 {
		spec.Rate = rate
	}
	token, err := utils.SignIdentityToken(cfg.JWTSecret, spec, time.Now())
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
