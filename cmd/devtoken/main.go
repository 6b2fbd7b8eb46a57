// Command devtoken mints bearer tokens signed with JWT_SECRET so the API can be
// exercised locally without the identity provider.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"campushub/config"
	"campushub/internal/adapters/auth"
	"campushub/internal/domain"
)

func main() {
	id := flag.String("sub", "", "user id (required)")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email address")
	role := flag.String("role", string(domain.RoleUser), "user or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *id == "" {
		fmt.Fprintln(os.Stderr, "devtoken: -sub is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := config.NewLogger()
	cfg, err := config.Load(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	if cfg.IsProduction() {
		fmt.Fprintln(os.Stderr, "devtoken: refusing to mint tokens with GO_ENV=production")
		os.Exit(1)
	}

	token, err := auth.NewJWTIssuer(cfg.JWTSecret).Issue(domain.Requester{
		ID:    *id,
		Name:  *name,
		Email: *email,
		Role:  domain.ParseRole(*role),
	}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
