package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/boddenberg/pfm-staging-go/internal/config"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

type tokenCmd struct {
	ttl time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "mint a development access token" }
func (*tokenCmd) Usage() string {
	return `pfm token [-ttl <duration>] <user-id>

  Prints a bearer token for the given user, signed with JWT_SECRET.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.ttl, "ttl", 0, "token lifetime (defaults to JWT_ACCESS_TTL)")
}

func (c *tokenCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one user id")
		return subcommands.ExitUsageError
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	ttl := cfg.JWTAccessTTL
	if c.ttl > 0 {
		ttl = c.ttl
	}

	token, expires, err := service.NewTokenService(cfg.JWTSecret, ttl).IssueAccessToken(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return subcommands.ExitSuccess
}
