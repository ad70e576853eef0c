package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examcli/internal/api"
	"github.com/stemsi/examcli/internal/auth"
	"github.com/stemsi/examcli/internal/config"
	"github.com/stemsi/examcli/internal/logger"
	"github.com/stemsi/examcli/internal/state"
	"github.com/stemsi/examcli/internal/validator"
)

// app bundles the wired components every command needs. The auth session is
// owned here and passed down explicitly; no package holds ambient login
// state.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *state.Store
	session *auth.Session
	client  *api.Client
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	store, err := state.Open(cfg.StateDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer store.Close()

	session := auth.NewSession(store)
	if err := session.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load session")
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		session: session,
		client:  api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, session, log),
	}

	ctx := context.Background()
	args := os.Args[2:]

	switch os.Args[1] {
	case "register":
		err = a.register(ctx)
	case "login":
		err = a.login(ctx, args)
	case "logout":
		err = a.logout(ctx)
	case "whoami":
		err = a.whoami()
	case "exams":
		err = a.exams(ctx)
	case "take":
		if len(args) != 1 {
			err = fmt.Errorf("usage: examcli take <exam-id>")
		} else {
			err = a.take(ctx, args[0])
		}
	case "attempts":
		err = a.attempts(ctx)
	case "result":
		if len(args) != 1 {
			err = fmt.Errorf("usage: examcli result <attempt-id>")
		} else {
			err = a.result(ctx, args[0])
		}
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `examcli — terminal client for the exam platform

Usage:
  examcli register              create an account
  examcli login [email]         log in (password prompted)
  examcli logout                log out and clear stored credentials
  examcli whoami                show the logged-in identity
  examcli exams                 list exams (students: available, teachers: authored)
  examcli take <exam-id>        start a timed attempt
  examcli attempts              list your attempt history
  examcli result <attempt-id>   show a graded result
`)
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
