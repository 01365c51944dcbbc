// Package app wires config, storage, and the engine into one runtime
// environment shared by the CLI and the HTTP server.
package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clawwork/internal/config"
	"clawwork/internal/db"
	"clawwork/internal/domain"
	"clawwork/internal/engine"
	"clawwork/internal/ledger"
	"clawwork/internal/migrate"
	"clawwork/internal/notify"
	"clawwork/internal/store"
	"clawwork/internal/store/memstore"
	"clawwork/internal/store/sqlstore"
	"clawwork/internal/twitter"
)

type Env struct {
	Config   *config.Config
	Store    store.Store
	Ledger   *ledger.Ledger
	Notify   *notify.Notifier
	Verifier twitter.Verifier
	Engine   *engine.Engine
	Log      zerolog.Logger
}

// Open loads the workspace config and builds the full runtime environment.
// Callers own the returned Env and must Close it.
func Open(workspace string, log zerolog.Logger) (*Env, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = memstore.New()
	default:
		conn, err := db.Open(db.Config{Workspace: workspace})
		if err != nil {
			return nil, err
		}
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st = sqlstore.New(conn)
	}

	led := ledger.New(st, domain.Cents(cfg.Ledger.WelcomeCredits))
	n := notify.New(st, log)
	verifier := twitter.New(twitter.Config{
		BearerToken: cfg.Twitter.BearerToken,
		Timeout:     time.Duration(cfg.Twitter.TimeoutSeconds) * time.Second,
	})
	eng := engine.New(st, led, verifier, n, cfg, log)

	return &Env{
		Config:   cfg,
		Store:    st,
		Ledger:   led,
		Notify:   n,
		Verifier: verifier,
		Engine:   eng,
		Log:      log,
	}, nil
}

func (e *Env) Close() error {
	return e.Store.Close()
}
