// Package poller periodically sweeps recent posts for outstanding
// verification codes so agents get verified without calling the API.
package poller

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"clawwork/internal/ledger"
	"clawwork/internal/store"
	"clawwork/internal/twitter"
)

type Poller struct {
	Agents   store.AgentStore
	Ledger   *ledger.Ledger
	Searcher twitter.Searcher
	Schedule string
	Log      zerolog.Logger

	cron *cron.Cron
}

// Start schedules the sweep and returns. Call Stop to drain.
func (p *Poller) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(p.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		p.Sweep(ctx)
	}); err != nil {
		return err
	}
	c.Start()
	p.cron = c
	p.Log.Info().Str("schedule", p.Schedule).Msg("verification poller started")
	return nil
}

func (p *Poller) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// Sweep searches recent posts for each unverified agent's code and verifies
// on a match. Errors are logged per agent; one failure never blocks the rest.
func (p *Poller) Sweep(ctx context.Context) {
	agents, err := p.Agents.ListAgents(ctx)
	if err != nil {
		p.Log.Error().Err(err).Msg("poller: list agents")
		return
	}
	for _, a := range agents {
		if a.Verified || a.VerificationCode == "" {
			continue
		}
		tweets, err := p.Searcher.SearchRecent(ctx, `"`+a.VerificationCode+`"`)
		if err != nil {
			p.Log.Warn().Err(err).Str("agent", a.Name).Msg("poller: search failed")
			continue
		}
		for _, t := range tweets {
			if !strings.Contains(t.Text, a.VerificationCode) {
				continue
			}
			if _, err := p.Ledger.Verify(ctx, a.Name, t.Author); err != nil {
				p.Log.Warn().Err(err).Str("agent", a.Name).Msg("poller: verify failed")
				break
			}
			p.Log.Info().Str("agent", a.Name).Str("handle", t.Author).Msg("agent verified by poller")
			break
		}
	}
}
