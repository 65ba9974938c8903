package server

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-token-authority/registry"
)

// Sweeper periodically removes expired revocation tombstones and refresh
// records. It is purely housekeeping: correctness never depends on the
// sweep because expired records are rejected at read time anyway.
type Sweeper struct {
	cron *cron.Cron
	reg  registry.Registry
}

// NewSweeper creates a sweeper on the given cron schedule
// (e.g. "@every 1h").
func NewSweeper(reg registry.Registry, schedule string) (*Sweeper, error) {
	s := &Sweeper{
		cron: cron.New(),
		reg:  reg,
	}

	_, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Msg("expired-record sweeper started")
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.reg.DeleteExpired(ctx, time.Now()); err != nil {
		log.Err(err).Msg("expired-record sweep failed")
		return
	}
	log.Debug().Msg("expired-record sweep completed")
}
