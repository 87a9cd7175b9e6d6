package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"robinhood-trade-bot-go/internal/engine"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers trading cycles at configured wall-clock times on
// weekdays. A trigger that fires while the engine is stopped is skipped.
type Scheduler struct {
	logger  *zap.Logger
	cron    *cron.Cron
	engine  *engine.Engine
	symbols []string
}

// New builds a scheduler from "HH:MM" trigger times. Returns an error
// for any malformed time.
func New(logger *zap.Logger, e *engine.Engine, symbols, times []string) (*Scheduler, error) {
	s := &Scheduler{
		logger:  logger.Named("scheduler"),
		cron:    cron.New(),
		engine:  e,
		symbols: symbols,
	}

	for _, at := range times {
		spec, err := cronSpec(at)
		if err != nil {
			return nil, err
		}
		if _, err := s.cron.AddFunc(spec, s.runCycle); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", at, err)
		}
		s.logger.Info("trading cycle scheduled", zap.String("at", at))
	}
	return s, nil
}

// cronSpec converts "HH:MM" to a weekday-only cron expression.
func cronSpec(at string) (string, error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid schedule time %q: want HH:MM", at)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid schedule time %q: bad hour", at)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid schedule time %q: bad minute", at)
	}
	return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
}

func (s *Scheduler) runCycle() {
	if !s.engine.Running() {
		s.logger.Info("skipping scheduled cycle: engine is stopped")
		return
	}
	if err := s.engine.RunCycle(context.Background(), s.symbols); err != nil {
		s.logger.Error("scheduled cycle failed", zap.Error(err))
	}
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the trigger clock and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
