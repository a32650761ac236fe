package app

import (
	"context"
	"log"
	"time"
)

// SweeperRunner owns the two tick loops: scheduled-publish checks every
// minute, approval-expiry checks every hour. Each loop is independently
// cancellable through the shared context.
type SweeperRunner struct {
	service         *SweeperService
	publishInterval time.Duration
	expiryInterval  time.Duration
}

func NewSweeperRunner(service *SweeperService) *SweeperRunner {
	return &SweeperRunner{
		service:         service,
		publishInterval: time.Minute,
		expiryInterval:  time.Hour,
	}
}

func (r *SweeperRunner) Start(ctx context.Context) error {
	log.Println("Starting sweeper...")

	publishTicker := time.NewTicker(r.publishInterval)
	expiryTicker := time.NewTicker(r.expiryInterval)

	defer publishTicker.Stop()
	defer expiryTicker.Stop()

	go r.publishTick(ctx, publishTicker)
	go r.expiryTick(ctx, expiryTicker)

	<-ctx.Done()
	log.Println("Sweeper shutting down...")
	return nil
}

func (r *SweeperRunner) publishTick(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.service.PublishDueInstances(ctx); err != nil {
				log.Printf("Error publishing due instances: %v", err)
			}
		}
	}
}

func (r *SweeperRunner) expiryTick(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.service.ExpireOverdueApprovals(ctx); err != nil {
				log.Printf("Error expiring overdue approvals: %v", err)
			}
		}
	}
}
