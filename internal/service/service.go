// Package service wires webhook events to resolution, sync, intro and reply
// work.
package service

import (
	"context"
	"time"

	"github.com/smaller-world/happytown.life/internal/database"
	"github.com/smaller-world/happytown.life/internal/dispatcher"
	"github.com/smaller-world/happytown.life/internal/models"
	"github.com/smaller-world/happytown.life/internal/resolver"
	"github.com/smaller-world/happytown.life/internal/trigger"
	"github.com/smaller-world/happytown.life/pkg/wasender"

	"github.com/sirupsen/logrus"
)

// Replier generates agent turns; satisfied by *agent.Agent.
type Replier interface {
	Introduce(ctx context.Context, group *models.Group) error
	Reply(ctx context.Context, group *models.Group, trigger *models.MessageView) error
}

// Config holds the service's operational settings.
type Config struct {
	// MaxEventLogLength bounds the webhook event log; older entries are
	// truncated by the reconciler.
	MaxEventLogLength int
	// SyncMaxAge is how long group and user metadata stays fresh.
	SyncMaxAge time.Duration
}

// Service owns the event-processing pipeline behind the webhook endpoint.
type Service struct {
	db         *database.Database
	gateway    wasender.Gateway
	dispatcher *dispatcher.Dispatcher
	resolver   *resolver.Resolver
	trigger    *trigger.Trigger
	agent      Replier
	cfg        Config
	logger     *logrus.Logger
}

func New(
	db *database.Database,
	gateway wasender.Gateway,
	disp *dispatcher.Dispatcher,
	res *resolver.Resolver,
	trig *trigger.Trigger,
	replier Replier,
	cfg Config,
	logger *logrus.Logger,
) *Service {
	return &Service{
		db:         db,
		gateway:    gateway,
		dispatcher: disp,
		resolver:   res,
		trigger:    trig,
		agent:      replier,
		cfg:        cfg,
		logger:     logger,
	}
}
