package service

import (
	"context"
	"time"

	"github.com/smaller-world/happytown.life/internal/dispatcher"
	apperrors "github.com/smaller-world/happytown.life/internal/errors"

	"github.com/sirupsen/logrus"
)

// Reconciler periodically sweeps for stale groups and users, re-enqueues
// their syncs, and truncates the webhook event log.
type Reconciler struct {
	service  *Service
	interval time.Duration
	logger   *logrus.Logger
}

func NewReconciler(service *Service, interval time.Duration, logger *logrus.Logger) *Reconciler {
	return &Reconciler{service: service, interval: interval, logger: logger}
}

// Start runs sweeps until ctx is cancelled. The first sweep runs
// immediately so a restarted process catches up without waiting a full
// interval.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		r.sweep()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Reconciler) sweep() {
	s := r.service
	s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        dispatcher.JobReconcileGroupsMetadata,
		ResourceKey: dispatcher.GlobalKey,
		Run:         s.ReconcileGroupsMetadata,
	})
	s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        dispatcher.JobReconcileGroupsMemberships,
		ResourceKey: dispatcher.GlobalKey,
		Run:         s.ReconcileGroupsMemberships,
	})
	s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        dispatcher.JobReconcileUsers,
		ResourceKey: dispatcher.GlobalKey,
		Run:         s.ReconcileUsers,
	})
	s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        dispatcher.JobTruncateEventLog,
		ResourceKey: dispatcher.GlobalKey,
		Run:         s.TruncateEventLog,
	})
}

// ReconcileGroupsMetadata re-enqueues a metadata sync for every group whose
// metadata is stale.
func (s *Service) ReconcileGroupsMetadata(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.SyncMaxAge)
	groups, err := s.db.ListGroupsWithStaleMetadata(ctx, cutoff)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to list stale groups")
	}
	for _, g := range groups {
		s.enqueueGroupSync(dispatcher.JobSyncGroupMetadata, g.ID)
	}
	if len(groups) > 0 {
		s.logger.WithField("count", len(groups)).Info("Re-enqueued stale group metadata syncs")
	}
	return nil
}

// ReconcileGroupsMemberships re-enqueues a membership sync for every group
// whose member list is stale.
func (s *Service) ReconcileGroupsMemberships(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.SyncMaxAge)
	groups, err := s.db.ListGroupsWithStaleMemberships(ctx, cutoff)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to list stale groups")
	}
	for _, g := range groups {
		s.enqueueGroupSync(dispatcher.JobSyncGroupMemberships, g.ID)
	}
	if len(groups) > 0 {
		s.logger.WithField("count", len(groups)).Info("Re-enqueued stale membership syncs")
	}
	return nil
}

// ReconcileUsers re-enqueues a metadata sync for every user whose profile
// is stale.
func (s *Service) ReconcileUsers(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.SyncMaxAge)
	users, err := s.db.ListUsersWithStaleMetadata(ctx, cutoff)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to list stale users")
	}
	for _, u := range users {
		s.enqueueUserSync(u.ID)
	}
	if len(users) > 0 {
		s.logger.WithField("count", len(users)).Info("Re-enqueued stale user syncs")
	}
	return nil
}

// TruncateEventLog drops webhook events beyond the retention bound.
func (s *Service) TruncateEventLog(ctx context.Context) error {
	removed, err := s.db.TruncateWebhookEvents(ctx, s.cfg.MaxEventLogLength)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to truncate event log")
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Truncated webhook event log")
	}
	return nil
}
