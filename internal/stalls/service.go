package stalls

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/events"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"go.uber.org/zap"
)

// Service is the admin lifecycle of stalls.
type Service struct {
	Registry Registry
	Events   events.Sink
	Log      *zap.Logger
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	base := s.Log
	if base == nil {
		base = zap.NewNop()
	}
	return logging.FromContext(ctx, base)
}

func (s *Service) Create(ctx context.Context, by auth.Principal, in Stall) (Stall, error) {
	if err := by.Require(auth.CapManageStalls); err != nil {
		return Stall{}, err
	}
	out, err := s.Registry.Create(ctx, in)
	if err != nil {
		return Stall{}, err
	}
	s.log(ctx).Info("stall_created", zap.String("stall_id", out.ID), zap.String("owner_id", out.OwnerID), zap.String("actor_id", by.ActorID()))
	return out, nil
}

func (s *Service) SetLocked(ctx context.Context, by auth.Principal, id string, locked bool) (Stall, error) {
	if err := by.Require(auth.CapManageStalls); err != nil {
		return Stall{}, err
	}
	out, err := s.Registry.SetLocked(ctx, id, locked)
	if err != nil {
		return Stall{}, err
	}
	s.log(ctx).Info("stall_lock_changed", zap.String("stall_id", id), zap.Bool("locked", locked), zap.String("actor_id", by.ActorID()))
	return out, nil
}

// Delete removes the stall and announces it so the reconciler can clean up
// the records left pointing at it.
func (s *Service) Delete(ctx context.Context, by auth.Principal, id string) error {
	if err := by.Require(auth.CapManageStalls); err != nil {
		return err
	}
	if err := s.Registry.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete stall %s: %w", id, err)
	}
	s.log(ctx).Info("stall_deleted", zap.String("stall_id", id), zap.String("actor_id", by.ActorID()))
	if s.Events != nil {
		s.Events.Emit(ctx, events.TopicStallDeleted, events.TypeStallDeleted, id, events.StallDeletedPayload{StallID: id, ActorID: by.ActorID()})
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]Stall, error) { return s.Registry.List(ctx) }
