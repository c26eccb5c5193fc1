package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
)

// RegistrationOutcome says how a registration call was satisfied.
type RegistrationOutcome string

const (
	OutcomeCreated           RegistrationOutcome = "created"
	OutcomeInvited           RegistrationOutcome = "invited"
	OutcomeAlreadyRegistered RegistrationOutcome = "already-registered"
)

type Registration struct {
	TenantID string
	Role     model.Role
	Outcome  RegistrationOutcome
}

type MembershipService struct {
	store store.Store
}

func NewMembershipService(s store.Store) *MembershipService {
	return &MembershipService{store: s}
}

// Register resolves a first-contact subject, in order: an existing active
// record wins (idempotent re-registration), then a pending invitation for
// the email is claimed, then a brand-new tenant is created with the
// subject as admin. The new-tenant insert is conditional: if two calls
// for the same subject race, the loser re-reads and returns the winner's
// tenant rather than erroring.
func (s *MembershipService) Register(ctx context.Context, identity auth.User, tenantName string) (*Registration, error) {
	existing, err := s.store.Membership().Get(ctx, identity.Subject)
	if err == nil {
		return &Registration{
			TenantID: existing.TenantID,
			Role:     existing.Role,
			Outcome:  OutcomeAlreadyRegistered,
		}, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	if identity.Email != "" {
		invite, err := s.store.Membership().GetByEmail(ctx, identity.Email)
		if err == nil && invite.Status == model.MembershipPending {
			txCtx, err := s.store.NewTransactionContext(ctx)
			if err != nil {
				return nil, err
			}
			claimed, err := s.store.Membership().Claim(txCtx, invite.ID, model.Membership{
				ID:         identity.Subject,
				Email:      identity.Email,
				TenantID:   invite.TenantID,
				TenantName: invite.TenantName,
				Role:       invite.Role,
				Status:     model.MembershipActive,
				AddedBy:    invite.AddedBy,
				InvitedAt:  invite.InvitedAt,
			})
			if err != nil {
				_, _ = store.Rollback(txCtx)
				return nil, err
			}
			if _, err := store.Commit(txCtx); err != nil {
				return nil, err
			}

			zap.S().Named("membership").Infow("subject claimed invitation",
				"subject", identity.Subject, "tenant", claimed.TenantID, "role", claimed.Role)

			return &Registration{
				TenantID: claimed.TenantID,
				Role:     claimed.Role,
				Outcome:  OutcomeInvited,
			}, nil
		}
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return nil, err
		}
	}

	if tenantName == "" {
		tenantName = fmt.Sprintf("%s's team", identity.Email)
	}

	tenantID := uuid.NewString()
	created, err := s.store.Membership().Create(ctx, model.Membership{
		ID:         identity.Subject,
		Email:      identity.Email,
		TenantID:   tenantID,
		TenantName: tenantName,
		Role:       model.RoleAdmin,
		Status:     model.MembershipActive,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// lost the race against a concurrent registration for the
			// same subject: return the winner's tenant
			winner, getErr := s.store.Membership().Get(ctx, identity.Subject)
			if getErr != nil {
				return nil, getErr
			}
			return &Registration{
				TenantID: winner.TenantID,
				Role:     winner.Role,
				Outcome:  OutcomeAlreadyRegistered,
			}, nil
		}
		return nil, err
	}

	zap.S().Named("membership").Infow("created tenant",
		"tenant", created.TenantID, "subject", identity.Subject)

	return &Registration{
		TenantID: created.TenantID,
		Role:     created.Role,
		Outcome:  OutcomeCreated,
	}, nil
}

// Invite records a pending invitation for an email that has not
// authenticated yet. Any existing record for the email, active or
// pending, in this tenant or another, is a conflict.
func (s *MembershipService) Invite(ctx context.Context, caller auth.User, email string, role model.Role) (*model.Membership, error) {
	existing, err := s.store.Membership().GetByEmail(ctx, email)
	if err == nil {
		if existing.TenantID == caller.TenantID {
			return nil, NewErrConflict(fmt.Sprintf("%s is already a member of this tenant", email))
		}
		return nil, NewErrConflict(fmt.Sprintf("%s already belongs to another tenant", email))
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	invite, err := s.store.Membership().Create(ctx, model.Membership{
		ID:        model.NewInviteID(),
		Email:     email,
		TenantID:  caller.TenantID,
		Role:      role,
		Status:    model.MembershipPending,
		AddedBy:   caller.Subject,
		InvitedAt: &now,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, NewErrConflict(fmt.Sprintf("%s already has an outstanding record", email))
		}
		return nil, err
	}

	zap.S().Named("membership").Infow("invited member",
		"email", email, "tenant", caller.TenantID, "role", role)

	return invite, nil
}

// Remove deletes a member of the caller's tenant. Members of other
// tenants are invisible, and self-removal is forbidden.
func (s *MembershipService) Remove(ctx context.Context, caller auth.User, memberID string) error {
	target, err := s.store.Membership().Get(ctx, memberID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrMemberNotFound(memberID)
		}
		return err
	}

	if target.TenantID != caller.TenantID {
		return NewErrForbidden("member does not belong to your tenant")
	}

	if target.ID == caller.Subject {
		return NewErrConflict("you cannot remove yourself from the tenant")
	}

	return s.store.Membership().Delete(ctx, memberID)
}

// List returns all records, active and pending, for the caller's tenant.
func (s *MembershipService) List(ctx context.Context, caller auth.User) (model.MembershipList, error) {
	return s.store.Membership().ListByTenant(ctx, caller.TenantID)
}
