package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
)

var _ = Describe("membership store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		s, gormdb = newTestStore()
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM memberships;")
	})

	Context("create", func() {
		It("stores an active member", func() {
			created, err := s.Membership().Create(context.TODO(), model.Membership{
				ID:       "subject-1",
				Email:    "alice@example.com",
				TenantID: "tenant-a",
				Role:     model.RoleAdmin,
				Status:   model.MembershipActive,
			})
			Expect(err).To(BeNil())
			Expect(created.Role).To(Equal(model.RoleAdmin))

			got, err := s.Membership().Get(context.TODO(), "subject-1")
			Expect(err).To(BeNil())
			Expect(got.TenantID).To(Equal("tenant-a"))
		})

		It("rejects a duplicate id instead of overwriting", func() {
			_, err := s.Membership().Create(context.TODO(), model.Membership{
				ID: "subject-1", Email: "alice@example.com", TenantID: "tenant-a",
				Role: model.RoleAdmin, Status: model.MembershipActive,
			})
			Expect(err).To(BeNil())

			_, err = s.Membership().Create(context.TODO(), model.Membership{
				ID: "subject-1", Email: "other@example.com", TenantID: "tenant-b",
				Role: model.RoleDoctor, Status: model.MembershipActive,
			})
			Expect(err).To(MatchError(store.ErrDuplicateKey))

			got, err := s.Membership().Get(context.TODO(), "subject-1")
			Expect(err).To(BeNil())
			Expect(got.TenantID).To(Equal("tenant-a"))
			Expect(got.Role).To(Equal(model.RoleAdmin))
		})

		It("rejects a duplicate email across tenants", func() {
			_, err := s.Membership().Create(context.TODO(), model.Membership{
				ID: "subject-1", Email: "alice@example.com", TenantID: "tenant-a",
				Role: model.RoleAdmin, Status: model.MembershipActive,
			})
			Expect(err).To(BeNil())

			_, err = s.Membership().Create(context.TODO(), model.Membership{
				ID: "subject-2", Email: "alice@example.com", TenantID: "tenant-b",
				Role: model.RoleDoctor, Status: model.MembershipActive,
			})
			Expect(err).To(MatchError(store.ErrDuplicateKey))
		})
	})

	Context("get by email", func() {
		It("finds pending invitations", func() {
			now := time.Now().UTC()
			_, err := s.Membership().Create(context.TODO(), model.Membership{
				ID: model.NewInviteID(), Email: "bob@example.com", TenantID: "tenant-a",
				Role: model.RoleDoctor, Status: model.MembershipPending,
				AddedBy: "subject-1", InvitedAt: &now,
			})
			Expect(err).To(BeNil())

			got, err := s.Membership().GetByEmail(context.TODO(), "bob@example.com")
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.MembershipPending))
			Expect(model.IsInviteID(got.ID)).To(BeTrue())
		})
	})

	Context("claim", func() {
		It("replaces the placeholder with the real subject atomically", func() {
			inviteID := model.NewInviteID()
			_, err := s.Membership().Create(context.TODO(), model.Membership{
				ID: inviteID, Email: "bob@example.com", TenantID: "tenant-a",
				Role: model.RoleDoctor, Status: model.MembershipPending,
			})
			Expect(err).To(BeNil())

			txCtx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			claimed, err := s.Membership().Claim(txCtx, inviteID, model.Membership{
				ID: "subject-2", Email: "bob@example.com", TenantID: "tenant-a",
				Role: model.RoleDoctor, Status: model.MembershipActive,
			})
			Expect(err).To(BeNil())
			Expect(claimed.ID).To(Equal("subject-2"))

			_, err = store.Commit(txCtx)
			Expect(err).To(BeNil())

			_, err = s.Membership().Get(context.TODO(), inviteID)
			Expect(err).To(MatchError(store.ErrRecordNotFound))

			got, err := s.Membership().Get(context.TODO(), "subject-2")
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.MembershipActive))
		})

		It("leaves the placeholder untouched when the transaction rolls back", func() {
			inviteID := model.NewInviteID()
			_, err := s.Membership().Create(context.TODO(), model.Membership{
				ID: inviteID, Email: "bob@example.com", TenantID: "tenant-a",
				Role: model.RoleDoctor, Status: model.MembershipPending,
			})
			Expect(err).To(BeNil())

			txCtx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.Membership().Claim(txCtx, inviteID, model.Membership{
				ID: "subject-2", Email: "bob@example.com", TenantID: "tenant-a",
				Role: model.RoleDoctor, Status: model.MembershipActive,
			})
			Expect(err).To(BeNil())

			_, err = store.Rollback(txCtx)
			Expect(err).To(BeNil())

			got, err := s.Membership().Get(context.TODO(), inviteID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.MembershipPending))

			_, err = s.Membership().Get(context.TODO(), "subject-2")
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("fails when the placeholder was already claimed", func() {
			_, err := s.Membership().Claim(context.TODO(), model.NewInviteID(), model.Membership{
				ID: "subject-2", Email: "bob@example.com", TenantID: "tenant-a",
				Role: model.RoleDoctor, Status: model.MembershipActive,
			})
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("list and delete", func() {
		It("lists only the tenant's members", func() {
			_, err := s.Membership().Create(context.TODO(), model.Membership{
				ID: "subject-1", Email: "alice@example.com", TenantID: "tenant-a",
				Role: model.RoleAdmin, Status: model.MembershipActive,
			})
			Expect(err).To(BeNil())
			_, err = s.Membership().Create(context.TODO(), model.Membership{
				ID: "subject-2", Email: "bob@example.com", TenantID: "tenant-b",
				Role: model.RoleAdmin, Status: model.MembershipActive,
			})
			Expect(err).To(BeNil())

			members, err := s.Membership().ListByTenant(context.TODO(), "tenant-a")
			Expect(err).To(BeNil())
			Expect(members).To(HaveLen(1))
			Expect(members[0].ID).To(Equal("subject-1"))
		})

		It("deletes a member", func() {
			_, err := s.Membership().Create(context.TODO(), model.Membership{
				ID: "subject-1", Email: "alice@example.com", TenantID: "tenant-a",
				Role: model.RoleAdmin, Status: model.MembershipActive,
			})
			Expect(err).To(BeNil())

			Expect(s.Membership().Delete(context.TODO(), "subject-1")).To(BeNil())
			Expect(s.Membership().Delete(context.TODO(), "subject-1")).To(MatchError(store.ErrRecordNotFound))
		})
	})
})
