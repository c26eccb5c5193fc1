package store_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
)

var _ = Describe("cache key store", Ordered, func() {
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
		gormdb.Exec("DELETE FROM keys;")
	})

	Context("GetPublicKey", func() {
		It("roundtrips a signing key through the serializer", func() {
			privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
			Expect(err).To(BeNil())

			kid := uuid.NewString()
			_, err = s.Key().Create(context.TODO(), model.Key{
				ID:         kid,
				JobID:      uuid.NewString(),
				PrivateKey: privateKey,
			})
			Expect(err).To(BeNil())

			pb, err := s.Key().GetPublicKey(context.TODO(), kid)
			Expect(err).To(BeNil())

			rsaPub, ok := pb.(rsa.PublicKey)
			Expect(ok).To(BeTrue())
			Expect(rsaPub.Equal(&privateKey.PublicKey)).To(BeTrue())
		})

		It("returns not found for an unknown kid", func() {
			_, err := s.Key().GetPublicKey(context.TODO(), uuid.NewString())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("serves a cached key after the record is read once", func() {
			privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
			Expect(err).To(BeNil())

			kid := uuid.NewString()
			_, err = s.Key().Create(context.TODO(), model.Key{
				ID:         kid,
				JobID:      uuid.NewString(),
				PrivateKey: privateKey,
			})
			Expect(err).To(BeNil())

			_, err = s.Key().GetPublicKey(context.TODO(), kid)
			Expect(err).To(BeNil())

			// the record is gone but the cached key still verifies
			gormdb.Exec("DELETE FROM keys;")

			pb, err := s.Key().GetPublicKey(context.TODO(), kid)
			Expect(err).To(BeNil())
			Expect(pb).NotTo(BeNil())
		})
	})
})
