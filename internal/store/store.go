package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Membership() Membership
	Key() Key
	LogEvent() LogEvent
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db         *gorm.DB
	job        Job
	membership Membership
	key        Key
	logEvent   LogEvent
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:         db,
		job:        NewJob(db),
		membership: NewMembership(db),
		key:        NewCacheKeyStore(NewKey(db)),
		logEvent:   NewLogEvent(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Membership() Membership {
	return s.membership
}

func (s *DataStore) Key() Key {
	return s.key
}

func (s *DataStore) LogEvent() LogEvent {
	return s.logEvent
}

func (s *DataStore) InitialMigration() error {
	if err := s.job.InitialMigration(); err != nil {
		return err
	}
	if err := s.membership.InitialMigration(); err != nil {
		return err
	}
	if err := s.key.InitialMigration(); err != nil {
		return err
	}
	return s.logEvent.InitialMigration()
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
