package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/agentfleet/task-planner/internal/store/model"
)

type LogEvent interface {
	Append(ctx context.Context, events []model.LogEvent) error
	Page(ctx context.Context, stream string, offset int, limit int) (model.LogEventList, error)
	InitialMigration() error
}

type LogEventStore struct {
	db *gorm.DB
}

var _ LogEvent = (*LogEventStore)(nil)

func NewLogEvent(db *gorm.DB) LogEvent {
	return &LogEventStore{db: db}
}

func (s *LogEventStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.LogEvent{})
}

func (s *LogEventStore) Append(ctx context.Context, events []model.LogEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.getDB(ctx).Create(&events).Error
}

// Page reads forward through a stream in insertion order.
func (s *LogEventStore) Page(ctx context.Context, stream string, offset int, limit int) (model.LogEventList, error) {
	var events model.LogEventList
	result := s.getDB(ctx).
		Where("stream = ?", stream).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}
	return events, nil
}

func (s *LogEventStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
