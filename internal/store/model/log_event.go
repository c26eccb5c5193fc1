package model

import "time"

// LogEvent is one line of runner output, keyed by the stream name derived
// from the runner handle ({prefix}/{container}/{handle}).
type LogEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Stream    string `gorm:"index;not null"`
	Timestamp time.Time
	Message   string
}

type LogEventList []LogEvent
