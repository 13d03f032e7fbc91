package domain

import (
	"context"
	"time"
)

// WorkRepository persists Work rows.
type WorkRepository interface {
	CreateWork(ctx context.Context, work *Work) (*Work, error)
	RetrieveWork(ctx context.Context, id int64) (*Work, error)
	// SearchWork returns works whose code starts with prefix, created after since.
	SearchWork(ctx context.Context, prefix string, since time.Time) ([]*Work, error)
	// MarkWorkDone sets done=true and updated_on=at. Exactly one row must change.
	MarkWorkDone(ctx context.Context, id int64, at time.Time) error
}

// EventRepository appends and lists Event rows.
type EventRepository interface {
	CreateEvent(ctx context.Context, event *Event) (*Event, error)
	ListEvents(ctx context.Context, workCode string) ([]*Event, error)
}

// Session is a dedicated store connection. Close releases it.
type Session interface {
	WorkRepository
	EventRepository
	Close() error
}

// Store hands out sessions.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
}
