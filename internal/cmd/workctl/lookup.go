package workctl

import (
	"context"
	"fmt"

	"work-pipeline/internal/domain"
	httpinfra "work-pipeline/internal/infra/http"
	"work-pipeline/internal/usecase"
)

// CallType selects how a lookup reaches the works.
type CallType int

const (
	// CallHTTP goes through the Work API.
	CallHTTP CallType = iota
	// CallDB reads the store directly.
	CallDB
)

var callTypeNames = map[string]CallType{
	"http": CallHTTP,
	"db":   CallDB,
}

// ParseCallType maps a --call-type value to its CallType.
func ParseCallType(s string) (CallType, error) {
	if c, ok := callTypeNames[s]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid call type %q, expected http or db", s)
}

func (c CallType) String() string {
	switch c {
	case CallHTTP:
		return "http"
	case CallDB:
		return "db"
	default:
		return fmt.Sprintf("CallType(%d)", int(c))
	}
}

// Lookup reads works by id or code prefix.
type Lookup interface {
	RetrieveWork(ctx context.Context, id int64) (*domain.Work, error)
	SearchWork(ctx context.Context, prefix string) ([]*domain.Work, error)
}

// HTTPLookup reads works through the Work API.
type HTTPLookup struct {
	Client *httpinfra.WorkClient
}

func (l HTTPLookup) RetrieveWork(ctx context.Context, id int64) (*domain.Work, error) {
	return l.Client.RetrieveWork(ctx, id)
}

func (l HTTPLookup) SearchWork(ctx context.Context, prefix string) ([]*domain.Work, error) {
	return l.Client.SearchWork(ctx, prefix)
}

// StoreLookup reads works from the store, with the same search window as the API.
type StoreLookup struct {
	Service *usecase.WorkService
}

func (l StoreLookup) RetrieveWork(ctx context.Context, id int64) (*domain.Work, error) {
	return l.Service.Get(ctx, id)
}

func (l StoreLookup) SearchWork(ctx context.Context, prefix string) ([]*domain.Work, error) {
	return l.Service.Search(ctx, prefix)
}

// NoID is the --id value meaning "not set".
const NoID int64 = -1

// LookupRequest is either an id or a work code prefix, never both.
type LookupRequest struct {
	ID       int64
	WorkCode string
}

// Validate applies the flag rules: a set id must be positive and exactly
// one of id and work code is given.
func (r LookupRequest) Validate() error {
	if r.ID != NoID && r.ID <= 0 {
		return fmt.Errorf("id %d is not valid, it must be positive", r.ID)
	}
	if r.ID == NoID && r.WorkCode == "" {
		return fmt.Errorf("neither --id nor --work-code is set")
	}
	if r.ID != NoID && r.WorkCode != "" {
		return fmt.Errorf("both --id and --work-code are set, choose one")
	}
	return nil
}

// Do runs the request against l.
func (r LookupRequest) Do(ctx context.Context, l Lookup) ([]*domain.Work, error) {
	if r.ID != NoID {
		work, err := l.RetrieveWork(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		return []*domain.Work{work}, nil
	}
	return l.SearchWork(ctx, r.WorkCode)
}
