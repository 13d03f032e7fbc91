// Package factory builds WorkDemand, Work and Event values. Apart from
// randomness and clock reads the functions have no side effects.
package factory

import (
	"fmt"
	"math/rand/v2"
	"time"

	"work-pipeline/internal/domain"
)

const (
	// CodeSuffixLength is the length of the random part of a work code.
	CodeSuffixLength = 10

	minAddUpTo = 1
	maxAddUpTo = 100 // exclusive
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Now is the clock used for every timestamp. Values are UTC and truncated to
// whole seconds so they survive a round trip through the store unchanged.
var Now = func() time.Time { return time.Now().UTC().Truncate(time.Second) }

// RandomAlphanumeric returns n random characters from [A-Za-z0-9].
func RandomAlphanumeric(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(b)
}

// RandomAddUpTo draws a computation bound uniformly from [1, 100).
func RandomAddUpTo() int {
	return minAddUpTo + rand.IntN(maxAddUpTo-minAddUpTo)
}

// WorkCode joins a prefix and a fresh random suffix.
func WorkCode(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, RandomAlphanumeric(CodeSuffixLength))
}

// NewWork returns an unsaved Work with both timestamps set to now.
func NewWork(code string, addUpTo int) *domain.Work {
	now := Now()
	return &domain.Work{
		ID:        0,
		WorkCode:  code,
		AddUpTo:   addUpTo,
		Done:      false,
		CreatedOn: now,
		UpdatedOn: now,
	}
}

// GenerateRandomWork returns a Work with a prefixed random code and a random bound.
func GenerateRandomWork(prefix string) *domain.Work {
	return NewWork(WorkCode(prefix), RandomAddUpTo())
}

// GenerateRandomWorkDemand returns a fresh demand with a random bound.
func GenerateRandomWorkDemand() domain.WorkDemand {
	return domain.WorkDemand{
		AddUpTo: RandomAddUpTo(),
		Done:    false,
	}
}

// MapToWork turns a consumed demand into a Work owned by actorPrefix.
// The id is domain.UnpersistedWorkID until the store assigns one.
func MapToWork(demand domain.WorkDemand, actorPrefix string) *domain.Work {
	now := Now()
	return &domain.Work{
		ID:        domain.UnpersistedWorkID,
		WorkCode:  WorkCode(actorPrefix),
		AddUpTo:   demand.AddUpTo,
		Done:      demand.Done,
		CreatedOn: now,
		UpdatedOn: now,
	}
}

// NewEvent returns an unsaved Event stamped with now.
func NewEvent(code, variable, value string) *domain.Event {
	return &domain.Event{
		ID:        0,
		WorkCode:  code,
		Variable:  variable,
		Value:     value,
		CreatedOn: Now(),
	}
}

// CompletionTime is the updated_on written when a Work is marked done. With
// second precision "now" can equal createdOn, so it is pushed one second past it.
func CompletionTime(createdOn time.Time) time.Time {
	now := Now()
	if !now.After(createdOn) {
		return createdOn.Add(time.Second)
	}
	return now
}
