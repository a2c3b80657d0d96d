package limiter

import (
	"context"

	"github.com/Laisky/errors/v2"
	"golang.org/x/sync/semaphore"

	"github.com/leafdriven/mediadex/common/config"
)

// Named permits capping concurrent outbound operations per process.
const (
	SemDatabaseWrite = "database_write"
	SemPlatformSend  = "platform_send"
)

type SemaphoreSet struct {
	sems map[string]*semaphore.Weighted
}

// NewSemaphoreSet builds the global permit set from configuration.
func NewSemaphoreSet() *SemaphoreSet {
	return &SemaphoreSet{
		sems: map[string]*semaphore.Weighted{
			SemDatabaseWrite: semaphore.NewWeighted(config.DatabaseWriteConcurrency),
			SemPlatformSend:  semaphore.NewWeighted(config.PlatformSendConcurrency),
		},
	}
}

// Acquire blocks until a permit for name is available or ctx is done.
func (s *SemaphoreSet) Acquire(ctx context.Context, name string) error {
	sem, ok := s.sems[name]
	if !ok {
		return errors.Errorf("unknown semaphore: %s", name)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return errors.Wrapf(err, "acquire semaphore %s", name)
	}
	return nil
}

// Release returns a permit for name.
func (s *SemaphoreSet) Release(name string) {
	if sem, ok := s.sems[name]; ok {
		sem.Release(1)
	}
}

// With runs fn while holding a permit for name.
func (s *SemaphoreSet) With(ctx context.Context, name string, fn func() error) error {
	if err := s.Acquire(ctx, name); err != nil {
		return err
	}
	defer s.Release(name)
	return fn()
}
