package replication

import (
	"fmt"
	"time"
)

// Default settings.
const (
	DefaultPushBatchSize = 100
	DefaultPushInterval  = 5 * time.Second
	DefaultPullPageSize  = 500
	DefaultPullInterval  = time.Minute
	DefaultRetryInitial  = 500 * time.Millisecond
	DefaultRetryMax      = 30 * time.Second
)

// Settings tunes the Engine. Zero fields take their defaults.
type Settings struct {
	// PushBatchSize bounds the records sent in one remote upsert. A batch
	// is atomic on the remote: it lands entirely or not at all.
	PushBatchSize int

	// PushInterval is how often pending mutations are pushed when no local
	// commit triggers a push.
	PushInterval time.Duration

	// PullPageSize bounds the records fetched per catch-up page.
	PullPageSize int

	// PullInterval is how often a catch-up pull runs alongside the
	// realtime channel.
	PullInterval time.Duration

	// RetryInitial and RetryMax bound the exponential backoff between
	// failed attempts.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// DefaultSettings returns the default Settings.
func DefaultSettings() Settings {
	return Settings{}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.PushBatchSize == 0 {
		s.PushBatchSize = DefaultPushBatchSize
	}
	if s.PushInterval == 0 {
		s.PushInterval = DefaultPushInterval
	}
	if s.PullPageSize == 0 {
		s.PullPageSize = DefaultPullPageSize
	}
	if s.PullInterval == 0 {
		s.PullInterval = DefaultPullInterval
	}
	if s.RetryInitial == 0 {
		s.RetryInitial = DefaultRetryInitial
	}
	if s.RetryMax == 0 {
		s.RetryMax = DefaultRetryMax
	}
	return s
}

// Validate reports settings that cannot work.
func (s Settings) Validate() error {
	s = s.withDefaults()
	switch {
	case s.PushBatchSize < 1:
		return fmt.Errorf("push batch size must be positive, got %d", s.PushBatchSize)
	case s.PullPageSize < 1:
		return fmt.Errorf("pull page size must be positive, got %d", s.PullPageSize)
	case s.PushInterval < 0 || s.PullInterval < 0:
		return fmt.Errorf("intervals must be positive")
	case s.RetryInitial < 0 || s.RetryMax < s.RetryInitial:
		return fmt.Errorf("retry bounds invalid: initial %s, max %s", s.RetryInitial, s.RetryMax)
	}
	return nil
}
