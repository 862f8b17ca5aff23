package deploy

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies snapshot timestamps and run times.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator names recorded runs.
type IDGenerator interface {
	New() string
}

// UUIDGenerator names runs with random version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
