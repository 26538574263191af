package workflow

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/songzhibin97/gkit/generator"
)

// IDGenerator produces unique workflow instance ids.
type IDGenerator interface {
	NewID() (string, error)
}

// UUIDGenerator issues random UUID ids. This is the default source:
// collision-free without coordination between processes.
type UUIDGenerator struct{}

// NewID returns a fresh UUID string.
func (UUIDGenerator) NewID() (string, error) {
	return uuid.NewString(), nil
}

// SnowflakeGenerator issues time-ordered numeric ids backed by the
// gkit snowflake generator. Useful when ids should sort by creation
// time; requires a distinct machine id per process.
type SnowflakeGenerator struct {
	gen generator.Generator
}

// NewSnowflakeGenerator creates a SnowflakeGenerator for the given
// machine id.
func NewSnowflakeGenerator(machineID int64) *SnowflakeGenerator {
	return &SnowflakeGenerator{
		gen: generator.NewSnowflake(time.Now().Add(-1*time.Second), uint16(machineID)),
	}
}

// NewID returns the next snowflake id rendered as a decimal string.
func (g *SnowflakeGenerator) NewID() (string, error) {
	id, err := g.gen.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(id, 10), nil
}
