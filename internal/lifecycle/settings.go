package lifecycle

import (
	"strings"
	"time"

	"github.com/awaistahir/smart-window/internal/engine"
)

// RecordType tags persisted records written by the controller
const RecordType = "cheapest_hours"

// Offset shifts the start of the first window and the end of the last one
type Offset struct {
	Start time.Duration
	End   time.Duration
}

// Settings is the configuration of one sensor
type Settings struct {
	UniqueID string
	Name     string

	FirstHour     int
	LastHour      int
	StartingToday bool
	NumberOfHours Param
	Sequential    bool
	Inversed      bool
	PriceLimit    Param // unset disables the limit
	MTU           engine.MTU

	FailsafeStartingHour *int
	TriggerTime          *engine.TimeOfDay
	TriggerHour          Param // unset disables the gate

	Calendar bool
	Offset   Offset
}

// NormalizeID replaces spaces, which are not valid in identifiers
func NormalizeID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), " ", "_")
}

func (s Settings) mtu() engine.MTU {
	if s.MTU == 0 {
		return engine.MTU60
	}
	return s.MTU
}
