package lifecycle

import (
	"time"

	"github.com/awaistahir/smart-window/internal/engine"
)

// Attributes is the externally observed state of a sensor
type Attributes struct {
	UniqueID string      `json:"unique_id"`
	Name     string      `json:"name,omitempty"`
	IsOn     bool        `json:"is_on"`
	Mode     engine.Mode `json:"mode"`

	List       []engine.Window  `json:"list"`
	Next       *engine.Staged   `json:"next,omitempty"`
	Failsafe   *engine.Failsafe `json:"failsafe"`
	Expiration *time.Time       `json:"expiration"`
	UpdatedAt  *time.Time       `json:"updated_at"`
	FetchDate  *engine.Date     `json:"fetch_date"`

	MeanPrice *float64 `json:"mean_price"`
	MinPrice  *float64 `json:"min_price"`
	MaxPrice  *float64 `json:"max_price"`

	ActiveNumberOfHours *int     `json:"active_number_of_hours,omitempty"`
	ActiveTriggerHour   *int     `json:"active_trigger_hour,omitempty"`
	ActivePriceLimit    *float64 `json:"active_price_limit,omitempty"`

	FirstHour            int     `json:"first_hour"`
	LastHour             int     `json:"last_hour"`
	StartingToday        bool    `json:"starting_today"`
	NumberOfHours        string  `json:"number_of_hours"`
	IsSequential         bool    `json:"is_sequential"`
	Inversed             bool    `json:"inversed"`
	PriceLimit           *string `json:"price_limit"`
	TriggerTime          *string `json:"trigger_time"`
	TriggerHour          *string `json:"trigger_hour"`
	FailsafeStartingHour *int    `json:"failsafe_starting_hour"`
	FailsafeActive       bool    `json:"failsafe_active"`
	MTU                  int     `json:"mtu"`
}

// IsOn reports whether now lies inside a selected window or the failsafe
func (c *Controller) IsOn(now time.Time) bool {
	return c.Record().IsOn(now)
}

// Attributes assembles the observed state at now
func (c *Controller) Attributes(now time.Time) Attributes {
	rec := c.Record()
	s := c.settings

	attrs := Attributes{
		UniqueID: s.UniqueID,
		Name:     s.Name,
		IsOn:     rec.IsOn(now),
		Mode:     rec.Mode(now),

		List:      rec.List,
		Next:      rec.Next,
		Failsafe:  rec.Failsafe,
		MeanPrice: rec.Extra.Mean,
		MinPrice:  rec.Extra.Min,
		MaxPrice:  rec.Extra.Max,

		ActiveNumberOfHours: rec.ActiveNumberOfHours,
		ActiveTriggerHour:   rec.ActiveTriggerHour,
		ActivePriceLimit:    rec.ActivePriceLimit,

		FirstHour:            s.FirstHour,
		LastHour:             s.LastHour,
		StartingToday:        s.StartingToday,
		NumberOfHours:        s.NumberOfHours.String(),
		IsSequential:         s.Sequential,
		Inversed:             s.Inversed,
		PriceLimit:           optionalParam(s.PriceLimit),
		TriggerHour:          optionalParam(s.TriggerHour),
		FailsafeStartingHour: s.FailsafeStartingHour,
		FailsafeActive:       rec.FailsafeActive(now),
		MTU:                  int(s.mtu()),
	}
	if attrs.List == nil {
		attrs.List = []engine.Window{}
	}
	if !rec.Expiration.IsZero() {
		attrs.Expiration = &rec.Expiration
	}
	if !rec.UpdatedAt.IsZero() {
		attrs.UpdatedAt = &rec.UpdatedAt
	}
	if !rec.FetchDate.IsZero() {
		attrs.FetchDate = &rec.FetchDate
	}
	if s.TriggerTime != nil {
		t := s.TriggerTime.String()
		attrs.TriggerTime = &t
	}
	return attrs
}

func optionalParam(p Param) *string {
	if p.IsZero() {
		return nil
	}
	s := p.String()
	return &s
}
