package shared

import (
	"fmt"
	"time"
)

// Tenor represents a named settlement delay category for an RFQ.
type Tenor int

const (
	Instant Tenor = iota
	Hourly
	Daily
)

// String stringifies the provided tenor.
func (t Tenor) String() string {
	switch t {
	case Instant:
		return "instant"
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	default:
		return "unknown"
	}
}

// ParseTenor parses a tenor from the provided string.
func ParseTenor(tenor string) (Tenor, error) {
	switch tenor {
	case "instant":
		return Instant, nil
	case "hourly":
		return Hourly, nil
	case "daily":
		return Daily, nil
	default:
		return 0, fmt.Errorf("unknown tenor provided: %s", tenor)
	}
}

// SettlementOffset returns the fixed settlement delay for the tenor.
func (t Tenor) SettlementOffset() time.Duration {
	switch t {
	case Hourly:
		return time.Hour
	case Daily:
		return time.Hour * 24
	default:
		return time.Second * 120
	}
}

// SettlementTime derives the absolute settlement timestamp for the tenor
// from the provided reference time. The taker signing client and the
// settlement orchestrator must both compute this identically.
func (t Tenor) SettlementTime(now time.Time) int64 {
	return now.Add(t.SettlementOffset()).Unix()
}

// MarshalJSON stringifies the tenor for api responses.
func (t Tenor) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses the tenor from its string form.
func (t *Tenor) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("malformed tenor: %s", string(data))
	}

	tenor, err := ParseTenor(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}

	*t = tenor
	return nil
}
