// Package zone resolves time zone names to fixed UTC offsets.
package zone

import (
	"fmt"
	"time"
	_ "time/tzdata" // embedded tz database
)

// Zone is a named UTC offset in minutes east of UTC. The zero value is Local:
// times in a local zone are never shifted.
type Zone struct {
	Name   string `json:"name" yaml:"name"`
	Offset int    `json:"offset" yaml:"offset"`
}

// Local marks data that carries no explicit zone.
var Local = Zone{}

// UTC is the zero-offset zone.
var UTC = Zone{Name: "UTC"}

func (z Zone) IsLocal() bool {
	return z.Name == ""
}

// Fixed builds a zone from an offset in minutes.
func Fixed(name string, offset int) Zone {
	return Zone{Name: name, Offset: offset}
}

// Load resolves an IANA name to its offset in effect at the given instant.
// An empty name yields Local.
func Load(name string, at time.Time) (Zone, error) {
	if name == "" {
		return Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load zone %s: %w", name, err)
	}
	_, seconds := at.In(loc).Zone()
	return Zone{Name: name, Offset: seconds / 60}, nil
}

// ShiftTo is the number of minutes to add to a time in z to express it in target.
func (z Zone) ShiftTo(target Zone) int {
	if z.IsLocal() || target.IsLocal() {
		return 0
	}
	return target.Offset - z.Offset
}

func (z Zone) String() string {
	if z.IsLocal() {
		return "local"
	}
	sign := '+'
	offset := z.Offset
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s (UTC%c%02d:%02d)", z.Name, sign, offset/60, offset%60)
}
