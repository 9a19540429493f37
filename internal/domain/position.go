package domain

import (
	"fmt"
	"math"
	"time"
)

// CelestialPosition is an equatorial coordinate pair produced fresh on every tick.
type CelestialPosition struct {
	RightAscensionHours float64
	DeclinationDegrees  float64
}

// Validate reports ErrInvalidPosition when the coordinates fall outside
// 0 <= RA < 24 and -90 <= DEC <= 90, or are not finite.
func (p CelestialPosition) Validate() error {
	ra, dec := p.RightAscensionHours, p.DeclinationDegrees
	if math.IsNaN(ra) || math.IsInf(ra, 0) || ra < 0 || ra >= 24 {
		return fmt.Errorf("%w: right ascension %v", ErrInvalidPosition, ra)
	}
	if math.IsNaN(dec) || math.IsInf(dec, 0) || dec < -90 || dec > 90 {
		return fmt.Errorf("%w: declination %v", ErrInvalidPosition, dec)
	}
	return nil
}

// PositionSource produces the position of a body at a given instant.
type PositionSource interface {
	Position(t time.Time) (CelestialPosition, error)
}
