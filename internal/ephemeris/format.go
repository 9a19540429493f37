package ephemeris

import (
	"fmt"
	"math"

	"github.com/pscheid92/moonwatch/internal/domain"
)

// FormatRightAscension renders hours as HH:MM:SS. Every field is truncated,
// so 1.999999h is 01:59:59 and never 02:00:00.
func FormatRightAscension(ra float64) string {
	h, m, s := sexagesimal(ra)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatDeclination renders degrees as ±DD° MM' SS". The sign is '+' for
// zero and positive values; the fields come from the truncated magnitude.
func FormatDeclination(dec float64) string {
	sign := "+"
	if dec < 0 {
		sign = "-"
	}
	d, m, s := sexagesimal(math.Abs(dec))
	return fmt.Sprintf("%s%02d° %02d' %02d\"", sign, d, m, s)
}

// FormatMessage builds the broadcast frame for a position.
func FormatMessage(pos domain.CelestialPosition) string {
	return "RA: " + FormatRightAscension(pos.RightAscensionHours) + ", DEC: " + FormatDeclination(pos.DeclinationDegrees)
}

// sexagesimal splits a non-negative value into whole units, minutes and seconds.
func sexagesimal(v float64) (whole, minutes, seconds int) {
	whole = int(v)
	minutes = int(math.Mod(v, 1) * 60)
	seconds = int(math.Mod(v*60, 1) * 60)
	return whole, minutes, seconds
}
