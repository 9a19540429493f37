package ephemeris

import (
	"fmt"
	"math"
	"time"

	"github.com/pscheid92/moonwatch/internal/domain"
)

const (
	secondsPerDay = 86400.0

	meanLongitudeAtEpoch = 218.316
	meanLongitudeRate    = 13.176396 // degrees per day
	meanAnomalyAtEpoch   = 134.963
	meanAnomalyRate      = 13.064993 // degrees per day
	equationOfCentre     = 6.289
	obliquity            = 23.4367
)

// j2000 is 2000-01-01 12:00:00 UTC.
var j2000 = time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)

// MoonSource implements domain.PositionSource for the Moon.
type MoonSource struct{}

func (MoonSource) Position(t time.Time) (domain.CelestialPosition, error) {
	return ComputeMoonPosition(t)
}

// ComputeMoonPosition returns the Moon's right ascension (hours) and
// declination (degrees) at instant t. The result depends on t only.
func ComputeMoonPosition(t time.Time) (domain.CelestialPosition, error) {
	d := daysSinceJ2000(t)

	meanLongitude := normalizeDegrees(meanLongitudeAtEpoch + meanLongitudeRate*d)
	meanAnomaly := normalizeDegrees(meanAnomalyAtEpoch + meanAnomalyRate*d)
	eclipticLongitude := normalizeDegrees(meanLongitude + equationOfCentre*math.Sin(radians(meanAnomaly)))

	sinLon, cosLon := math.Sincos(radians(eclipticLongitude))
	sinObl, cosObl := math.Sincos(radians(obliquity))

	dec := degrees(math.Asin(sinLon * sinObl))
	ra := normalizeDegrees(degrees(math.Atan2(cosObl*sinLon, cosLon))) / 15.0
	if ra >= 24 {
		ra = 0
	}

	pos := domain.CelestialPosition{RightAscensionHours: ra, DeclinationDegrees: dec}
	if err := pos.Validate(); err != nil {
		return domain.CelestialPosition{}, fmt.Errorf("moon position at %s: %w", t.UTC().Format(time.RFC3339), err)
	}
	return pos, nil
}

// daysSinceJ2000 avoids time.Duration so instants centuries away from the
// epoch do not overflow.
func daysSinceJ2000(t time.Time) float64 {
	seconds := float64(t.Unix()-j2000.Unix()) + float64(t.Nanosecond())/1e9
	return seconds / secondsPerDay
}

// normalizeDegrees maps x into [0, 360).
func normalizeDegrees(x float64) float64 {
	r := math.Mod(x, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r -= 360
	}
	return r
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
