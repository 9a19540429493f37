package domain

import (
	"errors"
	"math"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCelestialPosition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pos     CelestialPosition
		wantErr bool
	}{
		{"origin", CelestialPosition{0, 0}, false},
		{"upper bounds", CelestialPosition{23.999999, 90}, false},
		{"lower dec bound", CelestialPosition{12, -90}, false},
		{"ra wraps at 24", CelestialPosition{24, 0}, true},
		{"negative ra", CelestialPosition{-0.1, 0}, true},
		{"dec above pole", CelestialPosition{1, 90.01}, true},
		{"dec below pole", CelestialPosition{1, -90.01}, true},
		{"nan ra", CelestialPosition{math.NaN(), 0}, true},
		{"inf dec", CelestialPosition{1, math.Inf(-1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pos.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPosition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBindError_Unwrap(t *testing.T) {
	cause := &net.OpError{Op: "listen", Net: "tcp", Err: errors.New("address already in use")}
	err := error(&BindError{Address: "localhost:8765", Err: cause})

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "localhost:8765", bindErr.Address)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to bind localhost:8765")
}
