package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundingMethod(t *testing.T) {
	tests := []struct {
		input   string
		want    RoundingMethod
		wantErr bool
	}{
		{input: "", want: RoundingUp},
		{input: "UP", want: RoundingUp},
		{input: "down", want: RoundingDown},
		{input: " nearest ", want: RoundingNearest},
		{input: "bankers", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRoundingMethod(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.IsValid())
		})
	}
}

func TestRoundingMethod_Apply(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		places  int32
		up      string
		nearest string
		down    string
	}{
		{name: "exact value is unchanged", amount: "1330", places: 2, up: "1330", nearest: "1330", down: "1330"},
		{name: "fraction below half", amount: "12.341", places: 2, up: "12.35", nearest: "12.34", down: "12.34"},
		{name: "exact half rounds up", amount: "12.345", places: 2, up: "12.35", nearest: "12.35", down: "12.34"},
		{name: "zero places", amount: "104.5", places: 0, up: "105", nearest: "105", down: "104"},
		{name: "three places", amount: "0.0004", places: 3, up: "0.001", nearest: "0", down: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			up := RoundingUp.Apply(amount, tt.places)
			nearest := RoundingNearest.Apply(amount, tt.places)
			down := RoundingDown.Apply(amount, tt.places)

			assert.True(t, decimal.RequireFromString(tt.up).Equal(up), "up: got %s", up)
			assert.True(t, decimal.RequireFromString(tt.nearest).Equal(nearest), "nearest: got %s", nearest)
			assert.True(t, decimal.RequireFromString(tt.down).Equal(down), "down: got %s", down)

			assert.True(t, up.GreaterThanOrEqual(nearest))
			assert.True(t, nearest.GreaterThanOrEqual(down))
		})
	}
}

func TestRoundingMethod_ApplyUnknownUsesDefault(t *testing.T) {
	got := RoundingMethod("weird").Apply(decimal.RequireFromString("1.001"), 2)
	assert.Equal(t, "1.01", got.String())
}
