package opcost

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/truecost/internal/model"
)

func TestFutureValue(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 196.72, FutureValue(100, 7, 10), 0.01)
	assert.InDelta(t, 98.34, FutureValue(49.99, 7, 10), 0.01)
	assert.InDelta(t, 110, FutureValue(100, 10, 1), 1e-9)
}

func TestFutureValue_ZeroHorizonIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("FutureValue(p, r, 0) == p", prop.ForAll(
		func(p, r float64) bool {
			return FutureValue(p, r, 0) == p
		},
		gen.Float64Range(0, 1e9),
		gen.Float64Range(-99, 1000),
	))

	properties.Property("FutureValue grows with the horizon for positive rates", prop.ForAll(
		func(p, r float64, years int) bool {
			return FutureValue(p, r, years+1) >= FutureValue(p, r, years)
		},
		gen.Float64Range(0.01, 1e6),
		gen.Float64Range(0.01, 50),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}

func TestCalculator_UsesSettings(t *testing.T) {
	t.Parallel()

	s := model.DefaultSettings()
	calc := NewCalculator(s)
	assert.Equal(t, 10, calc.Years())
	assert.InDelta(t, FutureValue(49.99, 7, 10), calc.FutureValue(49.99), 1e-9)

	p := calc.Project(100)
	assert.Equal(t, 100.0, p.Present)
	assert.Equal(t, 10, p.Years)
	assert.False(t, math.IsNaN(p.Future))
}

func TestFormatter_Format(t *testing.T) {
	t.Parallel()

	f := NewFormatter("$")
	tests := []struct {
		amount float64
		want   string
	}{
		{196.7151, "$196.72"},
		{5, "$5.00"},
		{999.994, "$999.99"},
		{1000, "$1,000"},
		{1967.15, "$1,967"},
		{1234567.8, "$1,234,568"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Format(tt.amount))
	}

	assert.Equal(t, "£19.99", NewFormatter("£").FormatExact(19.99))
	assert.Equal(t, "€1,234", NewFormatter("€").Format(1234.4))
}

func TestFormatter_Texts(t *testing.T) {
	t.Parallel()

	f := NewFormatter("$")
	p := Projection{Present: 100, Future: FutureValue(100, 7, 10), Years: 10}

	assert.Equal(t, "If invested, worth $196.72 in 10 yrs", f.BadgeText(p))
	assert.Equal(t, "$100.00 today could become $196.72 in 10 years", f.ProjectionText(p))
}
