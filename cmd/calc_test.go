package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/truecost/internal/model"
)

func TestRunCalc(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runCalc(&out, "$100.00", "www.amazon.com", model.DefaultSettings()))

	s := out.String()
	assert.Contains(t, s, "$100.00 (USD)")
	assert.Contains(t, s, "$196.72")
	assert.Contains(t, s, "If invested, worth $196.72 in 10 yrs")
	assert.Contains(t, s, "$100.00 today could become $196.72 in 10 years")
}

func TestRunCalc_Currency(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runCalc(&out, "£19.99", "www.amazon.co.uk", model.DefaultSettings()))
	assert.Contains(t, out.String(), "£19.99 (GBP)")
}

func TestRunCalc_Errors(t *testing.T) {
	var out bytes.Buffer
	err := runCalc(&out, "N/A", "www.amazon.com", model.DefaultSettings())
	assert.True(t, errors.Is(err, model.ErrParseFailure))

	bad := model.DefaultSettings()
	bad.Years = 0
	err = runCalc(&out, "$5", "www.amazon.com", bad)
	assert.True(t, errors.Is(err, model.ErrValidation))
}
