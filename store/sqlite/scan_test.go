package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbook/ledger-engine/balance"
)

// =============================================================================
// STORED VALUE PARSING
// =============================================================================

func TestParseDate(t *testing.T) {
	d, err := parseDate("2014-01-15")
	require.NoError(t, err)
	assert.Equal(t, balance.NewDate(2014, time.January, 15), d)
}

func TestParseDate_MalformedValueIsAnError(t *testing.T) {
	_, err := parseDate("not-a-date")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-date")
}

func TestParseDecimal(t *testing.T) {
	d, err := parseDecimal("12.34")
	require.NoError(t, err)
	assert.Equal(t, "12.34", d.String())
}

func TestParseDecimal_MalformedValueIsAnError(t *testing.T) {
	_, err := parseDecimal("12,34")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "12,34")
}
