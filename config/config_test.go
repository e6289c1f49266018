package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/common"
	"jobcost/nodeset"
)

const sampleConfig = `
# Cluster rates
currency NOK

nodes Standard c1-[1-4]      # CPU nodes
rate Hardware 120 k/a
energy-rate Power 95 c/kWh

nodes GPU gpu-[1-2]
rate Hardware 1.2 M/a
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "NOK", cfg.Currency)
	require.Len(t, cfg.Groups, 2)
	assert.Equal(t, "Standard", cfg.Groups[0].Name)
	assert.Equal(t, nodeset.Set{"c1-1", "c1-2", "c1-3", "c1-4"}, cfg.Groups[0].Members)
	assert.Equal(t, nodeset.Set{"gpu-1", "gpu-2"}, cfg.Group("GPU").Members)
	assert.Nil(t, cfg.Group("None"))

	require.Len(t, cfg.Rates, 3)
	hw := cfg.Rates[0]
	assert.Equal(t, "Hardware", hw.Name)
	assert.Equal(t, TimeRate, hw.Kind)
	assert.Same(t, cfg.Groups[0], hw.Group)
	assert.True(t, hw.Canonical.Equal(decimal.NewFromInt(120_000_000)), hw.Canonical.String())
	assert.Equal(t, 6, hw.Line)

	pw := cfg.Rates[1]
	assert.Equal(t, EnergyRate, pw.Kind)
	assert.True(t, pw.Canonical.Equal(decimal.NewFromInt(950)), pw.Canonical.String())

	assert.Same(t, cfg.Groups[1], cfg.Rates[2].Group)
	assert.True(t, cfg.Rates[2].Canonical.Equal(decimal.NewFromInt(1_200_000_000)))

	assert.Equal(t, []string{"Hardware", "Power"}, cfg.RateNames())
}

func TestDefaultCurrency(t *testing.T) {
	cfg, err := Parse(strings.NewReader("nodes Base a[0-3]\nrate Power 1000 1/a\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, cfg.Currency)
	assert.True(t, cfg.Rates[0].Canonical.Equal(decimal.NewFromInt(1_000_000)))
}

func TestEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader("# nothing\n\n   \n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Rates)
	assert.Empty(t, cfg.Groups)
}

func configErrors(t *testing.T, text string) []string {
	t.Helper()
	_, err := Parse(strings.NewReader(text))
	require.Error(t, err)
	var ce *common.ConfigError
	require.True(t, errors.As(err, &ce), err.Error())
	return ce.Messages
}

func TestRateBeforeNodes(t *testing.T) {
	msgs := configErrors(t, "currency EUR\nrate Power 1000 1/a\nnodes Base a[0-3]\nrate Power 1 1/a\n")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Line 2:")
	assert.Contains(t, msgs[0], "before any nodes directive")

	msgs = configErrors(t, "energy-rate E 1 1/kWh\n")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Line 1:")
}

func TestAllErrorsReported(t *testing.T) {
	text := `currency EUR
currency USD
rate Early 1 1/a
nodes Base a[0-3]
rate Bad 1 1/y
energy-rate Worse 1 k/h
frobnicate x
rate Nan abc 1/a
nodes Base b1
nodes Broken b[1-
rate Neg -1 1/a
rate Short 1
`
	msgs := configErrors(t, text)
	require.Len(t, msgs, 10, strings.Join(msgs, "\n"))
	expect := []string{
		"Line 2: Currency",
		"Line 3: rate Early",
		"Line 5: Rate Bad",
		"Line 6: Rate Worse",
		"Line 7: Unknown directive 'frobnicate'",
		"Line 8: Rate Nan",
		"Line 9: Node group Base is already defined",
		"Line 10: Node group Broken",
		"Line 11: Rate Neg",
		"Line 12: Expected",
	}
	for i, e := range expect {
		assert.True(t, strings.HasPrefix(msgs[i], e), "%d: %s", i, msgs[i])
	}
}

func TestDuplicateRateInGroup(t *testing.T) {
	msgs := configErrors(t, "nodes A a1\nrate X 1 1/a\nrate X 2 1/a\n")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Line 3:")
}

func TestCustomExpander(t *testing.T) {
	calls := 0
	expand := func(expr string) (nodeset.Set, error) {
		calls++
		return nodeset.New("x", "y"), nil
	}
	cfg, err := ParseWithExpander(strings.NewReader("nodes All whatever\n"), expand)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, nodeset.Set{"x", "y"}, cfg.Groups[0].Members)
}
