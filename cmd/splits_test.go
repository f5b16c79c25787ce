package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marketdata-cli/internal/model"
)

func TestFormatFactors(t *testing.T) {
	splits := []model.Split{
		{ApprovedOn: time.Date(2005, 7, 22, 0, 0, 0, 0, time.UTC), Factor: decimal.NewFromInt(4)},
		{ApprovedOn: time.Date(2008, 3, 24, 0, 0, 0, 0, time.UTC), Factor: decimal.RequireFromString("0.5")},
	}

	var buf bytes.Buffer
	formatFactors(&buf, model.CumulativeFactors(splits))

	out := buf.String()
	assert.Contains(t, out, "CUMULATIVE")
	assert.Contains(t, out, "2005-07-22")
	assert.Contains(t, out, "2008-03-24")
	assert.Contains(t, out, "0.5")
	assert.Regexp(t, `2008-03-24\s+0\.5\s+2\n`, out)
}
