package b3

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"1.234,56"`, "1234.56"},
		{`"0,35"`, "0.35"},
		{`"100"`, "100"},
		{`12.5`, "12.5"},
		{`null`, "0"},
		{`""`, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var n Number
			require.NoError(t, json.Unmarshal([]byte(tt.in), &n))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(n.Decimal), n.String())
		})
	}
}

func TestNumber_UnmarshalInvalid(t *testing.T) {
	var n Number
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &n))
}

func TestNumber_RoundTrip(t *testing.T) {
	in := Number{decimal.RequireFromString("1234.56")}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, "1234.56", string(raw))

	var out Number
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, in.Equal(out.Decimal))
}

func TestCount_Unmarshal(t *testing.T) {
	var c Count
	require.NoError(t, json.Unmarshal([]byte(`"5.602.042.788"`), &c))
	assert.Equal(t, Count(5602042788), c)

	require.NoError(t, json.Unmarshal([]byte(`7442231148`), &c))
	assert.Equal(t, Count(7442231148), c)

	require.NoError(t, json.Unmarshal([]byte(`null`), &c))
	assert.Equal(t, Count(0), c)

	assert.Error(t, json.Unmarshal([]byte(`"1,5"`), &c))
}

func TestDate_Unmarshal(t *testing.T) {
	want := time.Date(2023, time.May, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{`"04/05/2023"`, `"2023-05-04"`, `"2023-05-04T00:00:00"`} {
		var d Date
		require.NoError(t, json.Unmarshal([]byte(in), &d), in)
		assert.Equal(t, want, d.Time, in)
	}

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.True(t, d.IsZero())
	require.NoError(t, json.Unmarshal([]byte(`""`), &d))
	assert.True(t, d.IsZero())
	assert.Error(t, json.Unmarshal([]byte(`"31/02/2023"`), &d))
}

func TestDate_Marshal(t *testing.T) {
	raw, err := json.Marshal(Date{time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, `"02/01/2024"`, string(raw))

	raw, err = json.Marshal(Date{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}
