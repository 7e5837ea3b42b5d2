package road

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoredDate(t *testing.T) {
	d, ok := ParseStoredDate("15.08.2023")
	assert.True(t, ok)
	assert.Equal(t, 2023, d.Year())
	assert.Equal(t, 8, int(d.Month()))
	assert.Equal(t, 15, d.Day())

	for _, bad := range []string{"31.02.2024", "2024-02-31", "", "1.1.2024", "00.01.2024", "01.13.2024", "01.01.0000", "29.02.2023 "} {
		_, ok := ParseStoredDate(bad)
		assert.False(t, ok, bad)
	}
	_, ok = ParseStoredDate("29.02.2024")
	assert.True(t, ok, "leap day")
}

func TestFromProperties(t *testing.T) {
	r := FromProperties(map[string]any{
		"BLOCK_NAME":                   "LANJA",
		ColLength:                      []byte("4.25"),
		ColPCI:                         int64(62),
		ColExpenditure:                 "1200.5",
		ColStatus:                      "Work done",
		ColCompletionDate:              "01.04.2022",
		"ratnagiri_final_unknown_attr": "ignored",
	}, nil)
	assert.Equal(t, "LANJA", r.Block)
	require.NotNil(t, r.Length)
	assert.Equal(t, 4.25, *r.Length)
	assert.Equal(t, 62.0, *r.PCI)
	assert.Equal(t, 1200.5, *r.TotalExpenditure)
	assert.Nil(t, r.ApprovedAmount)

	s, ok := r.Text(ColStatus)
	assert.True(t, ok)
	assert.Equal(t, "Work done", s)
	_, ok = r.Text(ColGeom)
	assert.False(t, ok)

	n, ok := r.Number(ColPCI)
	assert.True(t, ok)
	assert.Equal(t, 62.0, n)
	_, ok = r.Number(ColStatus)
	assert.False(t, ok)
}

func TestMissingNumbersAreNull(t *testing.T) {
	for _, v := range []any{nil, "N/A", "", []byte("  "), []byte("NaN"), "Infinity"} {
		r := FromProperties(map[string]any{ColLength: v}, nil)
		assert.Nil(t, r.Length, "%v", v)
		_, ok := r.Number(ColLength)
		assert.False(t, ok, "%v", v)
	}
	r := FromProperties(map[string]any{ColLength: "0"}, nil)
	n, ok := r.Number(ColLength)
	assert.True(t, ok)
	assert.Zero(t, n)
}
