package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefault(t *testing.T) *Registry {
	t.Helper()
	r, err := Default()
	require.NoError(t, err)
	return r
}

func TestDefaultTableLoads(t *testing.T) {
	r := mustDefault(t)
	assert.Equal(t, "RN_DIV", r.Table())
	assert.Equal(t, "block_name", r.RegionColumn())
	assert.Equal(t, []string{"RATNAGIRI", "LANJA", "SANGAMESHWAR", "RAJAPUR"}, r.Regions())

	names := []string{}
	for _, c := range r.Categories() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"Road Length", "Date", "Road Type", "Block Name", "Scheme Name", "Category of Work",
		"Contractor Name", "Total Expenditure", "Approved Amount",
		"Compare Expenditure and Approved Amount", "PCI After Completion of Work", "Current Status",
	}, names)

	groups, err := r.GroupsFor("Current Status")
	require.NoError(t, err)
	require.Len(t, groups, 7)
	assert.Equal(t, "Work is Complete", groups[0].Label)
	assert.Contains(t, groups[0].Raw, "Work done final")

	cow, err := r.GroupsFor("Category of Work")
	require.NoError(t, err)
	assert.Equal(t, "None", cow[len(cow)-1].Label)
	// 重复录入的变体在加载时折叠
	assert.Len(t, cow[0].Raw, 7)
}

func TestContractorValuesBecomeSingleVariantGroups(t *testing.T) {
	r := mustDefault(t)
	groups, err := r.GroupsFor("Contractor Name")
	require.NoError(t, err)
	require.NotEmpty(t, groups)
	for _, g := range groups {
		assert.Equal(t, []string{g.Label}, g.Raw)
	}
	g, ok := r.Classify("Contractor Name", "Hon'ble Sarpanch, Gram Panchayat Panval, Ratnagiri")
	assert.True(t, ok)
	assert.Equal(t, "Hon'ble Sarpanch, Gram Panchayat Panval, Ratnagiri", g)
}

func TestOthersPartitionsLiveLabels(t *testing.T) {
	r := mustDefault(t)
	live := []string{
		"Work done", "in progress", "Delayed", "Tender stage", "", "Delayed",
		"Work physically complete final payable outstanding", "Awaiting funds",
	}
	others, err := r.OthersFor("Current Status", live)
	require.NoError(t, err)
	assert.Equal(t, []string{"Awaiting funds", "Delayed", "Tender stage"}, others)

	inOthers := map[string]bool{}
	for _, o := range others {
		inOthers[o] = true
	}
	// 每个非空实时标签恰好属于一个预置分组或 Others
	for _, v := range live {
		if v == "" {
			continue
		}
		_, curated := r.Classify("Current Status", v)
		assert.NotEqual(t, curated, inOthers[v], v)
	}
}

func TestGroupLabelIsItsOwnRawVariant(t *testing.T) {
	r := mustDefault(t)
	g, ok := r.Classify("Current Status", "In Progress")
	assert.True(t, ok)
	assert.Equal(t, "In Progress", g)
	g, ok = r.Classify("Category of Work", "Road widening")
	assert.True(t, ok)
	assert.Equal(t, "Road widening", g)

	others, err := r.OthersFor("Current Status", []string{"Work is complete", "Work is Complete", "In Progress", "Delayed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Delayed"}, others)

	_, err = Parse([]byte(`version: 1
table: RN_DIV
region_column: block_name
categories:
  - name: Status
    kind: taxonomy
    column: status
    groups:
      - {label: Done, raw: [done]}
      - {label: Open, raw: [open, Done]}
`))
	assert.ErrorContains(t, err, `group label "Done"`)
}

func TestOthersIsDeterministic(t *testing.T) {
	r := mustDefault(t)
	a, err := r.OthersFor("Current Status", []string{"b", "a", "c"})
	require.NoError(t, err)
	b, err := r.OthersFor("Current Status", []string{"c", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOthersDisabledCategory(t *testing.T) {
	r := mustDefault(t)
	others, err := r.OthersFor("Block Name", []string{"DAPOLI"})
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestAllSelectableLabels(t *testing.T) {
	r := mustDefault(t)
	labels, err := r.AllSelectableLabels("Current Status", []string{"Delayed", "Work is Complete"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Work is Complete", "In Progress", "50% Work in Progress", "Budget Level",
		"Final Bill Done", "Final Payment Due", "Work Physically Complete", "Delayed",
	}, labels)
}

func TestUnknownCategory(t *testing.T) {
	r := mustDefault(t)
	_, err := r.GroupsFor("Bridge Span")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestIsRegion(t *testing.T) {
	r := mustDefault(t)
	assert.True(t, r.IsRegion("All"))
	assert.True(t, r.IsRegion(""))
	assert.True(t, r.IsRegion("LANJA"))
	assert.False(t, r.IsRegion("lanja"))
	assert.False(t, r.IsRegion("LANJA' OR 1=1 --"))
}

func TestParseRejectsOverlappingGroups(t *testing.T) {
	src := `
version: 1
table: RN_DIV
region_column: block_name
categories:
  - name: Current Status
    kind: taxonomy
    column: ratnagiri_final_current_status
    groups:
      - {label: Done, raw: [Work done]}
      - {label: Finished, raw: [Work done, finished]}
`
	_, err := Parse([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Work done")
}

func TestParseRejectsUnsafeIdentifiers(t *testing.T) {
	src := `
version: 1
table: RN_DIV
region_column: block_name
categories:
  - name: Road Length
    kind: range
    column: 'len" ; DROP TABLE x; --'
    domain: {min: 0, max: 50}
`
	_, err := Parse([]byte(src))
	assert.Error(t, err)

	src2 := `
version: 1
table: "RN DIV"
region_column: block_name
categories: []
`
	_, err = Parse([]byte(src2))
	assert.Error(t, err)
}

func TestParseRejectsBadOperator(t *testing.T) {
	src := `
version: 1
table: RN_DIV
region_column: block_name
categories:
  - name: Date
    kind: date
    modes:
      - {name: Completed Around, column: ratnagiri_final_completion_certificate_date, op: "~"}
`
	_, err := Parse([]byte(src))
	assert.Error(t, err)
}

func TestLoadFileEmptyPathFallsBack(t *testing.T) {
	r, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Version())
}

func TestColumns(t *testing.T) {
	cols := mustDefault(t).Columns()
	assert.Equal(t, "block_name", cols[0])
	assert.Contains(t, cols, "ratnagiri_final_current_status")
	assert.Contains(t, cols, "ratnagiri_final_approved_amount")
	seen := map[string]bool{}
	for _, c := range cols {
		assert.False(t, seen[c], c)
		seen[c] = true
	}
}
