// 包 report：固定的统计报表目录（预置 SQL，不接受用户参数）
package report

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("report not found")

// Definition：一张报表；RequiresGeometry 为 true 时返回道路行（带几何），否则为分组聚合表格
type Definition struct {
	Name             string   `json:"name"`
	SQL              string   `json:"sql"`
	RequiresGeometry bool     `json:"requires_geometry"`
	Columns          []string `json:"-"`
}

const (
	colTaluka      = "ratnagiri_final_taluka"
	colContractor  = "ratnagiri_final_contractor_name"
	colExpenditure = "ratnagiri_final_total_expenditure"
	colApproved    = "ratnagiri_final_approved_amount"
	colLength      = "ratnagiri_final_total_length"
	colStatus      = "ratnagiri_final_current_status"
	colScheme      = "ratnagiri_final_scheme_name"
	colPCI         = "ratnagiri_final_pci_after_completion_of_work"
	colDescription = "ratnagiri_final_description_of_work"
	colDepartment  = "ratnagiri_final_department"
	colCategory    = "ratnagiri_final_category_of_work"
	colRoadCat     = "roadcatego"
	colRoadOwner   = "roadowner"
	colBlock       = "block_name"
)

// 已完工状态的原始拼写（与分类表 Work is Complete 分组一致）
const completedStatuses = `'Work is Complete', 'Work is complete', 'Work done', 'Work done final', 'Work complete and final', 'Work complete final', 'The work is complete and final'`

// 每公里支出：长度为 0 或缺失时得到 NULL 而不是除零错误
const perKm = `("ratnagiri_final_total_expenditure" / NULLIF("ratnagiri_final_total_length", 0))`

var catalog = []Definition{
	{Name: "Total Length of Roads by Taluka", Columns: []string{colTaluka, colLength},
		SQL: `SELECT "ratnagiri_final_taluka" AS taluka, SUM("ratnagiri_final_total_length") AS total_length FROM "RN_DIV" GROUP BY "ratnagiri_final_taluka" ORDER BY taluka`},
	{Name: "Total Expenditure on Roads by Contractor", Columns: []string{colContractor, colExpenditure},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, SUM("ratnagiri_final_total_expenditure") AS total_expenditure FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name" ORDER BY contractor`},
	{Name: "Total Expenditure by Road Category", Columns: []string{colRoadCat, colExpenditure},
		SQL: `SELECT "roadcatego" AS road_category, SUM("ratnagiri_final_total_expenditure") AS total_expenditure FROM "RN_DIV" GROUP BY "roadcatego" ORDER BY road_category`},
	{Name: "Roads with Highest Approved Amount (Top 10)", RequiresGeometry: true, Columns: []string{colApproved},
		SQL: `SELECT * FROM "RN_DIV" ORDER BY "ratnagiri_final_approved_amount" DESC NULLS LAST LIMIT 10`},
	{Name: "Roads with Lowest Approved Amount (Bottom 10)", RequiresGeometry: true, Columns: []string{colApproved},
		SQL: `SELECT * FROM "RN_DIV" ORDER BY "ratnagiri_final_approved_amount" ASC NULLS LAST LIMIT 10`},
	{Name: "Roads with Delayed Completion", RequiresGeometry: true, Columns: []string{colStatus},
		SQL: `SELECT * FROM "RN_DIV" WHERE "ratnagiri_final_current_status" = 'Delayed'`},
	{Name: "Roads by Contractor and Current Status", Columns: []string{colContractor, colStatus},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, "ratnagiri_final_current_status" AS current_status, COUNT(*) AS road_count FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name", "ratnagiri_final_current_status" ORDER BY contractor, current_status`},
	{Name: "Count of Roads by Description of Work", Columns: []string{colDescription},
		SQL: `SELECT "ratnagiri_final_description_of_work" AS description_of_work, COUNT(*) AS road_count FROM "RN_DIV" GROUP BY "ratnagiri_final_description_of_work" ORDER BY description_of_work`},
	{Name: "Total Length of Roads by Scheme Name", Columns: []string{colScheme, colLength},
		SQL: `SELECT "ratnagiri_final_scheme_name" AS scheme_name, SUM("ratnagiri_final_total_length") AS total_length FROM "RN_DIV" GROUP BY "ratnagiri_final_scheme_name" ORDER BY scheme_name`},
	{Name: "Total Approved Amount by Contractor", Columns: []string{colContractor, colApproved},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, SUM("ratnagiri_final_approved_amount") AS total_approved_amount FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name" ORDER BY contractor`},
	{Name: "Average Expenditure per Road by Contractor", Columns: []string{colContractor, colExpenditure},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, AVG("ratnagiri_final_total_expenditure") AS average_expenditure FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name" ORDER BY contractor`},
	{Name: "Top 5 Contractors by Average PCI After Completion", Columns: []string{colContractor, colPCI},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, AVG("ratnagiri_final_pci_after_completion_of_work") AS average_pci FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name" ORDER BY average_pci DESC NULLS LAST LIMIT 5`},
	{Name: "Roads with High Expenditure to Length Ratio (Top 10)", RequiresGeometry: true, Columns: []string{colExpenditure, colLength},
		SQL: `SELECT *, ` + perKm + ` AS expenditure_to_length_ratio FROM "RN_DIV" ORDER BY expenditure_to_length_ratio DESC NULLS LAST LIMIT 10`},
	{Name: "Top 5 Schemes by Average Length of Roads", Columns: []string{colScheme, colLength},
		SQL: `SELECT "ratnagiri_final_scheme_name" AS scheme_name, AVG("ratnagiri_final_total_length") AS average_length FROM "RN_DIV" GROUP BY "ratnagiri_final_scheme_name" ORDER BY average_length DESC NULLS LAST LIMIT 5`},
	{Name: "Contractor Workload: Number of Projects and Total Length", Columns: []string{colContractor, colLength},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, COUNT(*) AS number_of_projects, SUM("ratnagiri_final_total_length") AS total_length FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name" ORDER BY contractor`},
	{Name: "Top 10 Contractors with Most Roads Completed", Columns: []string{colContractor, colStatus},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, COUNT(*) AS completed_roads FROM "RN_DIV" WHERE "ratnagiri_final_current_status" IN (` + completedStatuses + `) GROUP BY "ratnagiri_final_contractor_name" ORDER BY completed_roads DESC, contractor LIMIT 10`},
	{Name: "Bottom 10 Contractors with Fewest Roads Completed", Columns: []string{colContractor, colStatus},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, COUNT(*) AS completed_roads FROM "RN_DIV" WHERE "ratnagiri_final_current_status" IN (` + completedStatuses + `) GROUP BY "ratnagiri_final_contractor_name" ORDER BY completed_roads ASC, contractor LIMIT 10`},
	{Name: "Count of Roads by Scheme Name", Columns: []string{colScheme},
		SQL: `SELECT "ratnagiri_final_scheme_name" AS scheme_name, COUNT(*) AS road_count FROM "RN_DIV" GROUP BY "ratnagiri_final_scheme_name" ORDER BY scheme_name`},
	{Name: "Average Expenditure by Road Category", Columns: []string{colRoadCat, colExpenditure},
		SQL: `SELECT "roadcatego" AS road_category, AVG("ratnagiri_final_total_expenditure") AS average_expenditure FROM "RN_DIV" GROUP BY "roadcatego" ORDER BY road_category`},
	{Name: "Median Approved Amount by Contractor", Columns: []string{colContractor, colApproved},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY "ratnagiri_final_approved_amount") AS median_approved_amount FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name" ORDER BY contractor`},
	{Name: "Total Length of Roads by Contractor", Columns: []string{colContractor, colLength},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, SUM("ratnagiri_final_total_length") AS total_length FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name" ORDER BY contractor`},
	{Name: "Count of Roads by Status", Columns: []string{colStatus},
		SQL: `SELECT "ratnagiri_final_current_status" AS current_status, COUNT(*) AS road_count FROM "RN_DIV" GROUP BY "ratnagiri_final_current_status" ORDER BY current_status`},
	{Name: "Average Length of Roads by Taluka", Columns: []string{colTaluka, colLength},
		SQL: `SELECT "ratnagiri_final_taluka" AS taluka, AVG("ratnagiri_final_total_length") AS average_length FROM "RN_DIV" GROUP BY "ratnagiri_final_taluka" ORDER BY taluka`},
	{Name: "Top 10 Roads by Expenditure per Kilometer", RequiresGeometry: true, Columns: []string{colExpenditure, colLength},
		SQL: `SELECT *, ` + perKm + ` AS expenditure_per_km FROM "RN_DIV" ORDER BY expenditure_per_km DESC NULLS LAST LIMIT 10`},
	{Name: "Count of Roads by Department", Columns: []string{colDepartment},
		SQL: `SELECT "ratnagiri_final_department" AS department, COUNT(*) AS road_count FROM "RN_DIV" GROUP BY "ratnagiri_final_department" ORDER BY department`},
	{Name: "Average PCI After Completion by Taluka", Columns: []string{colTaluka, colPCI},
		SQL: `SELECT "ratnagiri_final_taluka" AS taluka, AVG("ratnagiri_final_pci_after_completion_of_work") AS average_pci FROM "RN_DIV" GROUP BY "ratnagiri_final_taluka" ORDER BY taluka`},
	{Name: "Total Expenditure by Block", Columns: []string{colBlock, colExpenditure},
		SQL: `SELECT "block_name" AS block, SUM("ratnagiri_final_total_expenditure") AS total_expenditure FROM "RN_DIV" GROUP BY "block_name" ORDER BY block`},
	{Name: "Contractor with Maximum Number of Roads", Columns: []string{colContractor},
		SQL: `SELECT "ratnagiri_final_contractor_name" AS contractor, COUNT(*) AS number_of_roads FROM "RN_DIV" GROUP BY "ratnagiri_final_contractor_name" ORDER BY number_of_roads DESC, contractor LIMIT 1`},
	{Name: "Top 10 Roads by Total Expenditure", RequiresGeometry: true, Columns: []string{colExpenditure},
		SQL: `SELECT * FROM "RN_DIV" ORDER BY "ratnagiri_final_total_expenditure" DESC NULLS LAST LIMIT 10`},
	{Name: "Bottom 10 Roads by Total Expenditure", RequiresGeometry: true, Columns: []string{colExpenditure},
		SQL: `SELECT * FROM "RN_DIV" ORDER BY "ratnagiri_final_total_expenditure" ASC NULLS LAST LIMIT 10`},
	{Name: "Count of Roads by Category of Work", Columns: []string{colCategory},
		SQL: `SELECT "ratnagiri_final_category_of_work" AS category_of_work, COUNT(*) AS road_count FROM "RN_DIV" GROUP BY "ratnagiri_final_category_of_work" ORDER BY category_of_work`},
	{Name: "Average Approved Amount by Scheme Name", Columns: []string{colScheme, colApproved},
		SQL: `SELECT "ratnagiri_final_scheme_name" AS scheme_name, AVG("ratnagiri_final_approved_amount") AS average_approved_amount FROM "RN_DIV" GROUP BY "ratnagiri_final_scheme_name" ORDER BY scheme_name`},
	{Name: "Total Expenditure by Road Owner", Columns: []string{colRoadOwner, colExpenditure},
		SQL: `SELECT "roadowner" AS road_owner, SUM("ratnagiri_final_total_expenditure") AS total_expenditure FROM "RN_DIV" GROUP BY "roadowner" ORDER BY road_owner`},
}

var byName = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for i, d := range catalog {
		m[d.Name] = i
	}
	return m
}()

// Lookup：按名称查找报表
func Lookup(name string) (Definition, error) {
	i, ok := byName[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return catalog[i], nil
}

// Names：目录顺序的报表名
func Names() []string {
	out := make([]string, len(catalog))
	for i, d := range catalog {
		out[i] = d.Name
	}
	return out
}

// All：完整目录副本
func All() []Definition { return append([]Definition(nil), catalog...) }

// Columns：全部报表引用到的列（去重，目录顺序），用于启动时的结构校验
func Columns() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range catalog {
		for _, c := range d.Columns {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
