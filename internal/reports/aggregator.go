package reports

import (
	"sort"

	"github.com/tempora-hq/tempora/internal/shared"
)

// BuildAggregate computes the monthly breakdown from entry rows: entries
// grouped by project, per-group and overall sums, groups sorted by project
// name, entries within a group sorted by date.
func BuildAggregate(userID int64, month shared.Month, rows []EntryRow) Aggregate {
	agg := Aggregate{
		UserID:   userID,
		Month:    month.String(),
		Projects: []ProjectBreakdown{},
	}

	groups := map[int64]*ProjectBreakdown{}
	order := map[int64][]EntryRow{}
	for _, row := range rows {
		g, ok := groups[row.ProjectID]
		if !ok {
			g = &ProjectBreakdown{ProjectID: row.ProjectID, ProjectName: row.ProjectName}
			groups[row.ProjectID] = g
		}
		g.TotalDays += row.Days
		order[row.ProjectID] = append(order[row.ProjectID], row)
		agg.TotalDays += row.Days
		agg.EntryCount++
	}

	for projectID, g := range groups {
		rows := order[projectID]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
		for _, row := range rows {
			g.Entries = append(g.Entries, EntryLine{
				Date:        row.Date.Format(shared.DateLayout),
				Days:        row.Days,
				Description: row.Description,
			})
		}
		agg.Projects = append(agg.Projects, *g)
	}
	sort.Slice(agg.Projects, func(i, j int) bool {
		if agg.Projects[i].ProjectName != agg.Projects[j].ProjectName {
			return agg.Projects[i].ProjectName < agg.Projects[j].ProjectName
		}
		return agg.Projects[i].ProjectID < agg.Projects[j].ProjectID
	})
	return agg
}
