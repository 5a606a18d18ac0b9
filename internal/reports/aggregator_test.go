package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/tempora/internal/shared"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildAggregateEmpty(t *testing.T) {
	agg := BuildAggregate(1, shared.Month{Year: 2025, Month: time.February}, nil)
	require.Equal(t, 0.0, agg.TotalDays)
	require.Equal(t, 0, agg.EntryCount)
	require.NotNil(t, agg.Projects)
	require.Empty(t, agg.Projects)
	require.Equal(t, "2025-02", agg.Month)
}

func TestBuildAggregateGroupsAndSorts(t *testing.T) {
	rows := []EntryRow{
		{ProjectID: 2, ProjectName: "Zephyr", Date: date("2025-02-20"), Days: 0.5},
		{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-10"), Days: 0.25, Description: "review"},
		{ProjectID: 2, ProjectName: "Zephyr", Date: date("2025-02-03"), Days: 0.5},
		{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-05"), Days: 0.25},
	}
	agg := BuildAggregate(7, shared.Month{Year: 2025, Month: time.February}, rows)

	require.Equal(t, 1.5, agg.TotalDays)
	require.Equal(t, 4, agg.EntryCount)
	require.Len(t, agg.Projects, 2)

	// Groups sorted by project name.
	require.Equal(t, "Atlas", agg.Projects[0].ProjectName)
	require.Equal(t, "Zephyr", agg.Projects[1].ProjectName)
	require.Equal(t, 0.5, agg.Projects[0].TotalDays)
	require.Equal(t, 1.0, agg.Projects[1].TotalDays)

	// Entries within a group sorted by date.
	require.Equal(t, "2025-02-05", agg.Projects[0].Entries[0].Date)
	require.Equal(t, "2025-02-10", agg.Projects[0].Entries[1].Date)
	require.Equal(t, "review", agg.Projects[0].Entries[1].Description)
	require.Equal(t, "2025-02-03", agg.Projects[1].Entries[0].Date)
}

func TestMonthTitleFrench(t *testing.T) {
	require.Equal(t, "février 2025", MonthTitle(shared.Month{Year: 2025, Month: time.February}))
	require.Equal(t, "août 2024", MonthTitle(shared.Month{Year: 2024, Month: time.August}))
}

func TestFilename(t *testing.T) {
	require.Equal(t, "report-2025-02-7.pdf", Filename(7, shared.Month{Year: 2025, Month: time.February}))
	require.Equal(t, "report-2024-11-3.pdf", Filename(3, shared.Month{Year: 2024, Month: time.November}))
}

func TestRenderHTML(t *testing.T) {
	rows := []EntryRow{
		{ProjectID: 1, ProjectName: "Atlas", Date: date("2025-02-05"), Days: 0.25, Description: "kickoff"},
	}
	month := shared.Month{Year: 2025, Month: time.February}
	html, err := RenderHTML("carol", month, BuildAggregate(7, month, rows))
	require.NoError(t, err)
	require.Contains(t, html, "Rapport mensuel")
	require.Contains(t, html, "carol")
	require.Contains(t, html, "février 2025")
	require.Contains(t, html, "Atlas")
	require.Contains(t, html, "kickoff")
	require.Contains(t, html, "0.25")
}
