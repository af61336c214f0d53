package services_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *ServiceTestSuite) TestEffortReport() {
	beta := suite.createProject("Beta", suite.bob)
	alpha := suite.createProject("Alpha", suite.alice)
	gone := suite.createProject("Gone", suite.alice)

	p1 := suite.insertTask(models.Task{Name: "Phase 1", ProjectID: alpha.ID, Order: 0, DevManDays: 1})
	suite.insertTask(models.Task{Name: "Phase 2", ProjectID: alpha.ID, Order: 1, OwnerID: &suite.alice.ID})
	c1 := suite.insertTask(models.Task{Name: "Build", ProjectID: alpha.ID, ParentID: &p1.ID, Order: 0, DevManDays: 2.5, TestManDays: 1})
	suite.Require().NoError(suite.db.Create(&models.TaskOwner{TaskID: c1.ID, UserID: suite.bob.ID, CreatedAt: testNow}).Error)
	suite.Require().NoError(suite.db.Create(&models.TaskOwner{TaskID: c1.ID, UserID: suite.alice.ID, CreatedAt: testNow.Add(time.Second)}).Error)
	suite.insertTask(models.Task{Name: "Test", ProjectID: alpha.ID, ParentID: &p1.ID, Order: 1, TestManDays: 0.5})
	suite.insertTask(models.Task{Name: "Support", ProjectID: beta.ID, DevManDays: 3})
	suite.insertTask(models.Task{Name: "Hidden", ProjectID: gone.ID, DevManDays: 100})
	suite.Require().NoError(suite.projects.DeleteProject(suite.db, gone.ID))

	reports := services.NewReportService()
	report, err := reports.EffortReport(suite.db, nil)
	suite.Require().NoError(err)

	suite.Require().Len(report.Projects, 2)
	suite.Equal("Alpha", report.Projects[0].Name)

	names := make([]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		names = append(names, r.ProjectName+"/"+r.Name)
	}
	suite.Equal([]string{"Alpha/Phase 1", "Alpha/Build", "Alpha/Test", "Alpha/Phase 2", "Beta/Support"}, names)

	suite.Equal("Bob, Alice", report.Rows[1].AssigneeNames)
	suite.Equal(3.5, report.Rows[1].Total)
	suite.Equal("Alice", report.Rows[3].AssigneeNames, "legacy owner")
	suite.Equal("", report.Rows[0].AssigneeNames)

	suite.Equal(services.EffortSummary{DevManDays: 6.5, TestManDays: 1.5, Total: 8}, report.Summary)

	filtered, err := reports.EffortReport(suite.db, &beta.ID)
	suite.Require().NoError(err)
	suite.Len(filtered.Projects, 2, "the project list is not filtered")
	suite.Require().Len(filtered.Rows, 1)
	suite.Equal("Support", filtered.Rows[0].Name)
	suite.Equal(3.0, filtered.Summary.Total)
}

func TestWriteEffortCSV(t *testing.T) {
	rows := []services.EffortRow{
		{ProjectName: "Alpha, Inc", Name: "Build", AssigneeNames: "Mike Ross, John Smith", DevManDays: 2.5, TestManDays: 1, Total: 3.5},
		{ProjectName: "Beta", Name: `Say "hi"`, AssigneeNames: "", DevManDays: 0, TestManDays: 0, Total: 0},
		{ProjectName: "Beta", Name: "two\nlines", AssigneeNames: "Bob", DevManDays: 1.25, TestManDays: 0.75, Total: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, services.WriteEffortCSV(&buf, rows))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "UTF-8 BOM")

	want := "\ufeff项目名称,任务名称,负责人,开发人天,测试人天,合计\n" +
		"\"Alpha, Inc\",Build,\"Mike Ross, John Smith\",2.5,1,3.5\n" +
		"Beta,\"Say \"\"hi\"\"\",,0,0,0\n" +
		"Beta,\"two\nlines\",Bob,1.25,0.75,2"
	assert.Equal(t, want, out)
}

func TestWriteEffortCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, services.WriteEffortCSV(&buf, nil))
	assert.Equal(t, "\ufeff项目名称,任务名称,负责人,开发人天,测试人天,合计", buf.String())
}

func TestEffortCSVFilename(t *testing.T) {
	day := time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "Effort-Report-2026-10-14.csv", services.EffortCSVFilename(day))
}
