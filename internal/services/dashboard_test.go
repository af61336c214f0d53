package services_test

import (
	"time"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/schedule"
	"delivery-tracker/backend/internal/services"
)

func (suite *ServiceTestSuite) TestOverview() {
	alpha := suite.createProject("Alpha", suite.alice)
	beta := suite.createProject("Beta", suite.bob)
	gone := suite.createProject("Gone", suite.bob)

	soon := suite.insertTask(models.Task{Name: "soon", ProjectID: alpha.ID, DueDate: daysFromNow(1), Priority: models.PriorityLow, OwnerID: &suite.alice.ID})
	late := suite.insertTask(models.Task{Name: "late", ProjectID: alpha.ID, DueDate: daysFromNow(-2), Priority: models.PriorityCritical})
	undated := suite.insertTask(models.Task{Name: "undated", ProjectID: alpha.ID})
	far := suite.insertTask(models.Task{Name: "far", ProjectID: alpha.ID, DueDate: daysFromNow(8)})
	suite.insertTask(models.Task{Name: "shipped", ProjectID: alpha.ID, DueDate: daysFromNow(1), Status: "完成"})

	// Parent looks open but every child is done.
	rolled := suite.insertTask(models.Task{Name: "rolled-up done", ProjectID: beta.ID, DueDate: daysFromNow(1)})
	suite.insertTask(models.Task{Name: "c1", ProjectID: beta.ID, ParentID: &rolled.ID, Status: models.StatusDone})

	// Parent due far away but a child is due this week.
	phase := suite.insertTask(models.Task{Name: "phase", ProjectID: beta.ID, DueDate: daysFromNow(30), StartDate: daysFromNow(-3)})
	suite.insertTask(models.Task{Name: "c2", ProjectID: beta.ID, ParentID: &phase.ID, Status: models.StatusInProgress, StartDate: daysFromNow(-1), DueDate: daysFromNow(7)})

	suite.insertTask(models.Task{Name: "hidden", ProjectID: gone.ID, DueDate: daysFromNow(-1)})
	suite.Require().NoError(suite.projects.DeleteProject(suite.db, gone.ID))

	dash := services.NewDashboardService(time.UTC)
	overview, err := dash.Overview(suite.db, testNow)
	suite.Require().NoError(err)

	titles := make([]string, 0, len(overview.Urgent))
	for _, u := range overview.Urgent {
		titles = append(titles, u.Title)
	}
	suite.Equal([]string{"late", "soon", "phase", "undated"}, titles)
	suite.Equal(4, overview.UrgentCount)

	byTitle := map[string]services.UrgentItem{}
	for _, u := range overview.Urgent {
		byTitle[u.Title] = u
	}
	suite.Equal(schedule.DueTextOverdue, byTitle["late"].Due)
	suite.Equal(0, byTitle["late"].DaysLeft)
	suite.Equal(models.PriorityCritical, byTitle["late"].Priority)
	suite.Equal("未分配", byTitle["late"].Owner)

	suite.Equal("剩 1 工作日", byTitle["soon"].Due)
	suite.Equal(models.PriorityMedium, byTitle["soon"].Priority, "low shows as medium")
	suite.Equal("Alice", byTitle["soon"].Owner)

	suite.Equal(5, byTitle["phase"].DaysLeft, "effective due date comes from children")
	suite.Equal(models.StatusInProgress, byTitle["phase"].Status)

	suite.True(byTitle["undated"].NoDueDate)
	suite.Equal(schedule.NoDueDateDays, byTitle["undated"].DaysLeft)
	suite.Equal(schedule.DueTextNoDueDate, byTitle["undated"].Due)

	gantt := make([]string, 0, len(overview.Gantt))
	for _, g := range overview.Gantt {
		gantt = append(gantt, g.Name)
	}
	suite.Equal([]string{"late", "soon", "far", "undated", "phase"}, gantt)

	for _, g := range overview.Gantt {
		switch g.ID {
		case far.ID:
			suite.Equal("2026-10-22", *g.EndDate)
			suite.Nil(g.StartDate)
		case phase.ID:
			suite.Equal("2026-10-13", *g.StartDate)
			suite.Equal("2026-10-21", *g.EndDate)
		case undated.ID:
			suite.Nil(g.EndDate)
		case soon.ID, late.ID:
			suite.Equal(alpha.ID, g.ProjectID)
		}
	}
}

func (suite *ServiceTestSuite) TestOverview_Empty() {
	overview, err := services.NewDashboardService(time.UTC).Overview(suite.db, testNow)
	suite.Require().NoError(err)
	suite.Zero(overview.UrgentCount)
	suite.NotNil(overview.Urgent)
	suite.NotNil(overview.Gantt)
}
