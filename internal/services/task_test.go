package services_test

import (
	"encoding/json"
	"strings"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/services"

	"github.com/gofrs/uuid"
)

func (suite *ServiceTestSuite) createParent(project *models.Project, name string) *models.Task {
	task, err := suite.tasks.CreateParentTask(suite.db, suite.adminActor, services.ParentTaskInput{
		ProjectID: project.ID,
		Name:      name,
	})
	suite.Require().NoError(err)
	return task
}

func (suite *ServiceTestSuite) logsFor(taskID uuid.UUID) []models.ActivityLog {
	var logs []models.ActivityLog
	suite.Require().NoError(suite.db.Where("task_id = ?", taskID).Order("created_at ASC").Find(&logs).Error)
	return logs
}

func decodeDetails(raw []byte) map[string]interface{} {
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func (suite *ServiceTestSuite) TestCreateParentTask() {
	p := suite.createProject("Alpha", suite.alice)

	var changes []services.Change
	suite.tasks.OnChange(func(c services.Change) { changes = append(changes, c) })

	first, err := suite.tasks.CreateParentTask(suite.db, suite.adminActor, services.ParentTaskInput{
		ProjectID:   p.ID,
		Name:        " Kickoff ",
		Status:      "进行中",
		Priority:    "High",
		StartDate:   daysFromNow(-5),
		DueDate:     daysFromNow(5),
		OwnerID:     &suite.alice.ID,
		DevManDays:  2,
		TestManDays: 1.5,
	})
	suite.Require().NoError(err)
	suite.Equal("Kickoff", first.Name)
	suite.Equal(models.StatusInProgress, first.Status)
	suite.Equal(models.PriorityHigh, first.Priority)
	suite.Equal(0, first.Order)

	second := suite.createParent(p, "Delivery")
	suite.Equal(1, second.Order)
	suite.Equal(models.StatusPending, second.Status)
	suite.Equal(models.PriorityMedium, second.Priority)

	// 50% of the first task, nothing of the second: (10*0.5 + 1*0) / 11.
	suite.Equal(45, suite.progressOf(p.ID))

	logs := suite.logsFor(first.ID)
	suite.Require().Len(logs, 1)
	suite.Equal(models.ActionCreateTask, logs[0].Action)
	suite.Equal("Admin", logs[0].ActorName)
	details := decodeDetails(logs[0].Details)
	suite.Equal("Kickoff", details["taskName"])
	suite.Equal("parent", details["type"])

	suite.Len(changes, 2)
	suite.Equal(services.Change{Entity: services.EntityTask, ProjectID: p.ID}, changes[0])

	var owners []models.TaskOwner
	suite.Require().NoError(suite.db.Where("task_id = ?", first.ID).Find(&owners).Error)
	suite.Require().Len(owners, 1)
	suite.Equal(suite.alice.ID, owners[0].UserID)
}

func (suite *ServiceTestSuite) TestCreateParentTask_Validation() {
	p := suite.createProject("Alpha", suite.alice)
	deleted := suite.createProject("Gone", suite.alice)
	suite.Require().NoError(suite.projects.DeleteProject(suite.db, deleted.ID))

	cases := []struct {
		in   services.ParentTaskInput
		want string
	}{
		{services.ParentTaskInput{ProjectID: p.ID, Name: "  "}, "任务名称是必填项"},
		{services.ParentTaskInput{Name: "x"}, "项目ID是必填项"},
		{services.ParentTaskInput{ProjectID: p.ID, Name: "x", Description: strings.Repeat("长", 501)}, "任务描述不能超过 500 字符"},
		{services.ParentTaskInput{ProjectID: p.ID, Name: "x", Status: "Blocked"}, "状态无效"},
		{services.ParentTaskInput{ProjectID: p.ID, Name: "x", Priority: "Urgent"}, "优先级无效"},
		{services.ParentTaskInput{ProjectID: p.ID, Name: "x", DevManDays: -1}, "人天不能为负数"},
		{services.ParentTaskInput{ProjectID: p.ID, Name: "x", StartDate: daysFromNow(2), DueDate: daysFromNow(1)}, "开始日期不能晚于截止日期"},
		{services.ParentTaskInput{ProjectID: p.ID, Name: "x", OwnerID: &uuid.UUID{1}}, "负责人不存在"},
	}
	for _, tc := range cases {
		_, err := suite.tasks.CreateParentTask(suite.db, suite.adminActor, tc.in)
		suite.Equal(tc.want, suite.validationMessage(err))
	}

	_, err := suite.tasks.CreateParentTask(suite.db, suite.adminActor, services.ParentTaskInput{ProjectID: deleted.ID, Name: "x"})
	suite.ErrorIs(err, services.ErrNotFound)

	_, err = suite.tasks.CreateParentTask(suite.db, suite.adminActor, services.ParentTaskInput{
		ProjectID: p.ID, Name: "x", Description: strings.Repeat("长", 500),
	})
	suite.NoError(err, "500 characters is allowed")

	var logs int64
	suite.db.Model(&models.ActivityLog{}).Count(&logs)
	suite.EqualValues(1, logs, "rejected writes leave no log")
}

func (suite *ServiceTestSuite) TestUpdateParentTask() {
	p := suite.createProject("Alpha", suite.alice)
	task := suite.createParent(p, "Kickoff")

	name := "Kickoff meeting"
	status := "done"
	desc := "agenda"
	updated, err := suite.tasks.UpdateParentTask(suite.db, suite.adminActor, task.ID, services.ParentTaskUpdate{
		Name:        &name,
		Status:      &status,
		Description: &desc,
	})
	suite.Require().NoError(err)
	suite.Equal("Kickoff meeting", updated.Name)
	suite.Equal(models.StatusDone, updated.Status)
	suite.Equal("agenda", updated.Description)
	suite.Equal(100, suite.progressOf(p.ID))

	logs := suite.logsFor(task.ID)
	suite.Require().Len(logs, 2)
	suite.Equal(models.ActionUpdateTask, logs[1].Action)
	changes := decodeDetails(logs[1].Details)["changes"].(map[string]interface{})
	suite.Equal(map[string]interface{}{"old": "Kickoff", "new": "Kickoff meeting"}, changes["name"])
	suite.Equal(map[string]interface{}{"old": "Pending", "new": "Done"}, changes["status"])
	suite.Equal(map[string]interface{}{"updated": true}, changes["description"])

	due := daysFromNow(-1)
	_, err = suite.tasks.UpdateParentTask(suite.db, suite.adminActor, task.ID, services.ParentTaskUpdate{
		StartDate: daysFromNow(0),
		DueDate:   due,
	})
	suite.Equal("开始日期不能晚于截止日期", suite.validationMessage(err))

	_, err = suite.tasks.UpdateParentTask(suite.db, suite.adminActor, uuid.Must(uuid.NewV4()), services.ParentTaskUpdate{Name: &name})
	suite.ErrorIs(err, services.ErrNotFound)
}

func (suite *ServiceTestSuite) TestCreateSubTask() {
	p := suite.createProject("Alpha", suite.alice, suite.bob)
	parent := suite.createParent(p, "Phase 1")

	sub, err := suite.tasks.CreateSubTask(suite.db, suite.adminActor, services.SubTaskInput{
		ProjectID: p.ID,
		ParentID:  parent.ID,
		Name:      "Build",
		OwnerIDs:  []uuid.UUID{suite.bob.ID, suite.alice.ID, suite.bob.ID},
		Status:    "Done",
	})
	suite.Require().NoError(err)
	suite.Equal(parent.ID, *sub.ParentID)
	suite.Equal(suite.bob.ID, *sub.OwnerID, "legacy owner is the first owner")
	suite.Equal(0, sub.Order)

	second, err := suite.tasks.CreateSubTask(suite.db, suite.adminActor, services.SubTaskInput{ParentID: parent.ID, Name: "Test"})
	suite.Require().NoError(err)
	suite.Equal(1, second.Order)
	suite.Nil(second.OwnerID)

	// One of two equal-length children is done.
	suite.Equal(50, suite.progressOf(p.ID))

	detail, err := suite.projects.GetProjectDetail(suite.db, p.ID)
	suite.Require().NoError(err)
	owners := detail.Tasks[0].Children[0].Owners
	suite.Require().Len(owners, 2)
	suite.Equal("Bob", owners[0].Name)
	suite.Equal("Alice", owners[1].Name)

	logs := suite.logsFor(sub.ID)
	suite.Require().Len(logs, 1)
	suite.Equal(models.ActionCreateSubTask, logs[0].Action)
	details := decodeDetails(logs[0].Details)
	suite.Equal("subtask", details["type"])
	suite.Equal("Phase 1", details["parentName"])
	suite.Len(details["ownerIds"], 2)
}

func (suite *ServiceTestSuite) TestCreateSubTask_ParentRules() {
	alpha := suite.createProject("Alpha", suite.alice)
	beta := suite.createProject("Beta", suite.alice)
	parent := suite.createParent(alpha, "Phase 1")
	sub, err := suite.tasks.CreateSubTask(suite.db, suite.adminActor, services.SubTaskInput{ParentID: parent.ID, Name: "Build"})
	suite.Require().NoError(err)

	_, err = suite.tasks.CreateSubTask(suite.db, suite.adminActor, services.SubTaskInput{ParentID: sub.ID, Name: "Nested"})
	suite.Equal("子任务不能再添加子任务", suite.validationMessage(err))

	_, err = suite.tasks.CreateSubTask(suite.db, suite.adminActor, services.SubTaskInput{ProjectID: beta.ID, ParentID: parent.ID, Name: "Elsewhere"})
	suite.Equal("父任务不属于该项目", suite.validationMessage(err))

	_, err = suite.tasks.CreateSubTask(suite.db, suite.adminActor, services.SubTaskInput{ParentID: uuid.Must(uuid.NewV4()), Name: "Orphan"})
	suite.Equal("父任务不存在", suite.validationMessage(err))
}

func (suite *ServiceTestSuite) TestUpdateSubTask_ReplacesOwners() {
	p := suite.createProject("Alpha", suite.alice, suite.bob)
	parent := suite.createParent(p, "Phase 1")
	sub, err := suite.tasks.CreateSubTask(suite.db, suite.adminActor, services.SubTaskInput{
		ParentID: parent.ID,
		Name:     "Build",
		OwnerIDs: []uuid.UUID{suite.alice.ID},
	})
	suite.Require().NoError(err)

	updated, err := suite.tasks.UpdateSubTask(suite.db, suite.adminActor, sub.ID, services.SubTaskUpdate{
		Name:      "Build API",
		Status:    "In Progress",
		StartDate: daysFromNow(-1),
		DueDate:   daysFromNow(1),
		OwnerIDs:  []uuid.UUID{suite.bob.ID},
	})
	suite.Require().NoError(err)
	suite.Equal("Build API", updated.Name)
	suite.Equal(suite.bob.ID, *updated.OwnerID)

	var owners []models.TaskOwner
	suite.Require().NoError(suite.db.Where("task_id = ?", sub.ID).Find(&owners).Error)
	suite.Require().Len(owners, 1)
	suite.Equal(suite.bob.ID, owners[0].UserID)

	logs := suite.logsFor(sub.ID)
	suite.Require().Len(logs, 2)
	suite.Equal(models.ActionUpdateSubTask, logs[1].Action)
	changes := decodeDetails(logs[1].Details)["changes"].(map[string]interface{})
	suite.Equal(map[string]interface{}{"old": "Alice", "new": "Bob"}, changes["owners"])
	suite.Equal(map[string]interface{}{"old": "Pending", "new": "In Progress"}, changes["status"])

	_, err = suite.tasks.UpdateSubTask(suite.db, suite.adminActor, sub.ID, services.SubTaskUpdate{Name: "Build API", Status: "In Progress"})
	suite.Require().NoError(err)
	logs = suite.logsFor(sub.ID)
	changes = decodeDetails(logs[2].Details)["changes"].(map[string]interface{})
	suite.Equal(map[string]interface{}{"old": "Bob", "new": "无"}, changes["owners"])

	var task models.Task
	suite.Require().NoError(suite.db.First(&task, "id = ?", sub.ID).Error)
	suite.Nil(task.OwnerID)
	suite.Nil(task.DueDate, "a full replace clears omitted dates")
}

func (suite *ServiceTestSuite) TestDeleteTask_CascadesAndKeepsHistory() {
	p := suite.createProject("Alpha", suite.alice, suite.bob)
	parent := suite.createParent(p, "Phase 1")
	sub, err := suite.tasks.CreateSubTask(suite.db, suite.adminActor, services.SubTaskInput{
		ParentID: parent.ID,
		Name:     "Build",
		Status:   "Done",
		OwnerIDs: []uuid.UUID{suite.bob.ID},
	})
	suite.Require().NoError(err)
	other := suite.createParent(p, "Phase 2")
	_, err = suite.tasks.UpdateParentTask(suite.db, suite.adminActor, other.ID, services.ParentTaskUpdate{Status: strPtr("In Progress")})
	suite.Require().NoError(err)

	suite.Require().NoError(suite.tasks.DeleteTask(suite.db, suite.adminActor, parent.ID))

	var count int64
	suite.db.Model(&models.Task{}).Where("id IN ?", []uuid.UUID{parent.ID, sub.ID}).Count(&count)
	suite.Zero(count)
	suite.db.Model(&models.TaskOwner{}).Where("task_id = ?", sub.ID).Count(&count)
	suite.Zero(count)

	// Only the unstarted in-progress task is left.
	suite.Equal(50, suite.progressOf(p.ID))

	history, err := suite.tasks.GetTaskHistory(suite.db, parent.ID)
	suite.Require().NoError(err)
	suite.Require().Len(history, 2)
	suite.Equal(models.ActionDeleteTask, history[0].Action, "newest first")
	suite.Equal(models.ActionCreateTask, history[1].Action)
	suite.Equal("Admin", history[0].UserName)

	suite.ErrorIs(suite.tasks.DeleteTask(suite.db, suite.adminActor, parent.ID), services.ErrNotFound)
}

func (suite *ServiceTestSuite) TestGetTaskHistory_Limit() {
	p := suite.createProject("Alpha", suite.alice)
	task := suite.createParent(p, "Kickoff")
	for i := 0; i < services.HistoryLimit+5; i++ {
		_, err := suite.tasks.UpdateParentTask(suite.db, suite.adminActor, task.ID, services.ParentTaskUpdate{Remark: strPtr("r")})
		suite.Require().NoError(err)
	}

	history, err := suite.tasks.GetTaskHistory(suite.db, task.ID)
	suite.Require().NoError(err)
	suite.Len(history, services.HistoryLimit)
	for _, h := range history {
		suite.Equal(models.ActionUpdateTask, h.Action)
	}
}

func (suite *ServiceTestSuite) TestActivityLog_IsAppendOnly() {
	p := suite.createProject("Alpha", suite.alice)
	task := suite.createParent(p, "Kickoff")
	log := suite.logsFor(task.ID)[0]

	suite.ErrorIs(suite.db.Model(&log).Update("action", "EDITED").Error, models.ErrActivityLogImmutable)
	suite.ErrorIs(suite.db.Delete(&log).Error, models.ErrActivityLogImmutable)
}

func strPtr(s string) *string { return &s }
