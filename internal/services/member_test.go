package services_test

import (
	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/services"

	"github.com/gofrs/uuid"
)

func (suite *ServiceTestSuite) TestCreateMember() {
	p := suite.createProject("Alpha", suite.alice)

	user, err := suite.members.CreateMember(suite.db, services.CreateMemberInput{
		Name:       "  Carol ",
		Email:      " Carol@Example.com ",
		Password:   "hunter22",
		ProjectIDs: []uuid.UUID{p.ID, p.ID},
	})
	suite.Require().NoError(err)
	suite.Equal("Carol", user.Name)
	suite.Equal("carol@example.com", user.Email)
	suite.NotEqual("hunter22", user.Password)
	suite.True(services.VerifyPassword(user.Password, "hunter22"))

	view, err := suite.members.GetMemberWithProjects(suite.db, user.ID)
	suite.Require().NoError(err)
	suite.Equal(models.RoleNormal, view.Role)
	suite.Require().Len(view.Projects, 1)
	suite.Equal(models.MemberRoleMember, view.Projects[0].Role)
}

func (suite *ServiceTestSuite) TestCreateMember_Validation() {
	cases := []struct {
		in   services.CreateMemberInput
		want string
	}{
		{services.CreateMemberInput{Email: "x@example.com", Password: "123456"}, "姓名、邮箱和密码是必填项"},
		{services.CreateMemberInput{Name: "X", Email: "x@example.com", Password: "12345"}, "密码长度至少为6位"},
		{services.CreateMemberInput{Name: "X", Email: "ALICE@example.com", Password: "123456"}, "该邮箱已被注册"},
		{services.CreateMemberInput{Name: "X", Email: "x@example.com", Password: "123456", Role: "Owner"}, "角色无效"},
	}
	for _, tc := range cases {
		_, err := suite.members.CreateMember(suite.db, tc.in)
		suite.Equal(tc.want, suite.validationMessage(err))
	}
}

func (suite *ServiceTestSuite) TestUpdateMember_ReplacesMemberships() {
	alpha := suite.createProject("Alpha", suite.alice, suite.bob)
	beta := suite.createProject("Beta", suite.bob)
	gamma := suite.createProject("Gamma", suite.alice)

	ids := []uuid.UUID{beta.ID, gamma.ID}
	active := false
	_, err := suite.members.UpdateMember(suite.db, suite.bob.ID, services.UpdateMemberInput{
		Role:       models.RoleAdmin,
		IsActive:   &active,
		ProjectIDs: &ids,
	})
	suite.Require().NoError(err)

	view, err := suite.members.GetMemberWithProjects(suite.db, suite.bob.ID)
	suite.Require().NoError(err)
	suite.Equal(models.RoleAdmin, view.Role)
	suite.False(view.IsActive)

	roles := map[uuid.UUID]models.MemberRole{}
	for _, p := range view.Projects {
		roles[p.ID] = p.Role
	}
	suite.NotContains(roles, alpha.ID)
	suite.Equal(models.MemberRoleManager, roles[beta.ID], "kept membership keeps its role")
	suite.Equal(models.MemberRoleMember, roles[gamma.ID])
}

func (suite *ServiceTestSuite) TestUpdateMember_UnknownProjectRollsBack() {
	alpha := suite.createProject("Alpha", suite.alice, suite.bob)

	ids := []uuid.UUID{uuid.Must(uuid.NewV4())}
	_, err := suite.members.UpdateMember(suite.db, suite.bob.ID, services.UpdateMemberInput{Name: "Robert", ProjectIDs: &ids})
	suite.Equal("所选项目不存在", suite.validationMessage(err))

	view, err := suite.members.GetMemberWithProjects(suite.db, suite.bob.ID)
	suite.Require().NoError(err)
	suite.Equal("Bob", view.Name)
	suite.Require().Len(view.Projects, 1)
	suite.Equal(alpha.ID, view.Projects[0].ID)
}

func (suite *ServiceTestSuite) TestDeleteMember_HandsProjectsToAdmin() {
	alpha := suite.createProject("Alpha", suite.alice, suite.bob)
	beta := suite.createProject("Beta", suite.alice)
	sub := suite.insertTask(models.Task{Name: "Build", ProjectID: alpha.ID, OwnerID: &suite.alice.ID})
	suite.Require().NoError(suite.db.Create(&models.TaskOwner{TaskID: sub.ID, UserID: suite.alice.ID}).Error)

	var changes []services.Change
	suite.members.OnChange(func(c services.Change) { changes = append(changes, c) })

	suite.Require().NoError(suite.members.DeleteMember(suite.db, suite.alice.ID))

	for _, id := range []uuid.UUID{alpha.ID, beta.ID} {
		var p models.Project
		suite.Require().NoError(suite.db.First(&p, "id = ?", id).Error)
		suite.Equal(suite.admin.ID, p.PMID)

		var m models.ProjectMember
		suite.Require().NoError(suite.db.Where("project_id = ? AND user_id = ?", id, suite.admin.ID).First(&m).Error)
		suite.Equal(models.MemberRoleManager, m.Role)
	}

	var count int64
	suite.db.Model(&models.User{}).Where("id = ?", suite.alice.ID).Count(&count)
	suite.Zero(count)
	suite.db.Model(&models.TaskOwner{}).Where("user_id = ?", suite.alice.ID).Count(&count)
	suite.Zero(count)
	suite.db.Model(&models.ProjectMember{}).Where("user_id = ?", suite.alice.ID).Count(&count)
	suite.Zero(count)

	var task models.Task
	suite.Require().NoError(suite.db.First(&task, "id = ?", sub.ID).Error)
	suite.Nil(task.OwnerID)

	suite.Equal([]services.Change{{Entity: services.EntityMember}}, changes)
}

func (suite *ServiceTestSuite) TestDeleteMember_FallsBackToActiveUser() {
	suite.Require().NoError(suite.db.Model(suite.admin).Update("is_active", false).Error)
	alpha := suite.createProject("Alpha", suite.alice)

	suite.Require().NoError(suite.members.DeleteMember(suite.db, suite.alice.ID))

	var p models.Project
	suite.Require().NoError(suite.db.First(&p, "id = ?", alpha.ID).Error)
	suite.Equal(suite.bob.ID, p.PMID)
}

func (suite *ServiceTestSuite) TestDeleteMember_NoSuccessor() {
	suite.db.Model(&models.User{}).Where("id <> ?", suite.alice.ID).Update("is_active", false)
	suite.createProject("Alpha", suite.alice)

	err := suite.members.DeleteMember(suite.db, suite.alice.ID)
	suite.ErrorIs(err, services.ErrNoSuccessor)
	suite.Equal("无法删除：该用户是项目经理，且系统中没有其他可接管的用户", err.Error())

	var count int64
	suite.db.Model(&models.User{}).Where("id = ?", suite.alice.ID).Count(&count)
	suite.EqualValues(1, count)
}

func (suite *ServiceTestSuite) TestDeleteMember_NotFound() {
	err := suite.members.DeleteMember(suite.db, uuid.Must(uuid.NewV4()))
	suite.ErrorIs(err, services.ErrNotFound)
	suite.Equal("用户不存在", err.Error())
}

func (suite *ServiceTestSuite) TestChangePassword() {
	alice := services.ActorFromUser(suite.alice)

	suite.ErrorIs(suite.members.ChangePassword(suite.db, alice, suite.bob.ID, "newpass1"), services.ErrForbidden)
	suite.NoError(suite.members.ChangePassword(suite.db, alice, suite.alice.ID, "newpass1"))
	suite.NoError(suite.members.ChangePassword(suite.db, suite.adminActor, suite.bob.ID, "newpass2"))
	suite.Equal("密码长度至少为6位", suite.validationMessage(suite.members.ChangePassword(suite.db, alice, suite.alice.ID, "short")))

	var bob models.User
	suite.Require().NoError(suite.db.First(&bob, "id = ?", suite.bob.ID).Error)
	suite.True(services.VerifyPassword(bob.Password, "newpass2"))
}

func (suite *ServiceTestSuite) TestListActiveUsers() {
	suite.Require().NoError(suite.db.Model(suite.bob).Update("is_active", false).Error)

	users, err := suite.members.ListActiveUsers(suite.db)
	suite.Require().NoError(err)
	suite.Require().Len(users, 2)
	suite.Equal("Admin", users[0].Name)
	suite.Equal("Alice", users[1].Name)
}

func (suite *ServiceTestSuite) TestListMembers_HidesDeletedProjects() {
	alpha := suite.createProject("Alpha", suite.alice, suite.bob)
	suite.createProject("Beta", suite.bob)
	suite.Require().NoError(suite.projects.DeleteProject(suite.db, alpha.ID))

	members, err := suite.members.ListMembers(suite.db)
	suite.Require().NoError(err)
	for _, m := range members {
		if m.ID == suite.bob.ID {
			suite.Require().Len(m.Projects, 1)
			suite.Equal("Beta", m.Projects[0].Name)
		}
	}
}
