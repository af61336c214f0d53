package services_test

import (
	"testing"
	"time"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/services"
	"delivery-tracker/backend/internal/testutil"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Wednesday.
var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func daysFromNow(n int) *time.Time {
	t := testNow.AddDate(0, 0, n)
	return &t
}

const testPassword = "secret123"

// ServiceTestSuite gives every test a fresh database with an admin and two
// engineers.
type ServiceTestSuite struct {
	suite.Suite
	db *gorm.DB

	members  *services.MemberServiceImpl
	projects *services.ProjectServiceImpl
	tasks    *services.TaskServiceImpl

	admin, alice, bob *models.User
	adminActor        services.Actor
}

func (suite *ServiceTestSuite) SetupTest() {
	suite.db = testutil.NewDB(suite.T())

	suite.members = services.NewMemberService(bcrypt.MinCost)
	suite.projects = services.NewProjectService(time.UTC)
	suite.tasks = services.NewTaskService()
	suite.tasks.Now = func() time.Time { return testNow }

	suite.admin = suite.createUser("Admin", "admin@example.com", models.TitleAdmin)
	suite.alice = suite.createUser("Alice", "alice@example.com", "Engineer")
	suite.bob = suite.createUser("Bob", "bob@example.com", "Engineer")
	suite.adminActor = services.ActorFromUser(suite.admin)
}

func (suite *ServiceTestSuite) createUser(name, email, title string) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	suite.Require().NoError(err)

	u := &models.User{Name: name, Email: email, Password: string(hash), Title: title, IsActive: true}
	suite.Require().NoError(suite.db.Create(u).Error)
	// Distinct creation times keep successor order deterministic.
	time.Sleep(time.Millisecond)
	return u
}

func (suite *ServiceTestSuite) createProject(name string, pm *models.User, members ...*models.User) *models.Project {
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	p, err := suite.projects.CreateProject(suite.db, services.ProjectInput{
		Name:      name,
		PMID:      pm.ID,
		MemberIDs: ids,
		Budget:    120000,
	})
	suite.Require().NoError(err)
	return p
}

// insertTask writes a task row directly, bypassing validation and logging.
func (suite *ServiceTestSuite) insertTask(t models.Task) *models.Task {
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	suite.Require().NoError(suite.db.Create(&t).Error)
	return &t
}

func (suite *ServiceTestSuite) progressOf(projectID uuid.UUID) int {
	var p models.Project
	suite.Require().NoError(suite.db.Unscoped().First(&p, "id = ?", projectID).Error)
	return p.Progress
}

func (suite *ServiceTestSuite) validationMessage(err error) string {
	var ve *services.ValidationError
	suite.Require().ErrorAs(err, &ve)
	return ve.Message
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
