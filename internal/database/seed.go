package database

import (
	"errors"
	"fmt"
	"time"

	"delivery-tracker/backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedPassword is the login password of every demo account.
const SeedPassword = "password123"

type seedUser struct {
	key, name, email, title string
}

var seedUsers = []seedUser{
	{"admin", "管理员用户", "admin@pepsico.com", models.TitleAdmin},
	{"sarah", "Sarah Connor", "sarah.c@pepsico.com", "Project Manager"},
	{"mike", "Mike Ross", "mike.r@pepsico.com", "Engineer"},
	{"john", "John Smith", "john.s@pepsico.com", "Engineer"},
}

// SeedResult counts what Seed left in the database.
type SeedResult struct {
	Users, Projects, Tasks, Members int64
}

// Seed loads the demo accounts, three projects and a small WBS. Accounts are
// upserted by email so rerunning resets their passwords; projects are only
// created when no project with the same name exists.
func Seed(db *gorm.DB, now time.Time) (*SeedResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		users := make(map[string]*models.User, len(seedUsers))
		for _, su := range seedUsers {
			u, err := upsertUser(tx, su, string(hash))
			if err != nil {
				return err
			}
			users[su.key] = u
		}

		p1, created, err := ensureProject(tx, &models.Project{
			Name:        "21V 核心迁移 Alpha",
			Description: "企业核心系统迁移至云端",
			Budget:      1200000,
			Status:      models.StatusInProgress,
			PMID:        users["sarah"].ID,
		}, users["sarah"], users["mike"], users["john"])
		if err != nil {
			return err
		}
		if created {
			if err := seedCoreTasks(tx, p1, users, now); err != nil {
				return err
			}
		}

		if _, _, err := ensureProject(tx, &models.Project{
			Name:        "SAP 集成二期",
			Description: "SAP ERP 系统集成第二阶段",
			Budget:      850000,
			Status:      models.StatusPending,
			PMID:        users["john"].ID,
		}, users["john"]); err != nil {
			return err
		}

		p3, created, err := ensureProject(tx, &models.Project{
			Name:        "云安全审计",
			Description: "全面的云基础设施安全审计",
			ProjectType: models.ProjectTypeSupport,
			Budget:      320000,
			Status:      models.StatusUAT,
			PMID:        users["mike"].ID,
		}, users["mike"], users["john"])
		if err != nil {
			return err
		}
		if created {
			return createTasks(tx, &models.Task{
				Name: "用户验收签字", Status: models.StatusUAT, Priority: models.PriorityHigh,
				DueDate: date(now.AddDate(0, 0, 4)), ProjectID: p3.ID, OwnerID: &users["john"].ID, Order: 1,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &SeedResult{}
	db.Model(&models.User{}).Count(&res.Users)
	db.Model(&models.Project{}).Count(&res.Projects)
	db.Model(&models.Task{}).Count(&res.Tasks)
	db.Model(&models.ProjectMember{}).Count(&res.Members)
	return res, nil
}

func upsertUser(tx *gorm.DB, su seedUser, hash string) (*models.User, error) {
	var u models.User
	err := tx.Where("email = ?", su.email).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = models.User{Name: su.name, Email: su.email, Password: hash, Title: su.title, IsActive: true}
		if err := tx.Create(&u).Error; err != nil {
			return nil, fmt.Errorf("create user %s: %w", su.email, err)
		}
	case err != nil:
		return nil, err
	default:
		if err := tx.Model(&u).Updates(map[string]interface{}{"password": hash, "is_active": true}).Error; err != nil {
			return nil, fmt.Errorf("reset user %s: %w", su.email, err)
		}
	}
	return &u, nil
}

// ensureProject creates p with members unless a project of that name exists.
// The first member must be the PM.
func ensureProject(tx *gorm.DB, p *models.Project, members ...*models.User) (*models.Project, bool, error) {
	var existing models.Project
	err := tx.Where("name = ?", p.Name).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if p.ProjectType == "" {
		p.ProjectType = models.ProjectTypeChangeRequirement
	}
	p.Currency = "USD"
	if err := tx.Create(p).Error; err != nil {
		return nil, false, fmt.Errorf("create project %s: %w", p.Name, err)
	}
	for _, u := range members {
		role := models.MemberRoleMember
		if u.ID == p.PMID {
			role = models.MemberRoleManager
		}
		if err := tx.Create(&models.ProjectMember{ProjectID: p.ID, UserID: u.ID, Role: role}).Error; err != nil {
			return nil, false, err
		}
	}
	return p, true, nil
}

func seedCoreTasks(tx *gorm.DB, p *models.Project, users map[string]*models.User, now time.Time) error {
	mike, sarah, john := &users["mike"].ID, &users["sarah"].ID, &users["john"].ID

	infra := &models.Task{
		Name: "基础设施搭建", Status: models.StatusDone, Priority: models.PriorityHigh,
		DueDate: fixed(2026, 2, 10), ProjectID: p.ID, OwnerID: mike, Order: 1,
	}
	auth := &models.Task{
		Name: "认证模块", Status: models.StatusInProgress, Priority: models.PriorityHigh,
		DueDate: fixed(2026, 2, 15), ProjectID: p.ID, OwnerID: sarah, Order: 2,
	}
	if err := createTasks(tx, infra, auth); err != nil {
		return err
	}

	return createTasks(tx,
		&models.Task{Name: "AWS VPC 配置", Status: models.StatusDone, Priority: models.PriorityHigh,
			DueDate: fixed(2026, 1, 15), ProjectID: p.ID, ParentID: &infra.ID, OwnerID: mike, Order: 1,
			DevManDays: 3, TestManDays: 1},
		&models.Task{Name: "负载均衡设置", Status: models.StatusDone, Priority: models.PriorityMedium,
			DueDate: fixed(2026, 1, 20), ProjectID: p.ID, ParentID: &infra.ID, OwnerID: mike, Order: 2,
			DevManDays: 2, TestManDays: 1},
		&models.Task{Name: "登录界面开发", Status: models.StatusInProgress, Priority: models.PriorityHigh,
			StartDate: fixed(2026, 1, 25), DueDate: fixed(2026, 2, 5), ProjectID: p.ID, ParentID: &auth.ID,
			OwnerID: sarah, Order: 1, DevManDays: 5, TestManDays: 2},
		&models.Task{Name: "OAuth 集成", Status: models.StatusPending, Priority: models.PriorityMedium,
			DueDate: fixed(2026, 2, 12), ProjectID: p.ID, ParentID: &auth.ID, OwnerID: john, Order: 2,
			DevManDays: 4, TestManDays: 2},
		&models.Task{Name: "报表仪表盘", Status: models.StatusPending, Priority: models.PriorityMedium,
			DueDate: fixed(2026, 3, 1), ProjectID: p.ID, OwnerID: john, Order: 3},
		&models.Task{Name: "数据库架构定稿", Status: models.StatusPending, Priority: models.PriorityCritical,
			DueDate: date(now.AddDate(0, 0, 2)), ProjectID: p.ID, OwnerID: sarah, Order: 4},
		&models.Task{Name: "防火墙规则更新", Status: models.StatusPending, Priority: models.PriorityCritical,
			DueDate: date(now.AddDate(0, 0, 1)), ProjectID: p.ID, OwnerID: mike, Order: 5},
	)
}

// createTasks inserts tasks and mirrors the legacy owner into task_owners.
func createTasks(tx *gorm.DB, tasks ...*models.Task) error {
	for _, t := range tasks {
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create task %s: %w", t.Name, err)
		}
		if t.OwnerID != nil {
			if err := tx.Create(&models.TaskOwner{TaskID: t.ID, UserID: *t.OwnerID}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func fixed(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func date(t time.Time) *time.Time {
	y, m, d := t.Date()
	return fixed(y, m, d)
}
