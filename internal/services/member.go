package services

import (
	"errors"
	"fmt"
	"strings"

	"delivery-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const MinPasswordLength = 6

type MemberService interface {
	ListActiveUsers(db *gorm.DB) ([]UserOption, error)
	ListMembers(db *gorm.DB) ([]MemberView, error)
	GetMemberWithProjects(db *gorm.DB, id uuid.UUID) (*MemberView, error)
	CreateMember(db *gorm.DB, in CreateMemberInput) (*models.User, error)
	UpdateMember(db *gorm.DB, id uuid.UUID, in UpdateMemberInput) (*models.User, error)
	DeleteMember(db *gorm.DB, id uuid.UUID) error
	ChangePassword(db *gorm.DB, actor Actor, userID uuid.UUID, newPassword string) error
	OnChange(l ChangeListener)
}

// UserOption is an entry of the user pickers.
type UserOption struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Title string    `json:"title"`
}

type ProjectRef struct {
	ID   uuid.UUID         `json:"id"`
	Name string            `json:"name"`
	Role models.MemberRole `json:"role,omitempty"`
}

type MemberView struct {
	ID       uuid.UUID    `json:"id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Title    string       `json:"title"`
	Role     models.Role  `json:"role"`
	IsActive bool         `json:"is_active"`
	Projects []ProjectRef `json:"projects"`
}

type CreateMemberInput struct {
	Name       string
	Email      string
	Password   string
	Role       models.Role
	ProjectIDs []uuid.UUID
}

// UpdateMemberInput leaves empty strings and nil pointers unchanged. A
// non-nil ProjectIDs replaces every membership of the user.
type UpdateMemberInput struct {
	Name       string
	Email      string
	Password   string
	Role       models.Role
	IsActive   *bool
	ProjectIDs *[]uuid.UUID
}

type MemberServiceImpl struct {
	changeNotifier
	bcryptCost int
}

func NewMemberService(bcryptCost int) *MemberServiceImpl {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &MemberServiceImpl{bcryptCost: bcryptCost}
}

func (s *MemberServiceImpl) ListActiveUsers(db *gorm.DB) ([]UserOption, error) {
	var users []models.User
	if err := db.Where("is_active = ?", true).Order("name ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]UserOption, 0, len(users))
	for _, u := range users {
		out = append(out, UserOption{ID: u.ID, Name: u.Name, Email: u.Email, Title: u.Title})
	}
	return out, nil
}

func (s *MemberServiceImpl) ListMembers(db *gorm.DB) ([]MemberView, error) {
	var users []models.User
	err := db.Preload("Memberships.Project").Order("name ASC").Find(&users).Error
	if err != nil {
		return nil, err
	}
	out := make([]MemberView, 0, len(users))
	for i := range users {
		out = append(out, memberView(&users[i]))
	}
	return out, nil
}

func (s *MemberServiceImpl) GetMemberWithProjects(db *gorm.DB, id uuid.UUID) (*MemberView, error) {
	if id == uuid.Nil {
		return nil, invalid(msgUserIDRequired)
	}
	var user models.User
	if err := db.Preload("Memberships.Project").First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(msgUserNotFound)
		}
		return nil, err
	}
	view := memberView(&user)
	return &view, nil
}

// memberView drops memberships of soft-deleted projects; their Project
// association does not load.
func memberView(u *models.User) MemberView {
	projects := make([]ProjectRef, 0, len(u.Memberships))
	for _, m := range u.Memberships {
		if m.Project == nil {
			continue
		}
		projects = append(projects, ProjectRef{ID: m.Project.ID, Name: m.Project.Name, Role: m.Role})
	}
	return MemberView{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Title:    u.Title,
		Role:     u.Role(),
		IsActive: u.IsActive,
		Projects: projects,
	}
}

func (s *MemberServiceImpl) CreateMember(db *gorm.DB, in CreateMemberInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	password := NormalizePassword(in.Password)
	if name == "" || email == "" || password == "" {
		return nil, invalid(msgMemberRequired)
	}
	if len([]rune(password)) < MinPasswordLength {
		return nil, invalid(msgPasswordTooShort)
	}
	role, err := parseRole(in.Role)
	if err != nil {
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: hash,
		Title:    models.TitleFor(role),
		IsActive: true,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := ensureEmailFree(tx, email, uuid.Nil); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return replaceMemberships(tx, user.ID, in.ProjectIDs)
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Entity: EntityMember})
	return user, nil
}

func (s *MemberServiceImpl) UpdateMember(db *gorm.DB, id uuid.UUID, in UpdateMemberInput) (*models.User, error) {
	if id == uuid.Nil {
		return nil, invalid(msgUserIDRequired)
	}
	password := NormalizePassword(in.Password)
	if password != "" && len([]rune(password)) < MinPasswordLength {
		return nil, invalid(msgPasswordTooShort)
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(in.Name); name != "" {
		updates["name"] = name
	}
	if in.Role != "" {
		role, err := parseRole(in.Role)
		if err != nil {
			return nil, err
		}
		updates["title"] = models.TitleFor(role)
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if password != "" {
		hash, err := s.hash(password)
		if err != nil {
			return nil, err
		}
		updates["password"] = hash
	}
	email := NormalizeEmail(in.Email)

	var user models.User
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(msgUserNotFound)
			}
			return err
		}
		if email != "" && email != user.Email {
			if err := ensureEmailFree(tx, email, id); err != nil {
				return err
			}
			updates["email"] = email
		}
		if len(updates) > 0 {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return fmt.Errorf("update user: %w", err)
			}
		}
		if in.ProjectIDs != nil {
			return replaceMemberships(tx, id, *in.ProjectIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Change{Entity: EntityMember})
	return &user, nil
}

// DeleteMember hands the user's projects to another active user, admins
// first, then removes every reference to the user and the user itself.
func (s *MemberServiceImpl) DeleteMember(db *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return invalid(msgUserIDRequired)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(msgUserNotFound)
			}
			return err
		}

		var managed []models.Project
		if err := tx.Unscoped().Where("pm_id = ?", id).Find(&managed).Error; err != nil {
			return err
		}
		if len(managed) > 0 {
			successor, err := findSuccessor(tx, id)
			if err != nil {
				return err
			}
			for _, p := range managed {
				if err := tx.Unscoped().Model(&models.Project{}).Where("id = ?", p.ID).
					Update("pm_id", successor.ID).Error; err != nil {
					return fmt.Errorf("reassign project %s: %w", p.ID, err)
				}
				if err := ensureManager(tx, p.ID, successor.ID); err != nil {
					return err
				}
			}
		}

		if err := tx.Where("user_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.TaskOwner{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Task{}).Where("owner_id = ?", id).Update("owner_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		return err
	}

	s.notify(Change{Entity: EntityMember})
	return nil
}

func (s *MemberServiceImpl) ChangePassword(db *gorm.DB, actor Actor, userID uuid.UUID, newPassword string) error {
	newPassword = NormalizePassword(newPassword)
	if userID == uuid.Nil || newPassword == "" {
		return invalid(msgPasswordRequired)
	}
	if len([]rune(newPassword)) < MinPasswordLength {
		return invalid(msgPasswordTooShort)
	}
	if actor.ID != userID && !actor.IsAdmin() {
		return ErrForbidden
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	res := db.Model(&models.User{}).Where("id = ?", userID).Update("password", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(msgUserNotFound)
	}
	return nil
}

func (s *MemberServiceImpl) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func parseRole(r models.Role) (models.Role, error) {
	switch r {
	case "", models.RoleNormal:
		return models.RoleNormal, nil
	case models.RoleAdmin:
		return models.RoleAdmin, nil
	default:
		return "", invalid(msgInvalidRole)
	}
}

func ensureEmailFree(tx *gorm.DB, email string, except uuid.UUID) error {
	var count int64
	q := tx.Model(&models.User{}).Where("email = ?", email)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return invalid(msgEmailTaken)
	}
	return nil
}

func findSuccessor(tx *gorm.DB, leaving uuid.UUID) (*models.User, error) {
	var successor models.User
	err := tx.Where("id <> ? AND is_active = ? AND title = ?", leaving, true, models.TitleAdmin).
		Order("created_at ASC").First(&successor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = tx.Where("id <> ? AND is_active = ?", leaving, true).
			Order("created_at ASC").First(&successor).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSuccessor
	}
	if err != nil {
		return nil, err
	}
	return &successor, nil
}

// replaceMemberships makes projectIDs the user's exact set of live project
// memberships. Kept rows keep their role; new rows are Manager only when
// the user is that project's PM.
func replaceMemberships(tx *gorm.DB, userID uuid.UUID, projectIDs []uuid.UUID) error {
	ids := uniqueIDs(projectIDs)

	var projects []models.Project
	if len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Find(&projects).Error; err != nil {
			return err
		}
		if len(projects) != len(ids) {
			return invalid(msgMembershipProjectNF)
		}
	}

	del := tx.Where("user_id = ?", userID)
	if len(ids) > 0 {
		del = del.Where("project_id NOT IN ?", ids)
	}
	if err := del.Delete(&models.ProjectMember{}).Error; err != nil {
		return err
	}

	var existing []models.ProjectMember
	if err := tx.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
		return err
	}
	have := make(map[uuid.UUID]bool, len(existing))
	for _, m := range existing {
		have[m.ProjectID] = true
	}

	for _, p := range projects {
		if have[p.ID] {
			continue
		}
		role := models.MemberRoleMember
		if p.PMID == userID {
			role = models.MemberRoleManager
		}
		if err := tx.Create(&models.ProjectMember{ProjectID: p.ID, UserID: userID, Role: role}).Error; err != nil {
			return fmt.Errorf("add membership: %w", err)
		}
	}
	return nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
