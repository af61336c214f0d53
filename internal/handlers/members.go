package handlers

import (
	"net/http"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type MemberHandler struct {
	db      *gorm.DB
	members services.MemberService
}

func NewMemberHandler(db *gorm.DB, members services.MemberService) *MemberHandler {
	return &MemberHandler{db: db, members: members}
}

type createMemberRequest struct {
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Password   string      `json:"password"`
	Role       models.Role `json:"role"`
	ProjectIDs []string    `json:"project_ids"`
}

type updateMemberRequest struct {
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Password   string      `json:"password"`
	Role       models.Role `json:"role"`
	IsActive   *bool       `json:"is_active"`
	ProjectIDs *[]string   `json:"project_ids"`
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

func (h *MemberHandler) ListActiveUsers(c *gin.Context) {
	users, err := h.members.ListActiveUsers(h.db.WithContext(c.Request.Context()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *MemberHandler) ListMembers(c *gin.Context) {
	members, err := h.members.ListMembers(h.db.WithContext(c.Request.Context()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *MemberHandler) GetMember(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	member, err := h.members.GetMemberWithProjects(h.db.WithContext(c.Request.Context()), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *MemberHandler) CreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	projectIDs, err := parseIDs(req.ProjectIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	user, err := h.members.CreateMember(h.db.WithContext(c.Request.Context()), services.CreateMemberInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Role:       req.Role,
		ProjectIDs: projectIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *MemberHandler) UpdateMember(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := services.UpdateMemberInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		IsActive: req.IsActive,
	}
	if req.ProjectIDs != nil {
		ids, err := parseIDs(*req.ProjectIDs)
		if err != nil {
			respondError(c, err)
			return
		}
		in.ProjectIDs = &ids
	}

	user, err := h.members.UpdateMember(h.db.WithContext(c.Request.Context()), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *MemberHandler) DeleteMember(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.members.DeleteMember(h.db.WithContext(c.Request.Context()), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangePassword is open to the user themself and to admins.
func (h *MemberHandler) ChangePassword(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.members.ChangePassword(h.db.WithContext(c.Request.Context()), actor, id, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated successfully"})
}
