package services

import (
	"delivery-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
)

// Actor is the authenticated user a mutation is performed for. It is
// written into the activity log.
type Actor struct {
	ID   uuid.UUID   `json:"id"`
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role()}
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}
