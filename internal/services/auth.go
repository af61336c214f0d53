package services

import (
	"errors"
	"strings"
	"time"

	"delivery-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService interface {
	Login(db *gorm.DB, email, password string) (*LoginResult, error)
	ResolveActor(db *gorm.DB, id uuid.UUID) (Actor, error)
}

// UserSummary is the minimal user record returned by a successful login.
type UserSummary struct {
	ID    uuid.UUID   `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

type LoginResult struct {
	User        UserSummary `json:"user"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

type AuthServiceImpl struct {
	tokens *TokenManager
}

func NewAuthService(tokens *TokenManager) *AuthServiceImpl {
	return &AuthServiceImpl{tokens: tokens}
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePassword is applied before every hash and every comparison.
func NormalizePassword(password string) string {
	return strings.TrimSpace(password)
}

func (s *AuthServiceImpl) Login(db *gorm.DB, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	password = NormalizePassword(password)
	if email == "" || password == "" {
		return nil, &LoginError{Message: msgLoginRequired}
	}

	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &LoginError{Message: msgUserNotFound}
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, &LoginError{Message: msgAccountDisabled, Disabled: true}
	}
	if !VerifyPassword(user.Password, password) {
		return nil, &LoginError{Message: msgWrongPassword}
	}

	token, expiresAt, err := s.tokens.Issue(ActorFromUser(&user))
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		User: UserSummary{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Role:  user.Role(),
		},
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// ResolveActor loads the account a token was issued for. Name and role come
// from the stored user, not the claims. A deactivated account is a
// LoginError with Disabled set.
func (s *AuthServiceImpl) ResolveActor(db *gorm.DB, id uuid.UUID) (Actor, error) {
	var user models.User
	if err := db.Select("id", "name", "title", "is_active").First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, notFound(msgUserNotFound)
		}
		return Actor{}, err
	}
	if !user.IsActive {
		return Actor{}, &LoginError{Message: msgAccountDisabled, Disabled: true}
	}
	return ActorFromUser(&user), nil
}
