package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pharmacy/internal/apperr"
	"pharmacy/internal/checkout"
	"pharmacy/internal/models"
	"pharmacy/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = apperr.New(apperr.ErrUnauthorized, "Invalid email or password")

const resetTokenTTL = time.Hour

// Claims is the payload of a session token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

// Actor converts the claims into the acting user.
func (c *Claims) Actor() Actor {
	return Actor{ID: c.UserID, Email: c.Email, Role: c.Role}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email           string                 `json:"email" validate:"required,email,max=255"`
	Password        string                 `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string                 `json:"confirmPassword" validate:"required"`
	FirstName       string                 `json:"firstName" validate:"required,max=100"`
	LastName        string                 `json:"lastName" validate:"max=100"`
	Phone           string                 `json:"phone" validate:"omitempty,bh_phone"`
	CityID          string                 `json:"cityId"`
	Address         *checkout.AddressInput `json:"address"`
	AllergyIDs      []string               `json:"allergyIds"`
	IllnessIDs      []string               `json:"illnessIds"`
}

// AuthService handles registration, login, session tokens and password resets.
type AuthService struct {
	store         *repositories.Store
	notifications *NotificationService
	jwtSecret     []byte
	tokenTTL      time.Duration
	resetURL      string
	now           func() time.Time
}

// NewAuthService creates a new AuthService. resetURL is the page that receives ?token=.
func NewAuthService(store *repositories.Store, notifications *NotificationService, jwtSecret string, tokenTTL time.Duration, resetURL string) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		store:         store,
		notifications: notifications,
		jwtSecret:     []byte(jwtSecret),
		tokenTTL:      tokenTTL,
		resetURL:      resetURL,
		now:           utcNow,
	}
}

// TokenTTL is how long issued session tokens stay valid.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

// Register creates a customer with their address and health profile in one transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	var ve apperr.ValidationError
	if in.Password != in.ConfirmPassword {
		ve.Add("confirmPassword", "Passwords do not match")
	}
	if in.Address != nil && !in.Address.IsZero() {
		checkout.ValidateAddress(*in.Address, "address", &ve)
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        in.Phone,
		PasswordHash: string(hash),
		Role:         models.RoleCustomer,
		Active:       true,
	}

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		existing, err := tx.Users.GetByEmail(ctx, user.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflictf("email '%s' already registered", user.Email)
		}

		if in.Address != nil && !in.Address.IsZero() {
			address, err := buildAddress(ctx, tx, in.CityID, *in.Address)
			if err != nil {
				return err
			}
			if err := tx.Users.SaveAddress(ctx, address); err != nil {
				return err
			}
			user.AddressID = &address.ID
			user.Address = address
		}
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		return setHealthProfile(ctx, tx, user.ID, in.AllergyIDs, in.IllnessIDs)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login checks credentials and issues a session token. Every failure returns the
// same error so callers cannot tell which field was wrong.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.store.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", nil, err
	}
	if user == nil || !user.Active {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// IssueToken signs a session token for user.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(s.tokenTTL).Unix(),
			IssuedAt:  now.Unix(),
			Subject:   user.ID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// ValidateToken parses and validates a session token.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, apperr.New(apperr.ErrUnauthorized, "invalid token: "+err.Error())
	}
	if !token.Valid || claims.UserID == "" {
		return nil, apperr.New(apperr.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

// CurrentUser loads the user behind a session, rejecting deactivated accounts.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.New(apperr.ErrUnauthorized, "session user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, apperr.New(apperr.ErrUnauthorized, "account is disabled")
	}
	return user, nil
}

// RequestPasswordReset emails a reset link when email belongs to an account.
// It succeeds either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	if user == nil || !user.Active {
		slog.InfoContext(ctx, "password reset requested for unknown email")
		return nil
	}

	raw := uuid.NewString() + uuid.NewString()
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		token := &models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: hashToken(raw),
			ExpiresAt: s.now().Add(resetTokenTTL),
		}
		if err := tx.PasswordResets.Create(ctx, token); err != nil {
			return err
		}
		return s.notifications.Enqueue(ctx, tx, passwordResetEmail(user, s.resetURL+"?token="+raw))
	})
}

// ResetPassword sets a new password using a reset token. Each token works once.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, password, confirm string) error {
	if password != confirm {
		return apperr.Invalid("confirmPassword", "Passwords do not match")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		now := s.now()
		token, err := tx.PasswordResets.FindValid(ctx, hashToken(rawToken), now)
		if err != nil {
			return err
		}
		if token == nil {
			return apperr.Invalid("token", "Reset link is invalid or has expired")
		}
		used, err := tx.PasswordResets.MarkUsed(ctx, token.ID, now)
		if err != nil {
			return err
		}
		if !used {
			return apperr.Invalid("token", "Reset link is invalid or has expired")
		}
		return tx.Users.UpdatePassword(ctx, token.UserID, string(hash))
	})
}

// ChangePassword replaces the password of a signed-in user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, password, confirm string) error {
	if password != confirm {
		return apperr.Invalid("confirmPassword", "Passwords do not match")
	}
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return apperr.Invalid("currentPassword", "Current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.store.Users.UpdatePassword(ctx, userID, string(hash))
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// buildAddress validates cityID, when given, and returns an unsaved address.
func buildAddress(ctx context.Context, tx *repositories.Store, cityID string, in checkout.AddressInput) (*models.Address, error) {
	address := &models.Address{
		City:     strings.TrimSpace(in.City),
		Block:    in.Block,
		Road:     in.Road,
		Building: in.Building,
	}
	if cityID != "" {
		city, err := tx.Cities.GetByID(ctx, cityID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Invalid("cityId", "Unknown city")
		}
		if err != nil {
			return nil, err
		}
		address.CityID = &city.ID
		address.City = city.Name
	}
	return address, nil
}

// setHealthProfile replaces the user's allergies and illnesses after checking the IDs exist.
func setHealthProfile(ctx context.Context, tx *repositories.Store, userID string, allergyIDs, illnessIDs []string) error {
	for _, id := range allergyIDs {
		if _, err := tx.Allergies.GetByID(ctx, id); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Invalid("allergyIds", "Unknown allergy "+id)
			}
			return err
		}
	}
	for _, id := range illnessIDs {
		if _, err := tx.Illnesses.GetByID(ctx, id); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Invalid("illnessIds", "Unknown illness "+id)
			}
			return err
		}
	}
	if err := tx.Health.SetUserAllergies(ctx, userID, allergyIDs); err != nil {
		return err
	}
	return tx.Health.SetUserIllnesses(ctx, userID, illnessIDs)
}
