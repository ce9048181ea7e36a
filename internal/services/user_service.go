package services

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/models"
	"github.com/schoolhub/social-api/internal/repository"
	"github.com/sirupsen/logrus"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// UserService encapsulates account creation, login and caller resolution.
type UserService struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// RegisterUser creates an account in the collection matching its role, after
// hashing the password.
func (s *UserService) RegisterUser(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if user.Username == "" || user.Email == "" || password == "" {
		logrus.Warn("Missing required fields during registration")
		return nil, apperrors.InvalidRequestf("missing required user fields")
	}

	if !emailRegex.MatchString(user.Email) {
		logrus.WithField("email", user.Email).Warn("Invalid email format during registration")
		return nil, apperrors.InvalidRequestf("invalid email format")
	}

	validRole := false
	for _, role := range models.AllRoles {
		if user.Role == role {
			validRole = true
			break
		}
	}
	if !validRole {
		return nil, apperrors.InvalidRequestf("unknown role %q", user.Role)
	}

	if existing, err := s.repo.FindByUsernameInRole(ctx, user.Role, user.Username); err != nil {
		return nil, err
	} else if existing != nil {
		logrus.WithField("username", user.Username).Warn("Username already in use")
		return nil, apperrors.Conflictf("username already in use")
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Error("Password hashing failed")
		return nil, fmt.Errorf("failed to hash password: %v", err)
	}
	user.HashedPassword = string(hashedPwd)

	if user.ExternalID == "" {
		// The identity provider normally supplies this; standalone
		// deployments fall back to a generated subject.
		user.ExternalID = fmt.Sprintf("%s:%s:%d", user.Role, user.Username, time.Now().UnixNano())
	}

	createdUser, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		logrus.WithError(err).Error("User registration failed")
		return nil, fmt.Errorf("failed to register user: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"userID": createdUser.ID.Hex(),
		"role":   createdUser.Role,
	}).Info("User registered successfully")

	return createdUser, nil
}

// AuthenticateUser verifies username and password across the role
// collections.
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Unauthenticatedf("invalid username or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		logrus.WithField("username", username).Warn("Failed login attempt")
		return nil, apperrors.Unauthenticatedf("invalid username or password")
	}

	return user, nil
}

// ResolveCaller maps an identity-provider subject to the internal user
// record. It is the gate every social operation passes through.
func (s *UserService) ResolveCaller(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Unauthenticatedf("unknown caller %q", externalID)
	}
	return user, nil
}

// TouchLastActive stamps the caller's last-active time; misses are ignored.
func (s *UserService) TouchLastActive(ctx context.Context, externalID string) error {
	user, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil || user == nil {
		return err
	}
	return s.repo.UpdateLastActive(ctx, user.Role, user.ID)
}
