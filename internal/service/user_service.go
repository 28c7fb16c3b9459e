package service

import (
	"context"
	"strings"
	"time"

	"carkey/internal/models"
	"carkey/internal/repository"
	"carkey/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo repository.UserRepository
	cleaner  ObjectCleaner
	now      func() time.Time
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// UpdateUserInput carries a partial update; nil fields are left alone.
type UpdateUserInput struct {
	Username *string
	Email    *string
	IsStaff  *bool
}

func NewUserService(userRepo repository.UserRepository, cleaner ObjectCleaner) *UserService {
	return &UserService{userRepo: userRepo, cleaner: cleaner, now: time.Now}
}

// HashPassword bcrypt-hashes a password with the default cost.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return string(hashed), nil
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Password == "" {
		return nil, models.NewValidationError("Username and password are required")
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	taken, err := s.userRepo.ExistsUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.NewValidationError("A user with that username already exists.")
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{Username: in.Username, Email: in.Email, Password: hashed}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials and records the login time.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	invalid := models.NewUnauthorizedError("No active account found with the given credentials")
	if username == "" || password == "" {
		return nil, invalid
	}
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, invalid
	}
	now := s.now().UTC()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetUser returns a user's details to staff or to the user themselves.
func (s *UserService) GetUser(ctx context.Context, actor Actor, id uint) (*models.User, error) {
	if err := requireSelfOrStaff(actor, id); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, id)
}

// ListUsers pages through all users for staff. Everyone else sees only themselves.
func (s *UserService) ListUsers(ctx context.Context, actor Actor, limit, offset int) ([]models.UserSimple, int64, error) {
	if !actor.IsStaff {
		user, err := s.userRepo.GetByID(ctx, actor.ID)
		if err != nil {
			return nil, 0, err
		}
		if offset > 0 {
			return []models.UserSimple{}, 1, nil
		}
		return []models.UserSimple{user.Simple()}, 1, nil
	}
	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	users, err := s.userRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.UserSimple, len(users))
	for i := range users {
		out[i] = users[i].Simple()
	}
	return out, total, nil
}

func (s *UserService) UpdateUser(ctx context.Context, actor Actor, id uint, in UpdateUserInput) (*models.User, error) {
	if err := requireSelfOrStaff(actor, id); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Username = name
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" {
			if err := validation.ValidateEmail(email); err != nil {
				return nil, models.NewValidationError(err.Error())
			}
		}
		user.Email = email
	}
	if in.IsStaff != nil {
		if !actor.IsStaff {
			return nil, models.NewForbiddenError("Only staff can change staff status")
		}
		user.IsStaff = *in.IsStaff
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a non-staff account and everything it authored.
func (s *UserService) DeleteUser(ctx context.Context, actor Actor, id uint) error {
	if err := requireSelfOrStaff(actor, id); err != nil {
		return err
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.IsStaff {
		return models.NewValidationError("Staff accounts cannot be deleted")
	}
	keys, err := s.userRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.cleaner.clean(ctx, keys)
	return nil
}

func (s *UserService) SetPassword(ctx context.Context, actor Actor, id uint, oldPassword, newPassword string) error {
	if err := requireSelfOrStaff(actor, id); err != nil {
		return err
	}
	user, err := s.userRepo.GetCredentials(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return models.NewValidationError("Old password is incorrect")
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return models.NewValidationError(err.Error())
	}
	hashed, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.userRepo.SetPassword(ctx, id, hashed)
}

// SetStaffByUsername promotes or demotes an account. Used by the admin CLI.
func (s *UserService) SetStaffByUsername(ctx context.Context, username string, staff bool) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", username)
	}
	if err := s.userRepo.SetStaff(ctx, user.ID, staff); err != nil {
		return nil, err
	}
	user.IsStaff = staff
	return user, nil
}

func (s *UserService) UsernameExists(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, models.NewValidationError("username is required")
	}
	return s.userRepo.ExistsUsername(ctx, username)
}

func (s *UserService) EmailExists(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, models.NewValidationError("email is required")
	}
	return s.userRepo.ExistsEmail(ctx, email)
}

func requireSelfOrStaff(actor Actor, id uint) error {
	if !actor.Authenticated() {
		return models.NewUnauthorizedError("Authentication required")
	}
	if !actor.IsStaff && actor.ID != id {
		return models.NewForbiddenError("You do not have permission to perform this action.")
	}
	return nil
}
