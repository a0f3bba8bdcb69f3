package services

import (
	"context"
	"strings"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/pkg/utils"
	"github.com/jackc/pgerrcode"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const usersPerPage = 10

type RegisterInput struct {
	FullName             string `json:"full_name" form:"full_name"`
	Email                string `json:"email" form:"email"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
}

// UserInput is the admin-side payload for creating or editing an account.
// An empty Password on update keeps the current one.
type UserInput struct {
	FullName             string      `json:"full_name" form:"full_name" validate:"required,max=100"`
	Email                string      `json:"email" form:"email" validate:"required,max=100,email"`
	PhoneNumber          string      `json:"phone_number" form:"phone_number" validate:"max=20"`
	Address              string      `json:"address" form:"address"`
	Role                 models.Role `json:"role" form:"role" validate:"required,oneof=renter cashier owner admin"`
	Password             string      `json:"password" form:"password" validate:"omitempty,min=8"`
	PasswordConfirmation string      `json:"password_confirmation" form:"password_confirmation" validate:"eqfield=Password"`
}

// Session is an issued token and the user it belongs to.
type Session struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// AccountService manages users and issues their session tokens.
type AccountService struct {
	db     *gorm.DB
	tokens *utils.TokenManager
	log    *zap.Logger
}

func NewAccountService(db *gorm.DB, tokens *utils.TokenManager, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{db: db, tokens: tokens, log: log}
}

func (in *UserInput) check(passwordRequired bool) error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	v := validation{}
	if err := checkStruct(v, in); err != nil {
		return err
	}
	if passwordRequired && in.Password == "" {
		v.add("password", "the password field is required")
	}
	return v.err()
}

func (s *AccountService) emailTaken(ctx context.Context, email string, exceptID uint) (bool, error) {
	var n int64
	q := s.db.WithContext(ctx).Unscoped().Model(&models.User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, errors.Annotate(err, "checking email")
	}
	return n > 0, nil
}

func (s *AccountService) issue(user *models.User) (*Session, error) {
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, errors.Annotate(err, "issuing token")
	}
	return &Session{User: user, Token: token}, nil
}

// Reissue signs a fresh token for user, e.g. after its session rotated.
func (s *AccountService) Reissue(user *models.User) (*Session, error) {
	return s.issue(user)
}

func (s *AccountService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// Register creates a renter account and signs it in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	user, err := s.create(ctx, UserInput{
		FullName:             in.FullName,
		Email:                in.Email,
		Role:                 models.RoleRenter,
		Password:             in.Password,
		PasswordConfirmation: in.PasswordConfirmation,
	})
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Create is the admin variant of Register; any role may be assigned.
func (s *AccountService) Create(ctx context.Context, in UserInput) (*models.User, error) {
	return s.create(ctx, in)
}

func (s *AccountService) create(ctx context.Context, in UserInput) (*models.User, error) {
	if err := in.check(true); err != nil {
		return nil, err
	}

	taken, err := s.emailTaken(ctx, in.Email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, invalidField("email", "the email has already been taken")
	}

	user := models.User{
		FullName:    in.FullName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Address:     in.Address,
		Role:        in.Role,
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, errors.Annotate(err, "hashing password")
	}
	if user.RememberToken, err = utils.RandomToken(rememberTokenLen); err != nil {
		return nil, errors.Annotate(err, "generating remember token")
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return nil, invalidField("email", "the email has already been taken")
		}
		return nil, errors.Annotate(err, "creating user")
	}
	return &user, nil
}

// Login checks the credentials and issues a new token.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	v := validation{}
	if err := checkVar(v, "email", email, "required"); err != nil {
		return nil, err
	}
	if err := checkVar(v, "password", password, "required"); err != nil {
		return nil, err
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Unauthorizedf("invalid email or password")
		}
		return nil, errors.Annotate(err, "loading user")
	}
	if err := user.CheckPassword(password); err != nil {
		return nil, errors.Unauthorizedf("invalid email or password")
	}
	return s.issue(&user)
}

// Authenticate validates a token and returns its user. Tokens issued before
// the user's remember token was last rotated are rejected.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, errors.Unauthorizedf("invalid token")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Unauthorizedf("invalid token")
		}
		return nil, errors.Annotate(err, "loading user")
	}
	if claims.Session != user.SessionFingerprint() {
		return nil, errors.Unauthorizedf("session expired")
	}
	return &user, nil
}

// Logout rotates the remember token, ending every session of the user.
func (s *AccountService) Logout(ctx context.Context, userID uint) error {
	token, err := utils.RandomToken(rememberTokenLen)
	if err != nil {
		return errors.Annotate(err, "rotating remember token")
	}
	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("remember_token", token).Error
	if err != nil {
		return errors.Annotate(err, "rotating remember token")
	}
	return nil
}

func (s *AccountService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("user %d", id)
		}
		return nil, errors.Annotate(err, "loading user")
	}
	return &user, nil
}

func (s *AccountService) List(ctx context.Context, page int) (Page[models.User], error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).Order("created_at desc").Order("id desc")
	out, err := paginate[models.User](q, page, usersPerPage)
	if err != nil {
		return Page[models.User]{}, errors.Annotate(err, "listing users")
	}
	return out, nil
}

// Update edits an account. A new password also rotates the remember token.
func (s *AccountService) Update(ctx context.Context, id uint, in UserInput) (*models.User, error) {
	if err := in.check(false); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	taken, err := s.emailTaken(ctx, in.Email, user.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, invalidField("email", "the email has already been taken")
	}

	user.FullName = in.FullName
	user.Email = in.Email
	user.PhoneNumber = in.PhoneNumber
	user.Address = in.Address
	user.Role = in.Role
	if in.Password != "" {
		if err := user.SetPassword(in.Password); err != nil {
			return nil, errors.Annotate(err, "hashing password")
		}
		if user.RememberToken, err = utils.RandomToken(rememberTokenLen); err != nil {
			return nil, errors.Annotate(err, "rotating remember token")
		}
	}

	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, errors.Annotate(err, "updating user")
	}
	return user, nil
}

// Delete removes an account. Administrators cannot delete themselves.
func (s *AccountService) Delete(ctx context.Context, actor Actor, id uint) error {
	if actor.ID == id {
		return failedPrecondition("you cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(user).Error; err != nil {
		return errors.Annotate(err, "deleting user")
	}
	return nil
}

// RegisterDevice stores the FCM token push notifications are sent to. An
// empty token unregisters the device.
func (s *AccountService) RegisterDevice(ctx context.Context, userID uint, fcmToken string) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("fcm_token", strings.TrimSpace(fcmToken)).Error
	if err != nil {
		return errors.Annotate(err, "saving device token")
	}
	return nil
}
