package services

import (
	"context"
	"testing"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/pkg/utils"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newAccountService(t *testing.T) (*AccountService, *gorm.DB) {
	db := newTestDB(t)
	return NewAccountService(db, utils.NewTokenManager("test-secret", time.Hour), nil), db
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{
		FullName:             "Budi Santoso",
		Email:                " Budi@Example.com ",
		Password:             "password1",
		PasswordConfirmation: "password1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleRenter, session.User.Role)
	assert.Equal(t, "budi@example.com", session.User.Email)
	assert.NotEmpty(t, session.Token)

	user, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, user.ID)

	login, err := svc.Login(ctx, "BUDI@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "budi@example.com", "wrong-password")
	assert.True(t, errors.Is(err, errors.Unauthorized))
	_, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.True(t, errors.Is(err, errors.Unauthorized))
	_, err = svc.Login(ctx, "", "")
	requireFieldError(t, err, "email")

	_, err = svc.Register(ctx, RegisterInput{
		FullName: "Other", Email: "budi@example.com", Password: "password1", PasswordConfirmation: "password1",
	})
	requireFieldError(t, err, "email")
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAccountService(t)
	_, err := svc.Register(context.Background(), RegisterInput{
		Email:                "not-an-email",
		Password:             "short",
		PasswordConfirmation: "short",
	})
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"full_name", "email", "password"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestLogoutInvalidatesEveryToken(t *testing.T) {
	svc, db := newAccountService(t)
	ctx := context.Background()
	user := seedUser(t, db, models.RoleAdmin)

	first, err := svc.Reissue(user)
	require.NoError(t, err)
	second, err := svc.Login(ctx, user.Email, "secret123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.ID))

	for _, token := range []string{first.Token, second.Token} {
		_, err := svc.Authenticate(ctx, token)
		assert.True(t, errors.Is(err, errors.Unauthorized))
	}

	fresh, err := svc.Login(ctx, user.Email, "secret123")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, fresh.Token)
	assert.NoError(t, err)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	svc, db := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "not.a.jwt")
	assert.True(t, errors.Is(err, errors.Unauthorized))

	user := seedUser(t, db, models.RoleRenter)
	session, err := svc.Reissue(user)
	require.NoError(t, err)
	require.NoError(t, db.Unscoped().Delete(user).Error)
	_, err = svc.Authenticate(ctx, session.Token)
	assert.True(t, errors.Is(err, errors.Unauthorized))

	other := NewAccountService(db, utils.NewTokenManager("other-secret", time.Hour), nil)
	foreign, err := other.Reissue(seedUser(t, db, models.RoleRenter))
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, foreign.Token)
	assert.True(t, errors.Is(err, errors.Unauthorized))
}

func TestAdminUserManagement(t *testing.T) {
	svc, db := newAccountService(t)
	ctx := context.Background()
	admin := seedUser(t, db, models.RoleAdmin)

	user, err := svc.Create(ctx, UserInput{
		FullName:             "Sari",
		Email:                "sari@example.com",
		Role:                 models.RoleCashier,
		Password:             "password1",
		PasswordConfirmation: "password1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCashier, user.Role)

	_, err = svc.Create(ctx, UserInput{
		FullName: "X", Email: "x@example.com", Role: "root", Password: "password1", PasswordConfirmation: "password1",
	})
	requireFieldError(t, err, "role")

	token := user.RememberToken
	updated, err := svc.Update(ctx, user.ID, UserInput{
		FullName: "Sari W", Email: "sari@example.com", Role: models.RoleOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, updated.Role)
	assert.Equal(t, token, updated.RememberToken, "no password change keeps sessions")

	updated, err = svc.Update(ctx, user.ID, UserInput{
		FullName: "Sari W", Email: "sari@example.com", Role: models.RoleOwner,
		Password: "password2", PasswordConfirmation: "password2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, token, updated.RememberToken)
	assert.NoError(t, updated.CheckPassword("password2"))

	_, err = svc.Update(ctx, user.ID, UserInput{FullName: "Sari", Email: admin.Email, Role: models.RoleOwner})
	requireFieldError(t, err, "email")

	page, err := svc.List(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	err = svc.Delete(ctx, ActorFromUser(admin), admin.ID)
	assert.True(t, errors.Is(err, ErrFailedPrecondition))
	require.NoError(t, svc.Delete(ctx, ActorFromUser(admin), user.ID))
	_, err = svc.Get(ctx, user.ID)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestDeletedAccountKeepsEmailReserved(t *testing.T) {
	svc, db := newAccountService(t)
	ctx := context.Background()
	admin := seedUser(t, db, models.RoleAdmin)

	in := RegisterInput{FullName: "Dewi", Email: "dewi@example.com", Password: "password1", PasswordConfirmation: "password1"}
	session, err := svc.Register(ctx, in)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, ActorFromUser(admin), session.User.ID))

	_, err = svc.Register(ctx, in)
	requireFieldError(t, err, "email")
}

func TestRegisterDevice(t *testing.T) {
	svc, db := newAccountService(t)
	user := seedUser(t, db, models.RoleRenter)

	require.NoError(t, svc.RegisterDevice(context.Background(), user.ID, " fcm-token "))
	got, err := svc.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "fcm-token", got.FCMToken)
}
