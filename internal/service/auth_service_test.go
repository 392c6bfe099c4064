package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type capturedOTP struct {
	email string
	code  string
}

type recordingOTPDelivery struct {
	sent []capturedOTP
	err  error
}

func (d *recordingOTPDelivery) DeliverOTP(_ context.Context, email, code string, _ int) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, capturedOTP{email: email, code: code})
	return nil
}

func setupAuthServiceTest(t *testing.T) (*AuthService, *recordingOTPDelivery, *gorm.DB) {
	t.Helper()
	db := openServiceTestDB(t)
	delivery := &recordingOTPDelivery{}
	svc := NewAuthService(AuthOptions{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
	}, repository.NewUserRepository(db), delivery)
	return svc, delivery, db
}

func TestAuthOTPLoginFlow(t *testing.T) {
	svc, delivery, db := setupAuthServiceTest(t)
	user := createServiceTestUser(t, db, "otp@example.com")

	require.NoError(t, svc.GenerateOTP(context.Background(), "OTP@Example.com"))
	require.Len(t, delivery.sent, 1)
	code := delivery.sent[0].code
	assert.Len(t, code, 4)
	assert.Equal(t, "otp@example.com", delivery.sent[0].email)

	wrong := "0000"
	if wrong == code {
		wrong = "1111"
	}
	_, err := svc.Login("otp@example.com", wrong)
	assert.True(t, errors.Is(err, ErrInvalidOTP))

	pair, err := svc.Login("otp@example.com", code)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.ID)
	assert.Equal(t, "otp@example.com", claims.Email)
	assert.Equal(t, constants.UserTypeUser, claims.UserType)

	// 验证码仅可使用一次
	_, err = svc.Login("otp@example.com", code)
	assert.True(t, errors.Is(err, ErrInvalidOTP))
}

func TestAuthLoginErrors(t *testing.T) {
	svc, delivery, db := setupAuthServiceTest(t)
	createServiceTestUser(t, db, "late@example.com")

	_, err := svc.Login("late@example.com", "12ab")
	assert.True(t, errors.Is(err, ErrOTPFormat))

	_, err = svc.Login("missing@example.com", "1234")
	assert.True(t, errors.Is(err, ErrUserNotFound))

	err = svc.GenerateOTP(context.Background(), "missing@example.com")
	assert.True(t, errors.Is(err, ErrUserNotFound))

	require.NoError(t, svc.GenerateOTP(context.Background(), "late@example.com"))
	svc.nowFunc = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = svc.Login("late@example.com", delivery.sent[0].code)
	assert.True(t, errors.Is(err, ErrOTPExpired))
}

func TestAuthRefreshRotatesAndLogoutRevokes(t *testing.T) {
	svc, delivery, db := setupAuthServiceTest(t)
	user := createServiceTestUser(t, db, "rotate@example.com")

	require.NoError(t, svc.GenerateOTP(context.Background(), user.Email))
	pair, err := svc.Login(user.Email, delivery.sent[0].code)
	require.NoError(t, err)

	rotated, err := svc.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, err = svc.Refresh(pair.RefreshToken)
	assert.True(t, errors.Is(err, ErrTokenMismatch))

	_, err = svc.Refresh("garbage")
	assert.True(t, errors.Is(err, ErrRefreshToken))

	require.NoError(t, svc.Logout(context.Background(), user.ID))
	_, err = svc.Refresh(rotated.RefreshToken)
	assert.True(t, errors.Is(err, ErrTokenMismatch))

	state, err := svc.ResolveAuthState(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.TokenVersion)
}
