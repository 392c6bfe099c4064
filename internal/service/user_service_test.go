package service

import (
	"errors"
	"testing"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreateWithReferralAttribution(t *testing.T) {
	affiliateSvc, db := setupAffiliateServiceTest(t)
	userSvc := NewUserService(repository.NewUserRepository(db), affiliateSvc)

	owner := createServiceTestUser(t, db, "owner@example.com")
	affiliate := createApprovedAffiliate(t, db, owner.ID, "SIGNUP01", "0.1")

	result, err := userSvc.Create(CreateUserInput{Email: "New@Example.com", Provider: "google", ProviderID: "g-1", ReferralCode: "signup01"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", result.User.Email)
	assert.Equal(t, constants.UserTypeUser, result.User.UserType)
	require.NotNil(t, result.Referral)
	assert.True(t, result.Referral.Attributed)

	reloaded := reloadAffiliate(t, db, affiliate.ID)
	assert.Equal(t, int64(1), reloaded.TotalReferrals)
	assert.True(t, reloaded.TotalEarnings.IsZero())

	_, err = userSvc.Create(CreateUserInput{Email: "new@example.com"})
	assert.True(t, errors.Is(err, ErrUserExists))
}

func TestUserCreateIgnoresUnknownReferral(t *testing.T) {
	affiliateSvc, db := setupAffiliateServiceTest(t)
	userSvc := NewUserService(repository.NewUserRepository(db), affiliateSvc)

	result, err := userSvc.Create(CreateUserInput{Email: "plain@example.com", ReferralCode: "NOPE1234"})
	require.NoError(t, err)
	require.NotNil(t, result.Referral)
	assert.False(t, result.Referral.Attributed)

	_, err = userSvc.Create(CreateUserInput{Email: "bad@example.com", Provider: "github"})
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))

	_, err = userSvc.GetByID(result.User.ID + 99)
	assert.True(t, errors.Is(err, ErrUserNotFound))
}
