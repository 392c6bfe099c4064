package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupReferralRepositoryTest(t *testing.T) (*GormReferralRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate models failed: %v", err)
	}
	return NewReferralRepository(db), db
}

func seedReferral(t *testing.T, db *gorm.DB, affiliateID, userID uint, status string, value, commission int64, createdAt time.Time) {
	t.Helper()
	row := &models.Referral{
		AffiliateID:     affiliateID,
		ReferredUserID:  userID,
		ReferralCode:    "ABC12345",
		Status:          status,
		ConversionValue: models.NewMoneyFromDecimal(decimal.NewFromInt(value)),
		Commission:      models.NewMoneyFromDecimal(decimal.NewFromInt(commission)),
		CreatedAt:       createdAt,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("create referral failed: %v", err)
	}
}

func TestReferralUniquePairConstraint(t *testing.T) {
	_, db := setupReferralRepositoryTest(t)
	now := time.Now()
	seedReferral(t, db, 1, 2, constants.ReferralStatusConverted, 100, 10, now)

	dup := &models.Referral{AffiliateID: 1, ReferredUserID: 2, ReferralCode: "ABC12345", Status: constants.ReferralStatusConverted}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate affiliate/user pair")
	}
	other := &models.Referral{AffiliateID: 3, ReferredUserID: 2, ReferralCode: "XYZ12345", Status: constants.ReferralStatusConverted}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("same user under another affiliate should be allowed: %v", err)
	}
}

func TestDailyStatsBucketsByDayAndWindow(t *testing.T) {
	repo, db := setupReferralRepositoryTest(t)
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	seedReferral(t, db, 1, 10, constants.ReferralStatusConverted, 100, 10, day1)
	seedReferral(t, db, 1, 11, constants.ReferralStatusPending, 0, 0, day1.Add(time.Hour))
	seedReferral(t, db, 1, 12, constants.ReferralStatusConverted, 50, 5, day2)
	seedReferral(t, db, 2, 13, constants.ReferralStatusConverted, 999, 99, day2)

	rows, err := repo.DailyStats(ReferralReportFilter{AffiliateID: 1})
	if err != nil {
		t.Fatalf("daily stats failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 day buckets, got %d", len(rows))
	}
	if rows[0].Day != "2026-03-01" || rows[0].Count != 2 || rows[0].Conversions != 1 {
		t.Fatalf("unexpected first bucket: %+v", rows[0])
	}
	if !rows[0].Revenue.Equal(decimal.NewFromInt(100)) || !rows[0].Commission.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected first bucket sums: %+v", rows[0])
	}

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows, err = repo.DailyStats(ReferralReportFilter{AffiliateID: 1, StartDate: &start})
	if err != nil {
		t.Fatalf("daily stats with start failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Day != "2026-03-02" {
		t.Fatalf("start bound not applied: %+v", rows)
	}
}

func TestListRecentReferralsWithUsersBatchFill(t *testing.T) {
	repo, db := setupReferralRepositoryTest(t)
	users := []models.User{{Email: "a@example.com"}, {Email: "b@example.com"}}
	if err := db.Create(&users).Error; err != nil {
		t.Fatalf("create users failed: %v", err)
	}
	now := time.Now()
	seedReferral(t, db, 7, users[0].ID, constants.ReferralStatusConverted, 10, 1, now.Add(-time.Hour))
	seedReferral(t, db, 7, users[1].ID, constants.ReferralStatusConverted, 20, 2, now)

	rows, err := repo.ListRecentReferralsWithUsers(7, 10)
	if err != nil {
		t.Fatalf("list referrals failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 referrals, got %d", len(rows))
	}
	if rows[0].ReferredUser == nil || rows[0].ReferredUser.Email != "b@example.com" {
		t.Fatalf("expected newest referral with user b, got %+v", rows[0].ReferredUser)
	}
}

func TestApprovePendingCommissions(t *testing.T) {
	repo, db := setupReferralRepositoryTest(t)
	now := time.Now()
	old := &models.Commission{AffiliateID: 1, ReferralID: 1, Status: constants.CommissionStatusPending, CreatedAt: now.Add(-48 * time.Hour)}
	fresh := &models.Commission{AffiliateID: 1, ReferralID: 2, Status: constants.CommissionStatusPending, CreatedAt: now}
	if err := db.Create(old).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}
	if err := db.Create(fresh).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}

	affected, err := repo.ApprovePendingCommissions(now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("approve pending failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 approved commission, got %d", affected)
	}
	got, _ := repo.GetCommissionByID(fresh.ID)
	if got.Status != constants.CommissionStatusPending {
		t.Fatalf("fresh commission should stay pending, got %s", got.Status)
	}
}
