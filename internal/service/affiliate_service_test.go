package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate models failed: %v", err)
	}
	return db
}

func setupAffiliateServiceTest(t *testing.T) (*AffiliateService, *gorm.DB) {
	t.Helper()
	db := openServiceTestDB(t)
	svc := NewAffiliateService(
		repository.NewAffiliateRepository(db),
		repository.NewReferralRepository(db),
		repository.NewUserRepository(db),
		AffiliateOptions{DefaultCommissionRate: 0.1, CommissionConfirmDays: 7},
	)
	return svc, db
}

func createServiceTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, AuthProvider: constants.AuthProviderCustom, UserType: constants.UserTypeUser}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func createApprovedAffiliate(t *testing.T, db *gorm.DB, userID uint, code string, rate string) *models.Affiliate {
	t.Helper()
	affiliate := &models.Affiliate{
		UserID:         userID,
		ReferralCode:   code,
		Status:         constants.AffiliateStatusApproved,
		CommissionRate: decimal.RequireFromString(rate),
		AppliedAt:      time.Now(),
	}
	if err := db.Create(affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return affiliate
}

func reloadAffiliate(t *testing.T, db *gorm.DB, id uint) *models.Affiliate {
	t.Helper()
	var affiliate models.Affiliate
	if err := db.First(&affiliate, id).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	return &affiliate
}

func TestProcessReferralConversionWorkedExample(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	promoter := createServiceTestUser(t, db, "promoter@example.com")
	buyer := createServiceTestUser(t, db, "buyer@example.com")
	affiliate := createApprovedAffiliate(t, db, promoter.ID, "ABC12345", "0.10")

	result, err := svc.ProcessReferralConversion(ConversionInput{
		UserID:          buyer.ID,
		ReferralCode:    "abc12345",
		ConversionValue: decimal.NewFromInt(100),
		Source:          "checkout",
	})
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if result == nil {
		t.Fatalf("expected conversion result")
	}
	if result.Referral.Status != constants.ReferralStatusConverted || result.Referral.Commission.String() != "10.00" {
		t.Fatalf("unexpected referral: %+v", result.Referral)
	}
	if result.Referral.ConversionDate == nil {
		t.Fatalf("conversion date should be set")
	}
	if result.Commission.Status != constants.CommissionStatusPending || result.Commission.Amount.String() != "10.00" {
		t.Fatalf("unexpected commission: %+v", result.Commission)
	}
	if result.Commission.ReferralID != result.Referral.ID {
		t.Fatalf("commission should reference referral %d, got %d", result.Referral.ID, result.Commission.ReferralID)
	}

	updated := reloadAffiliate(t, db, affiliate.ID)
	if updated.TotalReferrals != 1 || updated.TotalEarnings.String() != "10.00" {
		t.Fatalf("unexpected totals: referrals=%d earnings=%s", updated.TotalReferrals, updated.TotalEarnings.String())
	}

	again, err := svc.ProcessReferralConversion(ConversionInput{
		UserID:          buyer.ID,
		ReferralCode:    "ABC12345",
		ConversionValue: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("duplicate conversion should not error: %v", err)
	}
	if again != nil {
		t.Fatalf("duplicate conversion should return nil")
	}
	var referralCount, commissionCount int64
	db.Model(&models.Referral{}).Count(&referralCount)
	db.Model(&models.Commission{}).Count(&commissionCount)
	if referralCount != 1 || commissionCount != 1 {
		t.Fatalf("expected single referral/commission pair, got %d/%d", referralCount, commissionCount)
	}
	updated = reloadAffiliate(t, db, affiliate.ID)
	if updated.TotalReferrals != 1 || updated.TotalEarnings.String() != "10.00" {
		t.Fatalf("totals changed on duplicate: referrals=%d earnings=%s", updated.TotalReferrals, updated.TotalEarnings.String())
	}
}

func TestProcessReferralConversionIgnoresUnknownAndUnapprovedCodes(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	promoter := createServiceTestUser(t, db, "pending@example.com")
	buyer := createServiceTestUser(t, db, "buyer2@example.com")
	pending := createApprovedAffiliate(t, db, promoter.ID, "PEND1234", "0.10")
	if err := db.Model(pending).Update("status", constants.AffiliateStatusPending).Error; err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	for _, code := range []string{"PEND1234", "NOPE9999", "bad!"} {
		result, err := svc.ProcessReferralConversion(ConversionInput{
			UserID:          buyer.ID,
			ReferralCode:    code,
			ConversionValue: decimal.NewFromInt(50),
		})
		if err != nil {
			t.Fatalf("code %s should not error: %v", code, err)
		}
		if result != nil {
			t.Fatalf("code %s should not attribute", code)
		}
	}
	var total int64
	db.Model(&models.Referral{}).Count(&total)
	if total != 0 {
		t.Fatalf("expected no referrals, got %d", total)
	}
}

func TestProcessReferralConversionUsesRateAtConversionTime(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	promoter := createServiceTestUser(t, db, "rate@example.com")
	first := createServiceTestUser(t, db, "first@example.com")
	second := createServiceTestUser(t, db, "second@example.com")
	affiliate := createApprovedAffiliate(t, db, promoter.ID, "RATE1234", "0.10")

	if _, err := svc.ProcessReferralConversion(ConversionInput{UserID: first.ID, ReferralCode: "RATE1234", ConversionValue: decimal.NewFromInt(200)}); err != nil {
		t.Fatalf("first conversion failed: %v", err)
	}
	rate := decimal.RequireFromString("0.25")
	if _, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: affiliate.ID, Status: constants.AffiliateStatusApproved, CommissionRate: &rate}); err != nil {
		t.Fatalf("update rate failed: %v", err)
	}
	if _, err := svc.ProcessReferralConversion(ConversionInput{UserID: second.ID, ReferralCode: "RATE1234", ConversionValue: decimal.NewFromInt(200)}); err != nil {
		t.Fatalf("second conversion failed: %v", err)
	}

	var commissions []models.Commission
	if err := db.Order("id asc").Find(&commissions).Error; err != nil {
		t.Fatalf("load commissions failed: %v", err)
	}
	if len(commissions) != 2 || commissions[0].Amount.String() != "20.00" || commissions[1].Amount.String() != "50.00" {
		t.Fatalf("unexpected commissions: %+v", commissions)
	}

	count, earned, err := repository.NewReferralRepository(db).ConvertedTotals(affiliate.ID)
	if err != nil {
		t.Fatalf("converted totals failed: %v", err)
	}
	updated := reloadAffiliate(t, db, affiliate.ID)
	if updated.TotalReferrals != count || !updated.TotalEarnings.Decimal.Equal(earned) {
		t.Fatalf("affiliate totals %d/%s do not match ledger %d/%s", updated.TotalReferrals, updated.TotalEarnings.String(), count, earned.String())
	}
}

func TestProcessReferralConversionRejectsSelfReferral(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	promoter := createServiceTestUser(t, db, "self@example.com")
	createApprovedAffiliate(t, db, promoter.ID, "SELF1234", "0.10")

	result, err := svc.ProcessReferralConversion(ConversionInput{UserID: promoter.ID, ReferralCode: "SELF1234", ConversionValue: decimal.NewFromInt(10)})
	if err != nil || result != nil {
		t.Fatalf("self referral should be ignored, got result=%+v err=%v", result, err)
	}
}

func TestApplyAffiliate(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	user := createServiceTestUser(t, db, "apply@example.com")

	affiliate, err := svc.Apply(ApplyAffiliateInput{
		UserID:         user.ID,
		PaymentMethod:  "PayPal",
		PaymentDetails: []byte(`{"email":"pay@example.com"}`),
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if affiliate.Status != constants.AffiliateStatusPending {
		t.Fatalf("expected pending, got %s", affiliate.Status)
	}
	if affiliate.ReferralCode != deriveReferralCode(user.ID, 0) {
		t.Fatalf("unexpected referral code %s", affiliate.ReferralCode)
	}
	if !affiliate.CommissionRate.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("expected default rate, got %s", affiliate.CommissionRate.String())
	}
	if affiliate.PaymentMethod != constants.AffiliatePaymentPaypal {
		t.Fatalf("expected paypal, got %s", affiliate.PaymentMethod)
	}

	if _, err := svc.Apply(ApplyAffiliateInput{UserID: user.ID}); !errors.Is(err, ErrAffiliateExists) {
		t.Fatalf("expected ErrAffiliateExists, got %v", err)
	}
	if _, err := svc.Apply(ApplyAffiliateInput{UserID: 9999}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.Apply(ApplyAffiliateInput{UserID: user.ID, PaymentMethod: "cash"}); !errors.Is(err, ErrAffiliatePaymentInvalid) {
		t.Fatalf("expected ErrAffiliatePaymentInvalid, got %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	user := createServiceTestUser(t, db, "status@example.com")
	admin := createServiceTestUser(t, db, "admin@example.com")
	affiliate, err := svc.Apply(ApplyAffiliateInput{UserID: user.ID})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	approved, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: affiliate.ID, Status: "approved", ApprovedBy: admin.ID})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.ApprovedAt == nil || approved.ApprovedBy == nil || *approved.ApprovedBy != admin.ID {
		t.Fatalf("approval stamp missing: %+v", approved)
	}

	if _, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: affiliate.ID, Status: "pending"}); !errors.Is(err, ErrAffiliateStatusTransition) {
		t.Fatalf("expected transition error for approved -> pending, got %v", err)
	}
	if _, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: affiliate.ID, Status: "suspended"}); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if _, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: affiliate.ID, Status: "approved"}); err != nil {
		t.Fatalf("reinstate failed: %v", err)
	}
	if _, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: affiliate.ID, Status: "unknown"}); !errors.Is(err, ErrAffiliateStatusInvalid) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: 9999, Status: "approved"}); !errors.Is(err, ErrAffiliateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	bad := decimal.RequireFromString("1.5")
	if _, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: affiliate.ID, Status: "approved", CommissionRate: &bad}); !errors.Is(err, ErrCommissionRateInvalid) {
		t.Fatalf("expected rate error, got %v", err)
	}
}

func TestBulkUpdateStatusCountsPerRow(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	a := createServiceTestUser(t, db, "bulk-a@example.com")
	b := createServiceTestUser(t, db, "bulk-b@example.com")
	first, _ := svc.Apply(ApplyAffiliateInput{UserID: a.ID})
	second, _ := svc.Apply(ApplyAffiliateInput{UserID: b.ID})
	if _, err := svc.UpdateStatus(UpdateAffiliateStatusInput{AffiliateID: second.ID, Status: "rejected"}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	updated, err := svc.BulkUpdateStatus([]uint{first.ID, second.ID, first.ID, 9999}, "approved", 1, nil)
	if err != nil {
		t.Fatalf("bulk update failed: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 updated row, got %d", updated)
	}
}

func TestDashboardAggregates(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	promoter := createServiceTestUser(t, db, "dash@example.com")
	affiliate := createApprovedAffiliate(t, db, promoter.ID, "DASH1234", "0.10")
	for i := 0; i < 3; i++ {
		buyer := createServiceTestUser(t, db, fmt.Sprintf("dash-buyer-%d@example.com", i))
		if _, err := svc.ProcessReferralConversion(ConversionInput{UserID: buyer.ID, ReferralCode: "DASH1234", ConversionValue: decimal.NewFromInt(100)}); err != nil {
			t.Fatalf("conversion failed: %v", err)
		}
	}
	if err := db.Model(&models.Commission{}).Where("id = ?", 1).Update("status", constants.CommissionStatusPaid).Error; err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if _, err := svc.TrackClick(TrackClickInput{ReferralCode: "DASH1234", LandingPath: "/"}); err != nil {
		t.Fatalf("track click failed: %v", err)
	}

	dashboard, err := svc.Dashboard(reloadAffiliate(t, db, affiliate.ID))
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if dashboard.Stats.TotalReferrals != 3 || dashboard.Stats.TotalEarnings.String() != "30.00" {
		t.Fatalf("unexpected totals: %+v", dashboard.Stats)
	}
	if dashboard.Stats.PendingCommissions.String() != "20.00" || dashboard.Stats.PaidCommissions.String() != "10.00" {
		t.Fatalf("unexpected commission split: %+v", dashboard.Stats)
	}
	if dashboard.Stats.ConversionRate != 100 || dashboard.Stats.ClickCount != 1 {
		t.Fatalf("unexpected rate/clicks: %+v", dashboard.Stats)
	}
	if _, ok := dashboard.ReferralBreakdown[constants.ReferralStatusCancelled]; !ok {
		t.Fatalf("breakdown should include every referral status")
	}
	if len(dashboard.RecentReferrals) != 3 || dashboard.RecentReferrals[0].ReferredUser == nil {
		t.Fatalf("recent referrals should be filled with users")
	}
}

func TestReportRejectsInvertedWindow(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	promoter := createServiceTestUser(t, db, "report@example.com")
	affiliate := createApprovedAffiliate(t, db, promoter.ID, "REPO1234", "0.10")
	start := time.Now()
	end := start.Add(-time.Hour)
	if _, err := svc.Report(affiliate, &start, &end); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
	report, err := svc.Report(affiliate, nil, nil)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(report.DailyStats) != 0 || report.Summary.ConversionRate != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestConfirmDueCommissionsAndMarkPaid(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	promoter := createServiceTestUser(t, db, "confirm@example.com")
	buyer := createServiceTestUser(t, db, "confirm-buyer@example.com")
	createApprovedAffiliate(t, db, promoter.ID, "CONF1234", "0.10")
	result, err := svc.ProcessReferralConversion(ConversionInput{UserID: buyer.ID, ReferralCode: "CONF1234", ConversionValue: decimal.NewFromInt(80)})
	if err != nil || result == nil {
		t.Fatalf("conversion failed: %v", err)
	}

	if _, err := svc.MarkCommissionPaid(MarkCommissionPaidInput{CommissionID: result.Commission.ID}); !errors.Is(err, ErrCommissionStatusInvalid) {
		t.Fatalf("pending commission should not be payable, got %v", err)
	}

	svc.nowFunc = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	affected, err := svc.ConfirmDueCommissions()
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 confirmed commission, got %d", affected)
	}

	paid, err := svc.MarkCommissionPaid(MarkCommissionPaidInput{CommissionID: result.Commission.ID, TransactionID: "TX-1", PaymentMethod: "bank"})
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Status != constants.CommissionStatusPaid || paid.PaidAt == nil || paid.TransactionID != "TX-1" {
		t.Fatalf("unexpected paid commission: %+v", paid)
	}
}

func TestProcessReferralConversionRollsBackOnCommissionFailure(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	promoter := createServiceTestUser(t, db, "atomic@example.com")
	buyer := createServiceTestUser(t, db, "atomic-buyer@example.com")
	affiliate := createApprovedAffiliate(t, db, promoter.ID, "ATOM1234", "0.10")

	insertErr := errors.New("commission insert failed")
	if err := db.Callback().Create().Before("gorm:create").Register("test:fail_commission", func(tx *gorm.DB) {
		if tx.Statement.Table == "commissions" {
			_ = tx.AddError(insertErr)
		}
	}); err != nil {
		t.Fatalf("register callback failed: %v", err)
	}

	result, err := svc.ProcessReferralConversion(ConversionInput{
		UserID:          buyer.ID,
		ReferralCode:    "ATOM1234",
		ConversionValue: decimal.NewFromInt(100),
	})
	if !errors.Is(err, insertErr) {
		t.Fatalf("expected commission insert error, got %v", err)
	}
	if result != nil {
		t.Fatalf("failed conversion should not return a result")
	}
	var referralCount, commissionCount int64
	db.Model(&models.Referral{}).Count(&referralCount)
	db.Model(&models.Commission{}).Count(&commissionCount)
	if referralCount != 0 || commissionCount != 0 {
		t.Fatalf("expected no rows after rollback, got %d/%d", referralCount, commissionCount)
	}
	updated := reloadAffiliate(t, db, affiliate.ID)
	if updated.TotalReferrals != 0 || !updated.TotalEarnings.IsZero() {
		t.Fatalf("totals changed after rollback: referrals=%d earnings=%s", updated.TotalReferrals, updated.TotalEarnings.String())
	}
}

// staleCodeRepository 返回查找时刻的推广用户快照
type staleCodeRepository struct {
	repository.AffiliateRepository
	snapshot *models.Affiliate
}

func (r *staleCodeRepository) GetApprovedByCode(string) (*models.Affiliate, error) {
	copied := *r.snapshot
	return &copied, nil
}

func TestProcessReferralConversionRechecksAffiliateInTransaction(t *testing.T) {
	db := openServiceTestDB(t)
	promoter := createServiceTestUser(t, db, "recheck@example.com")
	buyer := createServiceTestUser(t, db, "recheck-buyer@example.com")
	other := createServiceTestUser(t, db, "recheck-other@example.com")
	affiliate := createApprovedAffiliate(t, db, promoter.ID, "RECH1234", "0.10")
	snapshot := *affiliate

	svc := NewAffiliateService(
		&staleCodeRepository{AffiliateRepository: repository.NewAffiliateRepository(db), snapshot: &snapshot},
		repository.NewReferralRepository(db),
		repository.NewUserRepository(db),
		AffiliateOptions{DefaultCommissionRate: 0.1},
	)

	if err := db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).Update("status", constants.AffiliateStatusSuspended).Error; err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	result, err := svc.ProcessReferralConversion(ConversionInput{UserID: buyer.ID, ReferralCode: "RECH1234", ConversionValue: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("suspended affiliate should not error: %v", err)
	}
	if result != nil {
		t.Fatalf("suspended affiliate should not be attributed")
	}

	if err := db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).Updates(map[string]interface{}{
		"status":          constants.AffiliateStatusApproved,
		"commission_rate": decimal.RequireFromString("0.20"),
	}).Error; err != nil {
		t.Fatalf("reapprove failed: %v", err)
	}
	result, err = svc.ProcessReferralConversion(ConversionInput{UserID: other.ID, ReferralCode: "RECH1234", ConversionValue: decimal.NewFromInt(100)})
	if err != nil || result == nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if result.Commission.Amount.String() != "20.00" {
		t.Fatalf("expected commission at locked rate 0.20, got %s", result.Commission.Amount.String())
	}
	updated := reloadAffiliate(t, db, affiliate.ID)
	if updated.TotalReferrals != 1 {
		t.Fatalf("expected one attributed referral, got %d", updated.TotalReferrals)
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	value := "ab" + strings.Repeat("é", 4)
	got := truncate(value, 5)
	if got != "abé" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if !utf8.ValidString(truncate(strings.Repeat("世", 10), 7)) {
		t.Fatalf("truncate produced invalid utf-8")
	}
	if truncate("short", 10) != "short" {
		t.Fatalf("short value should be unchanged")
	}
}
