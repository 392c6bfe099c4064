package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pluginhub/internal/config"
	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type routerTestEnv struct {
	engine    *gin.Engine
	container *provider.Container
	db        *gorm.DB
}

func setupRouterTest(t *testing.T) *routerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := openRouterTestDB(t)

	cfg := &config.Config{}
	cfg.Server.Mode = "debug"
	cfg.UserJWT.SecretKey = testAccessSecret
	cfg.UserJWT.ExpireSeconds = 300
	cfg.RefreshJWT.SecretKey = "router-refresh-secret"
	cfg.RefreshJWT.ExpireHours = 24
	cfg.Stripe.WebhookSecret = "whsec_router_test"
	cfg.Affiliate.DefaultCommissionRate = 0.1
	cfg.Affiliate.CookieMaxAgeDays = 30

	container, err := provider.NewContainerWithDB(cfg, db)
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return &routerTestEnv{engine: SetupRouter(cfg, container), container: container, db: db}
}

func (e *routerTestEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func envelopeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := decodeEnvelope(t, w)
	data, _ := body["data"].(map[string]interface{})
	return data
}

func TestHealthRoute(t *testing.T) {
	env := setupRouterTest(t)
	w := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestUserCreateRoute(t *testing.T) {
	env := setupRouterTest(t)

	w := env.do(t, http.MethodPost, "/api/user/create", gin.H{"email": "first@example.com", "userType": 1, "provider": "custom"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	assert.Nil(t, body["error"])

	w = env.do(t, http.MethodPost, "/api/user/create", gin.H{"email": "FIRST@example.com", "userType": 1, "provider": "custom"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists", decodeEnvelope(t, w)["message"])

	w = env.do(t, http.MethodPost, "/api/user/create", gin.H{"email": "root@example.com", "userType": 0, "provider": "custom"}, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/user/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAffiliateLifecycleRoutes(t *testing.T) {
	env := setupRouterTest(t)
	owner := createRouterTestUser(t, env.db, "owner@example.com", constants.UserTypeUser)
	admin := createRouterTestUser(t, env.db, "admin@example.com", constants.UserTypeAdmin)
	require.NoError(t, env.container.AuthzService.EnsureAdminUser(admin.ID))
	ownerToken := signTestAccessToken(t, owner, 0)
	adminToken := signTestAccessToken(t, admin, 0)

	w := env.do(t, http.MethodGet, "/api/affiliate/dashboard", nil, ownerToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/affiliate/apply", gin.H{
		"paymentMethod":  "paypal",
		"paymentDetails": gin.H{"email": "payout@example.com"},
	}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	applied := envelopeData(t, w)
	code, _ := applied["referralCode"].(string)
	require.NotEmpty(t, code)
	affiliateID := uint(applied["id"].(float64))

	w = env.do(t, http.MethodPost, "/api/affiliate/apply", gin.H{"paymentMethod": "paypal"}, ownerToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/affiliate/dashboard", nil, ownerToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/affiliate/admin/getallaffiliates", nil, ownerToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/affiliate/admin/getpendingaffiliatecount", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, envelopeData(t, w)["pendingCount"])

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/affiliate/admin/update/%d", affiliateID), gin.H{"status": "approved"}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/user/create?ref="+code, gin.H{"email": "referred@example.com", "userType": 1, "provider": "google"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	referral, _ := envelopeData(t, w)["referral"].(map[string]interface{})
	require.NotNil(t, referral)
	assert.Equal(t, true, referral["attributed"])

	var count int64
	require.NoError(t, env.db.Model(&models.Referral{}).Where("affiliate_id = ?", affiliateID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var referred models.User
	require.NoError(t, env.db.Where("email = ?", "referred@example.com").First(&referred).Error)
	w = env.do(t, http.MethodPost, "/api/affiliate/admin/conversion", gin.H{
		"userId": referred.ID, "conversionValue": 100, "referralCode": code,
	}, adminToken)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, false, decodeEnvelope(t, w)["success"])

	w = env.do(t, http.MethodPost, "/api/affiliate/admin/conversion", gin.H{
		"userId": owner.ID + 100, "conversionValue": 100, "referralCode": "NOPE1234",
	}, adminToken)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "Invalid referral code or conversion already processed", decodeEnvelope(t, w)["message"])

	require.NoError(t, env.db.Model(&models.Referral{}).Where("affiliate_id = ?", affiliateID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	w = env.do(t, http.MethodGet, "/api/admin/authz/permissions/catalog", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "/affiliate/admin/conversion")
}

func TestSubscriptionRoutesGuardUserParam(t *testing.T) {
	env := setupRouterTest(t)
	owner := createRouterTestUser(t, env.db, "owner@example.com", constants.UserTypeUser)
	other := createRouterTestUser(t, env.db, "other@example.com", constants.UserTypeUser)
	token := signTestAccessToken(t, owner, 0)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/subscription/user/%d/all", other.ID), nil, token)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/subscription/user/%d/all", owner.ID), nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/subscription/webhook", bytes.NewReader([]byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Webhook signature verification failed", decodeEnvelope(t, rec)["message"])
}

func TestPluginCatalogRoutes(t *testing.T) {
	env := setupRouterTest(t)

	w := env.do(t, http.MethodGet, "/api/plugin/getallplugins?page=1&limit=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := envelopeData(t, w)
	assert.EqualValues(t, 1, data["currentPage"])
	assert.EqualValues(t, 0, data["totalItems"])

	w = env.do(t, http.MethodGet, "/api/plugin/getPluginWithVersions/99", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/plugin/createplugin", gin.H{"name": "x"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
