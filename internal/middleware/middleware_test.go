package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quarter-scheduler/internal/models"
	"github.com/noah-isme/quarter-scheduler/internal/service"
	appErrors "github.com/noah-isme/quarter-scheduler/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Wrap(errors.New("bad signature"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return v.claims, nil
}

func protectedRouter(role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	validator := validatorStub{claims: &models.JWTClaims{UserID: "u-1", Role: role}}
	router.POST("/runs", JWT(validator), RequireRoles(models.RoleAdmin, models.RoleScheduler), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTAndRoles(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, serve(protectedRouter(models.RoleScheduler), "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(protectedRouter(models.RoleViewer), "Bearer good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(protectedRouter(models.RoleAdmin), "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(protectedRouter(models.RoleAdmin), "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(protectedRouter(models.RoleAdmin), "Bearer bad").Code)
}

func TestRequireRolesWithoutJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/runs", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
}

func TestOptionalJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	validator := validatorStub{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleViewer}}
	router.POST("/runs", OptionalJWT(validator), func(c *gin.Context) {
		_, ok := c.Get(ContextUserKey)
		if ok {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusOK, serve(router, "Bearer good").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "Bearer bad").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "").Code)
}

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, recorder.Code)
	}
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}
