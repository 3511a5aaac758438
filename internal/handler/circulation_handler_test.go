package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-perpus-api/internal/middleware"
	"github.com/noah-isme/sma-perpus-api/internal/models"
)

func TestCirculationEndpointsRequireClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCirculationHandler(nil)

	endpoints := []func(*gin.Context){
		handler.CreateRequest,
		handler.ListRequests,
		handler.GetRequest,
		handler.ApproveRequest,
		handler.RejectRequest,
		handler.CreateLoan,
		handler.ListLoans,
		handler.GetLoan,
		handler.ReturnLoan,
		handler.ExtendLoan,
		handler.DeleteLoan,
	}

	for _, endpoint := range endpoints {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		endpoint(c)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestLoanFilterQueryNames(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet,
		"/loans?status=borrowed&active_only=true&overdue_only=true&page=2&pagesize=5", nil)

	filter := loanFilterFromQuery(c)
	require.NotNil(t, filter.Status)
	assert.Equal(t, models.LoanBorrowed, *filter.Status)
	assert.True(t, filter.ActiveOnly)
	assert.True(t, filter.OverdueOnly)
	assert.Equal(t, 2, filter.Page)
	assert.Equal(t, 5, filter.PageSize)
}

func TestLoanFilterQueryAliases(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/loans?active=true&overdue=true&limit=7", nil)

	filter := loanFilterFromQuery(c)
	assert.True(t, filter.ActiveOnly)
	assert.True(t, filter.OverdueOnly)
	assert.Equal(t, 7, filter.PageSize)
	assert.Equal(t, 1, filter.Page)
}

func TestActorFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	school := "school-1"
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID: "lib-1", Role: models.RoleLibrarian, SchoolID: &school,
	})

	actor, ok := actorFromContext(c)
	require.True(t, ok)
	assert.Equal(t, "lib-1", actor.ID)
	assert.Equal(t, models.RoleLibrarian, actor.Role)
	require.NotNil(t, actor.SchoolID)
	assert.Equal(t, "school-1", *actor.SchoolID)

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok = actorFromContext(c2)
	assert.False(t, ok)
}
