package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
)

type mockReportLoans struct {
	loans      []models.LoanDetail
	lastPred   scope.Predicate
	lastFilter models.LoanFilter
}

func (m *mockReportLoans) ListLoans(ctx context.Context, pred scope.Predicate, filter models.LoanFilter) ([]models.LoanDetail, int, error) {
	m.lastPred = pred
	m.lastFilter = filter
	return m.loans, len(m.loans), nil
}

func TestOverdueLoansCSV(t *testing.T) {
	school := "school-1"
	repo := &mockReportLoans{loans: []models.LoanDetail{
		loanDetail("loan-1", "stu-1", school, "Laskar Pelangi", time.Now().UTC().AddDate(0, 0, -3)),
	}}
	svc := NewReportService(repo, nil, nil, zap.NewNop())

	result, err := svc.OverdueLoans(context.Background(), scope.Actor{ID: "adm-1", Role: models.RoleAdmin}, ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	body := string(result.Payload)
	assert.Contains(t, body, "Loan ID")
	assert.Contains(t, body, "Laskar Pelangi")
	assert.True(t, repo.lastFilter.OverdueOnly)
}

func TestOverdueLoansPDF(t *testing.T) {
	repo := &mockReportLoans{}
	svc := NewReportService(repo, nil, nil, zap.NewNop())

	result, err := svc.OverdueLoans(context.Background(), scope.Actor{ID: "adm-1", Role: models.RoleAdmin}, ReportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.NotEmpty(t, result.Payload)
}

func TestOverdueLoansRejectsUnknownFormat(t *testing.T) {
	svc := NewReportService(&mockReportLoans{}, nil, nil, zap.NewNop())

	_, err := svc.OverdueLoans(context.Background(), scope.Actor{ID: "adm-1", Role: models.RoleAdmin}, ReportFormat("xlsx"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
