package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-perpus-api/internal/models"
)

func strPtr(s string) *string { return &s }

func TestForLoansAdminPasses(t *testing.T) {
	pred := ForLoans(Actor{ID: "adm-1", Role: models.RoleAdmin})
	assert.False(t, pred.Denied())

	conds, args := pred.Append([]string{"1=1"}, nil)
	assert.Equal(t, []string{"1=1"}, conds)
	assert.Empty(t, args)
}

func TestForLoansLibrarianScopesBySchool(t *testing.T) {
	pred := ForLoans(Actor{ID: "lib-1", Role: models.RoleLibrarian, SchoolID: strPtr("school-1")})
	require.False(t, pred.Denied())

	conds, args := pred.Append([]string{"1=1"}, []interface{}{"x"})
	require.Len(t, conds, 2)
	assert.Equal(t, "l.school_id = $2", conds[1])
	assert.Equal(t, []interface{}{"x", "school-1"}, args)
}

func TestForLoansLibrarianWithoutSchoolDenied(t *testing.T) {
	pred := ForLoans(Actor{ID: "lib-1", Role: models.RoleLibrarian})
	assert.True(t, pred.Denied())
}

func TestForLoansStudentScopesToSelf(t *testing.T) {
	pred := ForLoans(Actor{ID: "stu-1", Role: models.RoleStudent})
	require.False(t, pred.Denied())

	conds, args := pred.Append(nil, nil)
	require.Len(t, conds, 1)
	assert.Equal(t, "l.student_id = $1", conds[0])
	assert.Equal(t, []interface{}{"stu-1"}, args)
}

func TestForBorrowRequestsLibrarianJoinsThroughStudents(t *testing.T) {
	pred := ForBorrowRequests(Actor{ID: "lib-1", Role: models.RoleLibrarian, SchoolID: strPtr("school-1")})
	require.False(t, pred.Denied())

	conds, args := pred.Append(nil, nil)
	require.Len(t, conds, 1)
	assert.Equal(t, "r.student_id IN (SELECT id FROM users WHERE school_id = $1)", conds[0])
	assert.Equal(t, []interface{}{"school-1"}, args)
}

func TestForBorrowRequestsUnknownRoleDenied(t *testing.T) {
	pred := ForBorrowRequests(Actor{ID: "x", Role: models.UserRole("GUEST")})
	assert.True(t, pred.Denied())
}

func TestForBooksStudentSeesSchoolCatalog(t *testing.T) {
	pred := ForBooks(Actor{ID: "stu-1", Role: models.RoleStudent, SchoolID: strPtr("school-1")})
	require.False(t, pred.Denied())

	conds, args := pred.Append(nil, nil)
	assert.Equal(t, "b.school_id = $1", conds[0])
	assert.Equal(t, []interface{}{"school-1"}, args)
}

func TestForBooksStudentWithoutSchoolDenied(t *testing.T) {
	assert.True(t, ForBooks(Actor{ID: "stu-1", Role: models.RoleStudent}).Denied())
}

func TestAllowsUser(t *testing.T) {
	sameSchool := &models.User{ID: "stu-1", Role: models.RoleStudent, SchoolID: strPtr("school-1")}
	otherSchool := &models.User{ID: "stu-2", Role: models.RoleStudent, SchoolID: strPtr("school-2")}
	noSchool := &models.User{ID: "stu-3", Role: models.RoleStudent}

	admin := Actor{ID: "adm-1", Role: models.RoleAdmin}
	librarian := Actor{ID: "lib-1", Role: models.RoleLibrarian, SchoolID: strPtr("school-1")}
	bareLibrarian := Actor{ID: "lib-2", Role: models.RoleLibrarian}
	student := Actor{ID: "stu-1", Role: models.RoleStudent, SchoolID: strPtr("school-1")}

	assert.True(t, AllowsUser(admin, otherSchool))
	assert.True(t, AllowsUser(librarian, sameSchool))
	assert.False(t, AllowsUser(librarian, otherSchool))
	assert.False(t, AllowsUser(librarian, noSchool))
	assert.False(t, AllowsUser(bareLibrarian, sameSchool))
	assert.True(t, AllowsUser(student, sameSchool))
	assert.False(t, AllowsUser(student, otherSchool))
	assert.False(t, AllowsUser(admin, nil))
}

func TestFromClaims(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleLibrarian, SchoolID: strPtr("school-1")}
	actor := FromClaims(claims)
	assert.Equal(t, "u-1", actor.ID)
	assert.Equal(t, models.RoleLibrarian, actor.Role)
	require.NotNil(t, actor.SchoolID)
	assert.Equal(t, "school-1", *actor.SchoolID)

	assert.Equal(t, Actor{}, FromClaims(nil))
}
