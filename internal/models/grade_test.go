package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidGrade(t *testing.T) {
	for _, grade := range []string{"A+", "A", "A-", "B+", "B", "B-", "C+", "C", "C-", "D+", "D", "D-", "F", "P", "NP", "W", "I"} {
		assert.True(t, ValidGrade(grade), "grade %s", grade)
	}
	for _, grade := range []string{"Z", "a", "A +", "", "E", "PASS"} {
		assert.False(t, ValidGrade(grade), "grade %s", grade)
	}
}

func TestGradePointsExcludesSpecialGrades(t *testing.T) {
	// P, NP, W and I carry no value; callers skip them in GPA instead of
	// counting zero.
	for _, grade := range []string{"P", "NP", "W", "I"} {
		_, ok := GradePoints(grade)
		assert.False(t, ok, "grade %s", grade)
	}

	points, ok := GradePoints("F")
	assert.True(t, ok)
	assert.Equal(t, 0.0, points)

	points, ok = GradePoints("A")
	assert.True(t, ok)
	assert.Equal(t, 4.0, points)

	points, ok = GradePoints("B-")
	assert.True(t, ok)
	assert.Equal(t, 2.7, points)
}

func TestClearanceStatusAllCleared(t *testing.T) {
	clearance := ClearanceStatus{}
	for _, dept := range ClearanceDepartments {
		clearance[dept] = ClearanceEntry{Status: ClearanceCleared}
	}
	assert.True(t, clearance.AllCleared())

	clearance[DepartmentAcademic] = ClearanceEntry{Status: ClearancePending}
	assert.False(t, clearance.AllCleared())

	delete(clearance, DepartmentAcademic)
	assert.False(t, clearance.AllCleared())
}
