package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyColumn(t *testing.T) {
	tests := []struct {
		header string
		kind   ColumnKind
		key    string
		index  int
	}{
		{"username", ColumnStandard, "", 0},
		{"Email", ColumnStandard, "", 0},
		{"profile_field_org", ColumnProfileField, "org", 0},
		{"PROFILE_FIELD_Campus", ColumnProfileField, "campus", 0},
		{"cohort1", ColumnGroup, "", 1},
		{"group3", ColumnGroup, "", 3},
		{"course2", ColumnCourse, "", 2},
		{"role2", ColumnRole, "", 2},
		{"type2", ColumnType, "", 2},
		{"enrolstatus1", ColumnEnrolStatus, "", 1},
		{"enroltimestart1", ColumnEnrolTimeStart, "", 1},
		{"enrolperiod1", ColumnEnrolPeriod, "", 1},
		{"sysrole1", ColumnSysRole, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			col, err := ClassifyColumn(tt.header)
			require.NoError(t, err)

			assert.Equal(t, tt.kind, col.Kind)
			assert.Equal(t, tt.key, col.Key)
			assert.Equal(t, tt.index, col.Index)
		})
	}
}

func TestClassifyColumn_Invalid(t *testing.T) {
	for _, header := range []string{"bogus", "cohort0", "course", "profile_field_", "group01"} {
		t.Run(header, func(t *testing.T) {
			_, err := ClassifyColumn(header)
			assert.ErrorIs(t, err, ErrInvalidHeader)
		})
	}
}

func TestClassifyHeaders(t *testing.T) {
	cs, err := ClassifyHeaders([]string{
		"username", "email", "profile_field_org",
		"cohort1", "course1", "role1", "enrolperiod1", "sysrole1",
	})
	require.NoError(t, err)

	assert.True(t, cs.Has("username"))
	assert.Equal(t, []string{"org"}, cs.ProfileFieldKeys())
	assert.Equal(t, []string{"username", "email"}, cs.StandardNames())
	require.Len(t, cs.GroupColumns(), 1)
	require.Len(t, cs.CourseColumns(), 1)
	require.Len(t, cs.SysRoleColumns(), 1)
}

func TestClassifyHeaders_RequiresUsername(t *testing.T) {
	_, err := ClassifyHeaders([]string{"email", "firstname"})
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestClassifyHeaders_OrphanCourseDetail(t *testing.T) {
	_, err := ClassifyHeaders([]string{"username", "role2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "course2")
}

func TestClassifyHeaders_SortsByIndex(t *testing.T) {
	cs, err := ClassifyHeaders([]string{"username", "course2", "course1", "group2", "group1"})
	require.NoError(t, err)

	courses := cs.CourseColumns()
	require.Len(t, courses, 2)
	assert.Equal(t, 1, courses[0].Index)
	assert.Equal(t, 2, courses[1].Index)
}

func TestCourseDetail(t *testing.T) {
	cs, err := ClassifyHeaders([]string{"username", "course1", "role1", "type1"})
	require.NoError(t, err)

	row := &Row{Data: map[string]string{
		"username": "ada",
		"course1":  "math101",
		"role1":    "student",
		"type1":    "2",
	}}

	assert.Equal(t, "student", cs.CourseDetail(ColumnRole, 1, row))
	assert.Equal(t, "2", cs.CourseDetail(ColumnType, 1, row))
	assert.Equal(t, "", cs.CourseDetail(ColumnEnrolPeriod, 1, row))
}
