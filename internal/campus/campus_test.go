package campus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-course-api/internal/models"
)

func TestCampusOf(t *testing.T) {
	cases := map[int64]Campus{
		1_000_000: A,
		1_099_999: A,
		1_100_000: B,
		1_199_999: B,
		1_200_000: C,
		1_299_999: C,
	}
	for id, want := range cases {
		assert.Equal(t, want, CampusOf(id), "course %d", id)
		assert.True(t, ValidCourseID(id))
	}
	assert.False(t, ValidCourseID(999_999))
	assert.False(t, ValidCourseID(1_300_000))
}

func TestRoleOf(t *testing.T) {
	assert.Equal(t, models.RoleAdmin, RoleOf(1_000_000_001))
	assert.Equal(t, models.RoleStudent, RoleOf(1_100_000_001))
	assert.Equal(t, models.RoleTeacher, RoleOf(1_200_000_001))
	assert.Equal(t, models.RoleTeacher, RoleOf(1_399_999_999))
	assert.True(t, ValidUserID(1_000_000_000))
	assert.False(t, ValidUserID(1_400_000_000))
	assert.False(t, ValidUserID(999_999_999))
}

func TestBands(t *testing.T) {
	for _, c := range All {
		assert.Equal(t, c, CampusOf(Floor(c)))
		assert.Equal(t, c, CampusOf(Ceiling(c)))
		assert.Equal(t, BandWidth-1, Ceiling(c)-Floor(c))
	}
}

func TestParseSet(t *testing.T) {
	set, err := ParseSet("b, a,B")
	require.NoError(t, err)
	assert.Equal(t, []Campus{A, B}, set)
	assert.True(t, Contains(set, B))
	assert.False(t, Contains(set, C))

	_, err = ParseSet("")
	assert.Error(t, err)
	_, err = ParseSet("A,D")
	assert.Error(t, err)
}
