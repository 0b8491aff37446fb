// Package campus maps band-encoded ids to the campus that owns them and to the
// role of a user. Lookups are pure integer arithmetic.
package campus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/campus-course-api/internal/models"
)

// Campus identifies one independently deployed shard.
type Campus string

const (
	A Campus = "A"
	B Campus = "B"
	C Campus = "C"
)

// All lists every campus in band order.
var All = []Campus{A, B, C}

const (
	// BandWidth is the number of course ids owned by each campus.
	BandWidth int64 = 100_000
	// roleBucket divides a user id into its role band.
	roleBucket int64 = 100_000_000

	minCourseID int64 = 1_000_000
	maxCourseID int64 = 1_300_000 // exclusive
	minUserID   int64 = 1_000_000_000
	maxUserID   int64 = 1_400_000_000 // exclusive
)

var floors = map[Campus]int64{A: 1_000_000, B: 1_100_000, C: 1_200_000}

// Valid reports whether c is one of the known campuses.
func (c Campus) Valid() bool {
	_, ok := floors[c]
	return ok
}

// Floor is the lowest course id in the campus band.
func Floor(c Campus) int64 {
	return floors[c]
}

// Ceiling is the highest course id in the campus band.
func Ceiling(c Campus) int64 {
	return floors[c] + BandWidth - 1
}

// CampusOf returns the campus owning courseID. Callers must check
// ValidCourseID first; anything outside bands 10 and 11 falls to C.
func CampusOf(courseID int64) Campus {
	switch courseID / BandWidth {
	case 10:
		return A
	case 11:
		return B
	default:
		return C
	}
}

// RoleOf derives a user's role from its id band.
func RoleOf(userID int64) models.UserRole {
	switch userID / roleBucket {
	case 10:
		return models.RoleAdmin
	case 11:
		return models.RoleStudent
	default:
		return models.RoleTeacher
	}
}

// ValidCourseID reports whether id falls inside any campus band.
func ValidCourseID(id int64) bool {
	return id >= minCourseID && id < maxCourseID
}

// ValidUserID reports whether id falls inside any role band.
func ValidUserID(id int64) bool {
	return id >= minUserID && id < maxUserID
}

// Parse converts a campus tag, case-insensitively.
func Parse(raw string) (Campus, error) {
	c := Campus(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown campus %q", raw)
	}
	return c, nil
}

// ParseSet parses a comma separated campus list, dropping duplicates. The
// result is sorted and never empty on success.
func ParseSet(raw string) ([]Campus, error) {
	seen := make(map[Campus]struct{}, len(All))
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := Parse(part)
		if err != nil {
			return nil, err
		}
		seen[c] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("campus set is empty")
	}
	out := make([]Campus, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Contains reports whether set includes c.
func Contains(set []Campus, c Campus) bool {
	for _, item := range set {
		if item == c {
			return true
		}
	}
	return false
}
