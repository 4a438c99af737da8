package survey

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	minClass      = 1
	maxClass      = 12
	maxRollLength = 20
)

var (
	codePattern    = regexp.MustCompile(`^\d{3,}$`)
	classPattern   = regexp.MustCompile(`^\d+$`)
	sectionPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)
)

// UniqueIDFormat describes the natural key layout for error messages.
const UniqueIDFormat = "{district_code}-{school_code}-{class}-{section}-{roll_no}"

// UniqueID is the parsed natural key of a survey record.
type UniqueID struct {
	DistrictCode string
	SchoolCode   string
	Class        int
	Section      string
	RollNo       string
}

// String renders the identifier in its canonical hyphenated form.
func (u UniqueID) String() string {
	return strings.Join([]string{
		u.DistrictCode,
		u.SchoolCode,
		strconv.Itoa(u.Class),
		u.Section,
		u.RollNo,
	}, "-")
}

// ValidateUniqueID reports whether id is a well-formed natural survey key.
func ValidateUniqueID(id string) bool {
	_, ok := ParseUniqueID(id)
	return ok
}

// ParseUniqueID splits id into its five segments. The boolean is false for
// any deviation from the format; no error is produced.
func ParseUniqueID(id string) (UniqueID, bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		return UniqueID{}, false
	}
	district, school, class, section, roll := parts[0], parts[1], parts[2], parts[3], parts[4]

	if !codePattern.MatchString(district) || !codePattern.MatchString(school) {
		return UniqueID{}, false
	}
	if !classPattern.MatchString(class) {
		return UniqueID{}, false
	}
	classNum, err := strconv.Atoi(class)
	if err != nil || classNum < minClass || classNum > maxClass {
		return UniqueID{}, false
	}
	if !sectionPattern.MatchString(section) {
		return UniqueID{}, false
	}
	if !validRoll(roll) {
		return UniqueID{}, false
	}
	return UniqueID{
		DistrictCode: district,
		SchoolCode:   school,
		Class:        classNum,
		Section:      section,
		RollNo:       roll,
	}, true
}

func validRoll(roll string) bool {
	if !utf8.ValidString(roll) {
		return false
	}
	n := utf8.RuneCountInString(roll)
	if n < 1 || n > maxRollLength {
		return false
	}
	return !strings.ContainsAny(roll, "\n\r\u2028\u2029")
}
