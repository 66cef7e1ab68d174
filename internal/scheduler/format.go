package scheduler

import "fmt"

var gradeDescriptions = [...]string{
	"Complete blackout",
	"Incorrect, but recognized answer",
	"Incorrect, but easy to recall",
	"Correct with serious difficulty",
	"Correct with hesitation",
	"Perfect response",
}

// GradeDescription returns the label shown next to a grade, or "" when the
// grade is off the scale.
func GradeDescription(grade int) string {
	if !ValidGrade(grade) {
		return ""
	}
	return gradeDescriptions[grade]
}

// FormatInterval renders an interval in days as "1 day", "3 weeks",
// "2 months" and so on. Weeks, months and years are whole-number divisions.
func FormatInterval(days int) string {
	switch {
	case days < 7:
		return plural(days, "day")
	case days < 14:
		return "1 week"
	case days < 30:
		return plural(days/7, "week")
	case days < 60:
		return "1 month"
	case days < 365:
		return plural(days/30, "month")
	default:
		return plural(days/365, "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
