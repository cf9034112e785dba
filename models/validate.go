package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// courseCodeShape: zwei Buchstaben gefolgt von fünf Ziffern, z.B. CS10001.
var courseCodeShape = regexp.MustCompile(`^[A-Z]{2}[0-9]{5}$`)

// ValidationError beschreibt fehlerhafte Metadaten. Solche Fehler werden an
// der Eingangsgrenze erkannt und erreichen den Store nie.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Canonicalize bringt die Metadaten in ihre kanonische Form (Course-Code in
// Großbuchstaben, Enums über die toleranten Parser).
func (m *Meta) Canonicalize() {
	m.CourseCode = strings.ToUpper(strings.TrimSpace(m.CourseCode))
	m.CourseName = strings.TrimSpace(m.CourseName)
	m.Semester = ParseSemester(string(m.Semester))
	m.Exam = ParseExam(string(m.Exam))
}

// Validate prüft die kanonisierten Metadaten und liefert einen
// ValidationError für das erste beanstandete Feld.
func (m *Meta) Validate() error {
	if !courseCodeShape.MatchString(m.CourseCode) {
		return &ValidationError{Field: "course_code", Reason: "expected two letters followed by five digits"}
	}
	if m.Year < 1951 || m.Year > time.Now().Year() {
		return &ValidationError{Field: "year", Reason: fmt.Sprintf("must be between 1951 and %d", time.Now().Year())}
	}
	return nil
}
