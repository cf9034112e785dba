package models

import (
	"strconv"
	"strings"
)

// Semester bezeichnet das Semester, in dem eine Klausur geschrieben wurde.
type Semester string

const (
	SemesterAutumn  Semester = "autumn"
	SemesterSpring  Semester = "spring"
	SemesterUnknown Semester = "unknown"
)

// ParseSemester bildet die bekannten Schreibweisen auf einen Semester-Wert
// ab. Die Funktion ist total: Unbekanntes fällt auf "unknown" zurück.
func ParseSemester(s string) Semester {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "autumn", "fall":
		return SemesterAutumn
	case "spring":
		return SemesterSpring
	default:
		return SemesterUnknown
	}
}

// Exam bezeichnet den Klausurtyp. Class-Tests tragen optional eine laufende
// Nummer ("ct3"); ohne Nummer steht "ct" für einen beliebigen Class-Test.
type Exam string

const (
	ExamMidsem    Exam = "midsem"
	ExamEndsem    Exam = "endsem"
	ExamClassTest Exam = "ct"
	ExamUnknown   Exam = "unknown"
)

// ParseExam bildet die beobachteten Schreibweisen auf einen Exam-Wert ab.
// Total wie ParseSemester: alles Unbekannte wird zu "unknown".
func ParseExam(s string) Exam {
	t := strings.ToLower(strings.TrimSpace(s))
	switch t {
	case "midsem", "mid-sem", "mid":
		return ExamMidsem
	case "endsem", "end-sem", "end", "final":
		return ExamEndsem
	}
	for _, prefix := range []string{"class-test", "classtest", "ct"} {
		if !strings.HasPrefix(t, prefix) {
			continue
		}
		rest := strings.TrimLeft(t[len(prefix):], "- ")
		if rest == "" {
			return ExamClassTest
		}
		if n, err := strconv.Atoi(rest); err == nil && n > 0 {
			return Exam("ct" + strconv.Itoa(n))
		}
		return ExamUnknown
	}
	return ExamUnknown
}

// IsClassTest meldet, ob der Wert ein Class-Test ist (mit oder ohne Nummer).
func (e Exam) IsClassTest() bool {
	return strings.HasPrefix(string(e), "ct")
}

// ClassTestNumber liefert die laufende Nummer eines Class-Tests, 0 wenn
// keine gesetzt ist.
func (e Exam) ClassTestNumber() int {
	if !e.IsClassTest() {
		return 0
	}
	n, err := strconv.Atoi(string(e)[2:])
	if err != nil {
		return 0
	}
	return n
}

// Origin unterscheidet vorab geprüfte Bibliotheks-Scans von öffentlichen
// Uploads, die erst durch die Review-Pipeline müssen.
type Origin string

const (
	OriginLibrary  Origin = "library"
	OriginUploaded Origin = "uploaded"
)

// Approval ist der Review-Status eines hochgeladenen Papers. "pending" ist
// ein vollwertiger Zustand, kein Null-Wert.
type Approval string

const (
	ApprovalPending  Approval = "pending"
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)
