// Package search bewertet und ordnet Paper gegen eine freie Kurs-Query plus
// optionale strukturierte Filter. Das Ranking ist rein und deterministisch:
// identische Eingaben über demselben Korpus-Schnappschuss liefern immer
// dieselbe Reihenfolge.
package search

import (
	"sort"
	"strings"

	"qpaper-archive/models"
)

// Score-Bänder in Präzedenzreihenfolge. Ein Course-Code-Treffer schlägt
// jeden Namens-Treffer, ein voller Namens-Treffer jeden partiellen.
const (
	scoreCodeExact  = 1000.0
	scoreCodePrefix = 800.0
	scoreNameFull   = 600.0
	scoreNamePart   = 400.0
)

// Filters sind die optionalen strukturierten Filter einer Suche.
// Exam kennt neben den Klausurtypen die Sammelwerte "midend" (Mid- oder
// Endsem), "ct" (beliebiger Class-Test) und ""/"any".
type Filters struct {
	Exam     string
	Year     int
	Semester models.Semester
}

// Hit ist ein bewerteter Treffer.
type Hit struct {
	Paper models.Paper
	Score float64
}

// Rank bewertet alle Kandidaten gegen die Query und liefert die Treffer
// absteigend sortiert. Eine leere Query liefert keine Treffer: Suche ist
// kein Browse-All.
func Rank(papers []models.Paper, query string, f Filters) []Hit {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	codeQuery := strings.ToUpper(Compact(query))
	nameTokens := tokenize(query)

	hits := make([]Hit, 0, len(papers))
	for _, p := range papers {
		if !matchesFilters(p, f) {
			continue
		}
		score := scorePaper(p, codeQuery, nameTokens)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{Paper: p, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Paper.Year != b.Paper.Year {
			return a.Paper.Year > b.Paper.Year
		}
		// Bibliotheks-Scans gelten als kanonisch und gewinnen den Tie.
		if a.Paper.Origin != b.Paper.Origin {
			return a.Paper.Origin == models.OriginLibrary
		}
		return a.Paper.ID.String() < b.Paper.ID.String()
	})
	return hits
}

// Compact entfernt Leerzeichen und Bindestriche, damit "CS 10001" und
// "cs-10001" denselben Code treffen.
func Compact(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return -1
		}
		return r
	}, s)
}

func matchesFilters(p models.Paper, f Filters) bool {
	if f.Year != 0 && p.Year != f.Year {
		return false
	}
	if f.Semester != "" && f.Semester != models.SemesterUnknown && p.Semester != f.Semester {
		return false
	}
	switch strings.ToLower(f.Exam) {
	case "", "any":
		return true
	case "midsem":
		return p.Exam == models.ExamMidsem
	case "endsem":
		return p.Exam == models.ExamEndsem
	case "midend":
		return p.Exam == models.ExamMidsem || p.Exam == models.ExamEndsem
	case "ct", "classtest", "class-test":
		return p.Exam.IsClassTest()
	default:
		// Konkreter Class-Test wie "ct3".
		return string(p.Exam) == strings.ToLower(f.Exam)
	}
}

// scorePaper wendet die Präzedenzregel an: exakter Code > Code-Präfix >
// voller Namens-Treffer > partieller Namens-Treffer.
func scorePaper(p models.Paper, codeQuery string, nameTokens []string) float64 {
	code := strings.ToUpper(Compact(p.CourseCode))
	if codeQuery != "" && code != "" {
		if codeQuery == code {
			return scoreCodeExact
		}
		if len(codeQuery) >= 2 && strings.HasPrefix(code, codeQuery) {
			// Längere Präfixe sind spezifischer und ranken höher.
			return scoreCodePrefix + float64(len(codeQuery))/float64(len(code))*100
		}
	}
	return scoreName(p.CourseName, nameTokens)
}

// scoreName misst Token-Überlappung zwischen Query und Kursnamen, tolerant
// gegenüber Wortanfängen und kleinen Tippfehlern.
func scoreName(name string, queryTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	nameTokens := tokenize(name)
	if len(nameTokens) == 0 {
		return 0
	}

	total := 0.0
	allExact := true
	matched := 0
	for _, q := range queryTokens {
		best := 0.0
		exact := false
		for _, w := range nameTokens {
			switch {
			case q == w:
				best, exact = 1.0, true
			case best < 0.8 && len(q) >= 3 && strings.HasPrefix(w, q):
				best = 0.8
			case best < 0.6 && closeEnough(q, w):
				best = 0.6
			}
			if exact {
				break
			}
		}
		if best > 0 {
			matched++
		}
		if !exact {
			allExact = false
		}
		total += best
	}
	if matched == 0 {
		return 0
	}

	coverage := total / float64(len(queryTokens))
	if allExact {
		return scoreNameFull + coverage*100
	}
	return scoreNamePart * coverage
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		return !alnum
	})
}

// closeEnough akzeptiert kleine Tippfehler: Editierdistanz 1 ab vier
// Zeichen, 2 ab sieben Zeichen.
func closeEnough(a, b string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var allowed int
	switch {
	case n >= 7:
		allowed = 2
	case n >= 4:
		allowed = 1
	default:
		return false
	}
	return levenshtein(a, b) <= allowed
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
