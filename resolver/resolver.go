// Package resolver leitet Ablagepfade, Slugs und öffentliche URLs
// deterministisch aus Paper-Metadaten ab. Alle Funktionen sind rein und
// total: statt Fehlern gibt es Platzhalter.
package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"qpaper-archive/models"
)

// Kategorien entsprechen den Wurzelverzeichnissen der beiden Herkünfte.
const (
	CategoryLibrary  = "library"
	CategoryUploaded = "uploaded"
)

// placeholderCode wird für leere Course-Codes eingesetzt, damit die
// Abbildung auch auf kaputten Metadaten definiert bleibt.
const placeholderCode = "XX00000"

// Meta sind die pfadbestimmenden Felder eines Papers. Die ID stellt die
// Injektivität sicher, auch wenn alle anderen Felder kollidieren.
type Meta struct {
	CourseCode string
	Year       int
	Exam       models.Exam
	Semester   models.Semester
	ID         string
}

// Resolver kennt die Basis-URL, unter der die statischen Dateien ausgeliefert
// werden.
type Resolver struct {
	staticBaseURL string
}

func New(staticBaseURL string) *Resolver {
	return &Resolver{staticBaseURL: strings.TrimRight(staticBaseURL, "/")}
}

// Slugify entfernt alles Nicht-Alphanumerische und kollabiert jede Folge
// entfernter Zeichen zu genau einem Trennstrich.
func Slugify(in string) string {
	var b strings.Builder
	pending := false
	for _, r := range in {
		alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !alnum {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('-')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PathFor liefert den kanonischen Ablagepfad unterhalb des
// Kategorie-Wurzelverzeichnisses. Die Komponenten sind durch "_" getrennt;
// Slugify garantiert, dass keine Komponente selbst ein "_" enthält.
func (r *Resolver) PathFor(category string, m Meta) string {
	code := Slugify(strings.ToUpper(m.CourseCode))
	if code == "" {
		code = placeholderCode
	}
	exam := string(m.Exam)
	if exam == "" {
		exam = string(models.ExamUnknown)
	}
	sem := string(m.Semester)
	if sem == "" {
		sem = string(models.SemesterUnknown)
	}
	id := m.ID
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("%s/%s_%d_%s_%s_%s.pdf", category, code, m.Year, exam, sem, id)
}

// URLFor bildet einen Ablagepfad auf die öffentlich erreichbare URL ab.
// Reine String-Transformation, keine Existenzprüfung.
func (r *Resolver) URLFor(path string) string {
	return r.staticBaseURL + "/" + strings.TrimLeft(path, "/")
}

// SlugFromFilename ist die Umkehrung von PathFor: sie zerlegt einen zuvor
// erzeugten Dateinamen (mit oder ohne Kategorie-Präfix) wieder in Metadaten.
// Für alle von PathFor erzeugten Pfade gilt Round-Trip-Treue.
func (r *Resolver) SlugFromFilename(filename, category string) (Meta, bool) {
	name := strings.TrimPrefix(filename, category+"/")
	name = strings.TrimSuffix(name, ".pdf")
	parts := strings.Split(name, "_")
	if len(parts) != 5 {
		return Meta{}, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Meta{}, false
	}
	return Meta{
		CourseCode: parts[0],
		Year:       year,
		Exam:       models.ParseExam(parts[2]),
		Semester:   models.ParseSemester(parts[3]),
		ID:         parts[4],
	}, true
}
