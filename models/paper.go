package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Paper repräsentiert eine archivierte Klausur mit ihren Metadaten.
// Der Ablageort der Datei wird nie gespeichert, sondern immer aus den
// Metadaten abgeleitet (siehe resolver-Paket).
type Paper struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"upload_timestamp"`
	UpdatedAt time.Time `json:"updated_at"`

	CourseCode string `json:"course_code" gorm:"index;not null"`
	CourseName string `json:"course_name" gorm:"index"`
	Year       int    `json:"year" gorm:"index"`

	Semester Semester `json:"semester" gorm:"default:'unknown'"`
	Exam     Exam     `json:"exam" gorm:"default:'unknown'"`

	Origin   Origin   `json:"origin" gorm:"index;not null"`
	Approval Approval `json:"approval_state" gorm:"index;default:'pending'"`

	// Soft-Delete-Flag, unabhängig vom Approval-Status. Ein gelöschtes
	// Paper bleibt über seine ID adressierbar.
	Deleted   bool       `json:"deleted" gorm:"index;default:false"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Paper) TableName() string {
	return "papers"
}

// BeforeCreate vergibt die ID, falls noch keine gesetzt ist.
func (p *Paper) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Meta bündelt die vom Client gelieferten, veränderbaren Metadaten eines
// Papers. Origin, Approval und Deleted gehören bewusst nicht dazu.
type Meta struct {
	CourseCode string   `json:"course_code"`
	CourseName string   `json:"course_name"`
	Year       int      `json:"year"`
	Semester   Semester `json:"semester"`
	Exam       Exam     `json:"exam"`
}
