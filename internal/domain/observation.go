package domain

import "time"

// Observation records are created by bootstrap so the rest of the
// application finds its tables; this service does not query them.

type SchoolYear struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"uniqueIndex;size:64" json:"name"`
	StartYear int    `json:"start_year"`
	EndYear   int    `json:"end_year"`
}

type Person struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SchoolYearID uint       `gorm:"not null;index" json:"school_year_id"`
	SchoolYear   SchoolYear `json:"-"`
	FirstName    string     `gorm:"size:255;not null" json:"first_name"`
	LastName     string     `gorm:"size:255;not null" json:"last_name"`
	FullName     string     `gorm:"size:255;not null" json:"full_name"`
	ExternalID   *string    `gorm:"size:255" json:"external_id,omitempty"`
}

func (Person) TableName() string { return "persons" }

type Category struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Key          string    `gorm:"uniqueIndex;size:128" json:"key"`
	Label        string    `gorm:"size:255" json:"label"`
	Description  string    `gorm:"type:text" json:"description"`
	ParentID     *uint     `gorm:"index" json:"parent_id,omitempty"`
	Parent       *Category `json:"-"`
	DisplayOrder int       `json:"display_order"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
}

type Observation struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	PersonID     uint       `gorm:"not null;index" json:"person_id"`
	Person       Person     `json:"-"`
	CategoryID   uint       `gorm:"not null;index" json:"category_id"`
	Category     Category   `json:"-"`
	ObservedAt   time.Time  `gorm:"type:date;not null" json:"observed_at"`
	SchoolYearID uint       `gorm:"not null;index" json:"school_year_id"`
	SchoolYear   SchoolYear `json:"-"`
	Score        *int       `json:"score,omitempty"`
	Comment      *string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
