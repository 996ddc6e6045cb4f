package model

import "time"

// Book is a catalog title. Physical instances are BookCopy rows.
type Book struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Authors       string    `json:"authors"`
	Publisher     string    `json:"publisher,omitempty"`
	PublishedYear int       `json:"published_year,omitempty"`
	Category      string    `json:"category,omitempty"`
	ISBN13        string    `json:"isbn13,omitempty"`
	Description   string    `json:"description,omitempty"`
	CoverMime     string    `json:"cover_mime,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Aggregates (not always populated).
	TotalCopies     int `json:"total_copies"`
	AvailableCopies int `json:"available_copies"`
}

// BookCopy is one physical, borrowable instance of a Book.
type BookCopy struct {
	ID        int64         `json:"id"`
	BookID    int64         `json:"book_id"`
	CopyCode  string        `json:"copy_code"`
	Condition CopyCondition `json:"condition"`
	Status    CopyStatus    `json:"status"`
	Location  string        `json:"location,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// Joined fields (not always populated).
	BookTitle string `json:"book_title,omitempty"`
}

// CopyStatus is the availability of a copy.
type CopyStatus string

// Copy statuses.
const (
	CopyAvailable CopyStatus = "available"
	CopyBorrowed  CopyStatus = "borrowed"
	CopyLost      CopyStatus = "lost"
)

// Valid reports whether s is a known copy status.
func (s CopyStatus) Valid() bool {
	switch s {
	case CopyAvailable, CopyBorrowed, CopyLost:
		return true
	}
	return false
}

// CopyCondition is the physical condition of a copy.
type CopyCondition string

// Copy conditions.
const (
	ConditionNew     CopyCondition = "new"
	ConditionGood    CopyCondition = "good"
	ConditionFair    CopyCondition = "fair"
	ConditionPoor    CopyCondition = "poor"
	ConditionDamaged CopyCondition = "damaged"
	ConditionLost    CopyCondition = "lost"
)

// Valid reports whether c is a known condition.
func (c CopyCondition) Valid() bool {
	switch c {
	case ConditionNew, ConditionGood, ConditionFair, ConditionPoor, ConditionDamaged, ConditionLost:
		return true
	}
	return false
}
