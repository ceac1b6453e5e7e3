package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type (
	// Profile holds the optional descriptive attributes of an entity. A nil
	// field means "unknown" when read and "leave unchanged" when written.
	Profile struct {
		OCID     *string `json:"ocid,omitempty"`
		Level    *int    `json:"level,omitempty"`
		Job      *string `json:"job,omitempty"`
		Power    *int64  `json:"power,omitempty"`
		ImageURL *string `json:"image_url,omitempty"`
	}

	// Entity is a tracked character.
	Entity struct {
		Name string `json:"name"`
		Profile
	}

	// Task is a catalog entry (a boss) with its current price.
	Task struct {
		Name  string `json:"name"`
		Price int64  `json:"price"`
	}

	PriceChange struct {
		ID          int64     `json:"id"`
		Task        string    `json:"task"`
		Price       int64     `json:"price"`
		AppliedFrom WeekKey   `json:"applied_from"`
		Note        string    `json:"note"`
		RecordedAt  time.Time `json:"recorded_at"`
	}

	// CompletionRecord is one (week, entity, task) fact with its frozen price.
	CompletionRecord struct {
		Week    WeekKey `json:"week"`
		Entity  string  `json:"entity"`
		Task    string  `json:"task"`
		Price   int64   `json:"price"`
		Checked bool    `json:"checked"`
	}

	TaskCheck struct {
		Task    string `json:"task"`
		Price   int64  `json:"price"`
		Checked bool   `json:"checked"`
	}

	EntityWeek struct {
		Name  string      `json:"name"`
		Tasks []TaskCheck `json:"tasks"`
	}

	// WeekSnapshot lists every entity of a week with its tasks ordered by
	// price ascending.
	WeekSnapshot struct {
		Week     WeekKey      `json:"week"`
		Entities []EntityWeek `json:"entities"`
	}

	RolloverResult struct {
		Week     WeekKey `json:"week"`
		Previous WeekKey `json:"previous,omitempty"`
		Created  int     `json:"created"`
		// Skipped explains why nothing was copied; empty when a rollover ran.
		Skipped string `json:"skipped,omitempty"`
	}
)

const (
	SkipAlreadyRolled = "week already has records"
	SkipNoHistory     = "no earlier week to copy from"
)

// ErrInvalid is the root of every validation failure.
var ErrInvalid = errors.New("invalid input")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// ValidateName rejects blank and oversized names.
func ValidateName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > 100 {
		return &ValidationError{Field: field, Message: "too long (max 100 characters)"}
	}
	return nil
}

func ValidatePrice(price int64) error {
	if price < 0 {
		return &ValidationError{Field: "price", Message: "must not be negative"}
	}
	return nil
}

func (t Task) Validate() error {
	if err := ValidateName("task", t.Name); err != nil {
		return err
	}
	return ValidatePrice(t.Price)
}

// IsEmpty reports whether no attribute is set.
func (p Profile) IsEmpty() bool {
	return p.OCID == nil && p.Level == nil && p.Job == nil && p.Power == nil && p.ImageURL == nil
}

// Merge returns p with every nil field filled from base.
func (p Profile) Merge(base Profile) Profile {
	if p.OCID == nil {
		p.OCID = base.OCID
	}
	if p.Level == nil {
		p.Level = base.Level
	}
	if p.Job == nil {
		p.Job = base.Job
	}
	if p.Power == nil {
		p.Power = base.Power
	}
	if p.ImageURL == nil {
		p.ImageURL = base.ImageURL
	}
	return p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Entity returns the tasks of name in the snapshot, or false when absent.
func (s WeekSnapshot) Entity(name string) (EntityWeek, bool) {
	for _, e := range s.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return EntityWeek{}, false
}
