package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// VariantLetters is the answer-option alphabet, in display order
const VariantLetters = "ABCDEFGHIJ"

// MaxVariants is the largest number of options a question may carry
const MaxVariants = len(VariantLetters)

type Variant struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

type Question struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Number        int            `json:"number" gorm:"uniqueIndex;not null"`
	Text          string         `json:"text" gorm:"type:text;not null"`
	Image         string         `json:"image,omitempty" gorm:"size:500"`
	VariantsJSON  datatypes.JSON `json:"-" gorm:"column:variants_json"`
	CorrectAnswer string         `json:"correct_answer" gorm:"size:1;not null"`

	// Four-option columns from the earliest schema. Only MigrateLegacyVariants reads them.
	VariantA string `json:"-" gorm:"column:variant_a;type:text"`
	VariantB string `json:"-" gorm:"column:variant_b;type:text"`
	VariantC string `json:"-" gorm:"column:variant_c;type:text"`
	VariantD string `json:"-" gorm:"column:variant_d;type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// Variants decodes the canonical option list. Undecodable data yields no options.
func (q *Question) Variants() []Variant {
	if len(q.VariantsJSON) == 0 {
		return nil
	}
	var variants []Variant
	if err := json.Unmarshal(q.VariantsJSON, &variants); err != nil {
		return nil
	}
	return variants
}

// SetVariants stores the option list in canonical form
func (q *Question) SetVariants(variants []Variant) error {
	if variants == nil {
		variants = []Variant{}
	}
	data, err := json.Marshal(variants)
	if err != nil {
		return err
	}
	q.VariantsJSON = datatypes.JSON(data)
	return nil
}

// HasVariant reports whether letter names one of the question's options
func (q *Question) HasVariant(letter string) bool {
	for _, v := range q.Variants() {
		if v.Letter == letter {
			return true
		}
	}
	return false
}

// Matches is the case-insensitive substring test used by search: question
// text, any option text, or the decimal question number.
func (q *Question) Matches(query string) bool {
	needle := strings.ToLower(query)
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(q.Text), needle) {
		return true
	}
	if strings.Contains(strconv.Itoa(q.Number), needle) {
		return true
	}
	for _, v := range q.Variants() {
		if strings.Contains(strings.ToLower(v.Text), needle) {
			return true
		}
	}
	return false
}

// MigrateLegacyVariants fills VariantsJSON from the legacy A-D columns when
// the canonical list is missing or unreadable. It reports whether q changed.
func MigrateLegacyVariants(q *Question) bool {
	if len(q.VariantsJSON) > 0 {
		var existing []Variant
		if err := json.Unmarshal(q.VariantsJSON, &existing); err == nil && len(existing) > 0 {
			return false
		}
	}

	var variants []Variant
	for i, text := range []string{q.VariantA, q.VariantB, q.VariantC, q.VariantD} {
		if strings.TrimSpace(text) == "" {
			continue
		}
		variants = append(variants, Variant{Letter: string(VariantLetters[i]), Text: text})
	}
	if len(variants) == 0 {
		return false
	}

	if err := q.SetVariants(variants); err != nil {
		return false
	}
	return true
}

// IsVariantLetter reports whether s is a single letter from the option alphabet
func IsVariantLetter(s string) bool {
	return len(s) == 1 && strings.Contains(VariantLetters, s)
}
