// Package model defines the domain types shared across the service:
// memory buckets, retrieval candidates, final chunks, and API payloads.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Bucket identifies one of the three typed memory stores.
type Bucket string

const (
	BucketShortTerm  Bucket = "short-term"
	BucketLongTerm   Bucket = "long-term"
	BucketHealthcare Bucket = "healthcare"
)

// Valid reports whether b is one of the known buckets.
func (b Bucket) Valid() bool {
	switch b {
	case BucketShortTerm, BucketLongTerm, BucketHealthcare:
		return true
	}
	return false
}

// QAType is the outcome of the question/statement classifier.
type QAType string

const (
	QAQuestion  QAType = "question"
	QAStatement QAType = "statement"
)

// FlowType selects which orchestration graph serves a request.
type FlowType string

const (
	FlowOffline FlowType = "offline"
	FlowOnline  FlowType = "online"
)

// LTMCategory enumerates the long-term memory categories.
type LTMCategory string

const (
	LTMPersonal  LTMCategory = "personal"
	LTMFamily    LTMCategory = "family"
	LTMEducation LTMCategory = "education"
	LTMCareer    LTMCategory = "career"
	LTMLifestyle LTMCategory = "lifestyle"
	LTMFinance   LTMCategory = "finance"
	LTMLegal     LTMCategory = "legal"
)

// Valid reports whether c is a known long-term category.
func (c LTMCategory) Valid() bool {
	switch c {
	case LTMPersonal, LTMFamily, LTMEducation, LTMCareer, LTMLifestyle, LTMFinance, LTMLegal:
		return true
	}
	return false
}

// RecordType enumerates healthcare record types.
type RecordType string

const (
	RecordCondition   RecordType = "condition"
	RecordProcedure   RecordType = "procedure"
	RecordAppointment RecordType = "appointment"
	RecordMedication  RecordType = "medication"
)

// Valid reports whether r is a known healthcare record type.
func (r RecordType) Valid() bool {
	switch r {
	case RecordCondition, RecordProcedure, RecordAppointment, RecordMedication:
		return true
	}
	return false
}

// Candidate is a retrieval hit carried through fusion and reranking.
// Only the field group for its bucket is populated; the score fields are
// filled in progressively (bucket search, then reranker) and are stripped
// when the candidate is converted to a FinalChunk.
type Candidate struct {
	ID     uuid.UUID
	Bucket Bucket

	// Short-term fields.
	Content   string
	CreatedAt *time.Time

	// Long-term fields.
	Category string
	Key      string
	Value    string

	// Healthcare fields.
	RecordType    string
	Description   string
	DiagnosisDate *time.Time

	// Shared by long-term and healthcare rows.
	LastUpdated *time.Time

	Embedding pgvector.Vector

	// Scores.
	EmbScore     float64
	BM25Score    float64
	HybridScore  float64
	RecencyScore float64
	CEScore      float64
	MMRScore     float64
}

// Text returns the candidate's rerankable text: content for short-term
// rows, value for long-term rows, description for healthcare rows.
// ok is false when the candidate carries no usable text.
func (c Candidate) Text() (text string, ok bool) {
	switch {
	case c.Content != "":
		return c.Content, true
	case c.Value != "":
		return c.Value, true
	case c.Description != "":
		return c.Description, true
	}
	return "", false
}

// Timestamp returns the candidate's recency anchor: created_at for
// short-term rows, last_updated otherwise. ok is false when the row
// carries no timestamp; such candidates score zero recency.
func (c Candidate) Timestamp() (ts time.Time, ok bool) {
	if c.CreatedAt != nil {
		return *c.CreatedAt, true
	}
	if c.LastUpdated != nil {
		return *c.LastUpdated, true
	}
	return time.Time{}, false
}

// FinalChunk returns the score-free representation returned to callers.
func (c Candidate) FinalChunk() FinalChunk {
	return FinalChunk{
		ID:            c.ID,
		Bucket:        c.Bucket,
		Content:       c.Content,
		CreatedAt:     c.CreatedAt,
		Category:      c.Category,
		Key:           c.Key,
		Value:         c.Value,
		RecordType:    c.RecordType,
		Description:   c.Description,
		DiagnosisDate: c.DiagnosisDate,
		LastUpdated:   c.LastUpdated,
	}
}

// FinalChunk is a reranked memory with all internal scores stripped.
// Empty field groups are omitted from JSON so each chunk carries only
// its bucket's payload.
type FinalChunk struct {
	ID            uuid.UUID  `json:"id"`
	Bucket        Bucket     `json:"bucket"`
	Content       string     `json:"content,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	Category      string     `json:"category,omitempty"`
	Key           string     `json:"key,omitempty"`
	Value         string     `json:"value,omitempty"`
	RecordType    string     `json:"record_type,omitempty"`
	Description   string     `json:"description,omitempty"`
	DiagnosisDate *time.Time `json:"diagnosis_date,omitempty"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
}

// Profile is an elderly profile row. Sensitive fields are stored
// encrypted at rest; this struct always holds plaintext.
type Profile struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Gender        string     `json:"gender,omitempty"`
	DateOfBirth   string     `json:"date_of_birth,omitempty"`
	Nationality   string     `json:"nationality,omitempty"`
	Dialect       string     `json:"dialect,omitempty"`
	MaritalStatus string     `json:"marital_status,omitempty"`
	Address       string     `json:"address,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}
