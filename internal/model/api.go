package model

import (
	"encoding/json"
	"fmt"
)

// MaxTextLen bounds the user text accepted by /invoke. Oversized inputs
// would blow up the embedding and classifier calls downstream.
const MaxTextLen = 8 * 1024

// TopicList accepts either a JSON string or a JSON array of strings.
// Upstream classifiers emit both shapes.
type TopicList []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TopicList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = TopicList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("model: topic must be a string or array of strings")
	}
	*t = TopicList(many)
	return nil
}

// InvokeRequest is the body of POST /invoke. QA and Topic are optional
// overrides; when absent the router classifies the text itself.
type InvokeRequest struct {
	Text     string    `json:"text"`
	FlowType FlowType  `json:"flow_type"`
	QA       QAType    `json:"qa,omitempty"`
	Topic    TopicList `json:"topic,omitempty"`
}

// InvokeResponse is the unified response shape of both flows.
// FinalChunks is always present, empty rather than null.
type InvokeResponse struct {
	UserQuery   string       `json:"user_query"`
	FinalChunks []FinalChunk `json:"final_chunks"`
	Inserted    bool         `json:"inserted"`
}

// CreateProfileRequest is the body of POST /v1/profiles.
type CreateProfileRequest struct {
	Name          string `json:"name"`
	Gender        string `json:"gender,omitempty"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
	Nationality   string `json:"nationality,omitempty"`
	Dialect       string `json:"dialect,omitempty"`
	MaritalStatus string `json:"marital_status,omitempty"`
	Address       string `json:"address,omitempty"`
}

// InsertLongTermRequest is the body of POST /v1/memories/long-term.
type InsertLongTermRequest struct {
	ElderlyID string `json:"elderly_id"`
	Category  string `json:"category"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// InsertHealthcareRequest is the body of POST /v1/memories/healthcare.
type InsertHealthcareRequest struct {
	ElderlyID     string `json:"elderly_id"`
	RecordType    string `json:"record_type"`
	Description   string `json:"description"`
	DiagnosisDate string `json:"diagnosis_date,omitempty"`
}
