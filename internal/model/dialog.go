// Package model provides data models for the CallInsight platform.
package model

import (
	"time"
)

// Speaker identifies who produced an utterance within a dialogue.
type Speaker string

// Known speaker roles in a transcribed call.
const (
	SpeakerClient   Speaker = "client"
	SpeakerOperator Speaker = "operator"
	SpeakerUnknown  Speaker = "unknown"
)

// Dialog represents one recorded call-center conversation.
type Dialog struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	FullText    string    `json:"full_text" gorm:"type:text;not null"`
	Theme       string    `json:"theme" gorm:"type:varchar(255);index"` // Topical partition key
	Metadata    string    `json:"metadata,omitempty" gorm:"type:text"`  // JSON blob from the ingestion pipeline
	ProcessedAt time.Time `json:"processed_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Dialog.
func (Dialog) TableName() string {
	return "dialogs"
}

// Utterance is one speaker turn inside a dialogue, the atomic retrievable unit.
type Utterance struct {
	ID        int64   `json:"id" gorm:"primaryKey;autoIncrement"`
	DialogID  int64   `json:"dialog_id" gorm:"index;not null"`
	Speaker   Speaker `json:"speaker" gorm:"type:varchar(16);default:'unknown'"`
	Text      string  `json:"text" gorm:"type:text;not null"`
	TurnOrder int     `json:"turn_order" gorm:"not null"` // 1-based, unique within a dialogue
}

// TableName specifies the table name for Utterance.
func (Utterance) TableName() string {
	return "utterances"
}

// RetrievalCandidate 表示一条带有来源信息的检索候选。
// 每次查询临时构造，不落库。
type RetrievalCandidate struct {
	Utterance       Utterance `json:"utterance"`
	Theme           string    `json:"theme"`
	FullDialogText  string    `json:"full_dialog_text"`
	SimilarityScore float32   `json:"similarity_score"`
	RerankScore     *float64  `json:"rerank_score,omitempty"`
}

// AnalysisResult 表示一次分块分析的最终产出。
// Context 是可审计的上下文轨迹，即使全部 LLM 调用失败也必须存在。
type AnalysisResult struct {
	Answer  string `json:"answer"`
	Context string `json:"context"`
}

// CallbackDecision is one per-dialogue verdict produced by the callback
// policy classifiers. Category 0 means the analysis itself failed.
type CallbackDecision struct {
	DialogID        int64    `json:"dialog_id"`
	Category        int      `json:"category"`
	ClientPhrases   []string `json:"client_phrases"`
	OperatorPhrases []string `json:"operator_phrases"`
	Error           string   `json:"error,omitempty"`
}

// QARecord 持久化一次问答历史，供审计与复现。
type QARecord struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(32)"`
	Question       string    `json:"question" gorm:"type:text;not null"`
	Theme          string    `json:"theme" gorm:"type:varchar(255)"`
	Method         string    `json:"method" gorm:"type:varchar(64)"`
	Parameters     string    `json:"parameters,omitempty" gorm:"type:text"`
	Answer         string    `json:"answer" gorm:"type:text"`
	ContextSummary string    `json:"context_summary,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for QARecord.
func (QARecord) TableName() string {
	return "qa_pairs"
}

// CallbackPhrase 是回访短语库中的一条已验证短语。
type CallbackPhrase struct {
	ID        int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Phrase    string `json:"phrase" gorm:"type:text;not null"`
	Source    string `json:"source" gorm:"type:varchar(16);not null"` // client or operator
	Category  int    `json:"category" gorm:"not null"`
	Frequency int    `json:"frequency" gorm:"default:1"`
	Verified  bool   `json:"verified" gorm:"default:false"`
}

// TableName specifies the table name for CallbackPhrase.
func (CallbackPhrase) TableName() string {
	return "callback_phrases"
}
