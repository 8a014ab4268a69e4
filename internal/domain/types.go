package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Language is the detected language of a transcript.
type Language string

const (
	LanguageJapanese Language = "ja"
	LanguageKorean   Language = "ko"
)

// Category is the validated classification of a consultation. The zero value
// is not a category; Unclassified is a sentinel that halts report generation.
type Category string

const (
	CategoryPlasticSurgery Category = "plastic_surgery"
	CategoryDermatology    Category = "dermatology"
	Unclassified           Category = "unclassified"
)

// ParseCategory maps free-form model output onto a Category. Anything that is
// not one of the two report categories becomes Unclassified.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryPlasticSurgery:
		return CategoryPlasticSurgery
	case CategoryDermatology:
		return CategoryDermatology
	default:
		return Unclassified
	}
}

// Reportable reports whether reports can be written for c.
func (c Category) Reportable() bool {
	return c == CategoryPlasticSurgery || c == CategoryDermatology
}

// Classification is the output of the classifier and validator stages.
type Classification struct {
	Category   Category `json:"classification"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// CTALevel estimates purchase/visit intent. Ordered cool < warm < hot.
type CTALevel string

const (
	CTACool CTALevel = "cool"
	CTAWarm CTALevel = "warm"
	CTAHot  CTALevel = "hot"
)

// ParseCTALevel normalizes a model-produced level, defaulting to cool.
func ParseCTALevel(s string) CTALevel {
	switch CTALevel(strings.ToLower(strings.TrimSpace(s))) {
	case CTAHot:
		return CTAHot
	case CTAWarm:
		return CTAWarm
	default:
		return CTACool
	}
}

// Rank orders levels for comparison.
func (l CTALevel) Rank() int {
	switch l {
	case CTAHot:
		return 2
	case CTAWarm:
		return 1
	default:
		return 0
	}
}

// Status is the consultation lifecycle state.
type Status string

const (
	StatusRegistered            Status = "registered"
	StatusReportGenerating      Status = "report_generating"
	StatusReportReady           Status = "report_ready"
	StatusReportFailed          Status = "report_failed"
	StatusClassificationPending Status = "classification_pending"
	StatusReportApproved        Status = "report_approved"
	StatusSent                  Status = "sent"
)

// Speaker roles produced by the preprocessor and CTA analyzer.
const (
	SpeakerCounselor = "counselor"
	SpeakerCustomer  = "customer"
)

type SpeakerSegment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type HospitalMention struct {
	Name         string   `json:"name"`
	Procedures   []string `json:"procedures"`
	Advantages   []string `json:"advantages"`
	PriceInfo    string   `json:"price_info"`
	RecoveryInfo string   `json:"recovery_info"`
	OtherDetails string   `json:"other_details"`
}

// Intent is the structured intent extraction of a consultation.
type Intent struct {
	MainConcerns        []string          `json:"main_concerns"`
	DesiredDirection    string            `json:"desired_direction"`
	Unwanted            []string          `json:"unwanted"`
	MentionedProcedures []string          `json:"mentioned_procedures"`
	BodyParts           []string          `json:"body_parts"`
	Keywords            []string          `json:"keywords"`
	HospitalMentions    []HospitalMention `json:"hospital_mentions"`
}

// Normalize replaces nil lists with empty ones so the persisted JSON always
// carries every key as an array.
func (i *Intent) Normalize() {
	i.MainConcerns = nonNil(i.MainConcerns)
	i.Unwanted = nonNil(i.Unwanted)
	i.MentionedProcedures = nonNil(i.MentionedProcedures)
	i.BodyParts = nonNil(i.BodyParts)
	i.Keywords = nonNil(i.Keywords)
	if i.HospitalMentions == nil {
		i.HospitalMentions = []HospitalMention{}
	}
	for k := range i.HospitalMentions {
		i.HospitalMentions[k].Procedures = nonNil(i.HospitalMentions[k].Procedures)
		i.HospitalMentions[k].Advantages = nonNil(i.HospitalMentions[k].Advantages)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Consultation is the unit of work owned by the pipeline during a run.
type Consultation struct {
	ID                       uuid.UUID        `json:"id"`
	CustomerName             string           `json:"customer_name"`
	CustomerEmail            string           `json:"customer_email"`
	OriginalText             string           `json:"original_text"`
	InputLanguage            Language         `json:"input_language,omitempty"`
	TranslatedText           string           `json:"translated_text,omitempty"`
	Intent                   *Intent          `json:"intent_extraction,omitempty"`
	Classification           Category         `json:"classification,omitempty"`
	ClassificationConfidence float64          `json:"classification_confidence"`
	ClassificationReason     string           `json:"classification_reason,omitempty"`
	IsManuallyClassified     bool             `json:"is_manually_classified"`
	CTALevel                 CTALevel         `json:"cta_level,omitempty"`
	CTASignals               []string         `json:"cta_signals,omitempty"`
	SpeakerSegments          []SpeakerSegment `json:"speaker_segments,omitempty"`
	CustomerUtterances       string           `json:"customer_utterances,omitempty"`
	Status                   Status           `json:"status"`
	ErrorMessage             string           `json:"error_message,omitempty"`
	CreatedAt                time.Time        `json:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at"`
}

// SourceKind is the provenance of a retrieved passage.
type SourceKind string

const (
	SourceYouTube SourceKind = "youtube"
	SourcePubMed  SourceKind = "pubmed"
)

// Candidate is a retrieved FAQ passage. Similarity is query-relative.
type Candidate struct {
	ID             string     `json:"id"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	ProcedureName  string     `json:"procedure_name"`
	Category       string     `json:"category"`
	Similarity     float64    `json:"similarity"`
	SourceType     SourceKind `json:"source_type"`
	YouTubeTitle   string     `json:"youtube_title,omitempty"`
	YouTubeVideoID string     `json:"youtube_video_id,omitempty"`
	YouTubeURL     string     `json:"youtube_url,omitempty"`
	PaperTitle     string     `json:"paper_title,omitempty"`
	PMID           string     `json:"pmid,omitempty"`
}

// ReportType is the closed set of report variants.
type ReportType string

const (
	ReportDoctor     ReportType = "r1"
	ReportOperations ReportType = "r2"
	ReportExecutive  ReportType = "r3"
	ReportCustomer   ReportType = "r4"
)

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

const (
	ReportDraft    ReportStatus = "draft"
	ReportApproved ReportStatus = "approved"
	ReportSent     ReportStatus = "sent"
	ReportRejected ReportStatus = "rejected"
)

// Report is the persisted form of a generated report.
type Report struct {
	ID              uuid.UUID       `json:"id"`
	ConsultationID  uuid.UUID       `json:"consultation_id"`
	Type            ReportType      `json:"report_type"`
	Data            json.RawMessage `json:"report_data"`
	DataKo          json.RawMessage `json:"report_data_ko,omitempty"`
	RAGContext      []Candidate     `json:"rag_context"`
	ReviewCount     int             `json:"review_count"`
	ReviewPassed    bool            `json:"review_passed"`
	Status          ReportStatus    `json:"status"`
	AccessToken     string          `json:"access_token,omitempty"`
	AccessExpiresAt time.Time       `json:"access_expires_at"`
	ReviewNotes     string          `json:"review_notes,omitempty"`
	EmailOpenedAt   *time.Time      `json:"email_opened_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StageLog is one append-only audit entry per pipeline stage execution.
type StageLog struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	Agent          string    `json:"agent_name"`
	Input          any       `json:"input_data,omitempty"`
	Output         any       `json:"output_data,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

const (
	StageSuccess = "success"
	StageFailed  = "failed"
)
