package report

import (
	"github.com/ippeo/consultd/internal/domain"
)

// Document is a generated report. Every report type has a fixed section
// layout; normalize guarantees all list fields serialize as arrays.
type Document interface {
	ReportType() domain.ReportType
	setDate(string)
	normalize()
}

type Points struct {
	Points []string `json:"points"`
}

// CustomerReport (r4) is the ten-section report delivered to the customer.
type CustomerReport struct {
	Title              string              `json:"title"`
	Date               string              `json:"date"`
	KeySummary         Points              `json:"section1_key_summary"`
	CauseAnalysis      CauseAnalysis       `json:"section2_cause_analysis"`
	Recommendation     Recommendation      `json:"section3_recommendation"`
	Recovery           Recovery            `json:"section4_recovery"`
	ScarInfo           Points              `json:"section5_scar_info"`
	Precautions        Points              `json:"section6_precautions"`
	Risks              Points              `json:"section7_risks"`
	CostEstimate       CostEstimate        `json:"section8_cost_estimate"`
	VisitDate          VisitDate           `json:"section9_visit_date"`
	ClosingMessage     ClosingMessage      `json:"section10_ippeo_message"`
	HospitalComparison *HospitalComparison `json:"hospital_comparison,omitempty"`
}

type CauseAnalysis struct {
	Intro      string   `json:"intro"`
	Causes     []string `json:"causes"`
	Conclusion string   `json:"conclusion"`
}

type RecommendationTier struct {
	Label string   `json:"label"`
	Items []string `json:"items"`
}

type Recommendation struct {
	Primary   RecommendationTier `json:"primary"`
	Secondary RecommendationTier `json:"secondary"`
	Goal      string             `json:"goal"`
}

type RecoveryStep struct {
	Period string `json:"period"`
	Detail string `json:"detail"`
}

type Recovery struct {
	Timeline []RecoveryStep `json:"timeline"`
	Note     *string        `json:"note"`
}

// CostEstimate items must only carry amounts stated in the consultation.
type CostEstimate struct {
	Items    []string `json:"items"`
	Includes *string  `json:"includes"`
	Note     *string  `json:"note"`
}

type VisitDate struct {
	Date string  `json:"date"`
	Note *string `json:"note"`
}

// ClosingMessage paragraphs follow a fixed arc: hurdle-lowering, future
// image, emotional payoff, reassurance, call to action.
type ClosingMessage struct {
	Paragraphs   []string `json:"paragraphs"`
	FinalSummary string   `json:"final_summary"`
}

type HospitalEntry struct {
	Name         string   `json:"name"`
	Procedures   []string `json:"procedures"`
	Advantages   []string `json:"advantages"`
	PriceInfo    string   `json:"price_info"`
	RecoveryInfo string   `json:"recovery_info"`
	OtherDetails string   `json:"other_details"`
}

type HospitalComparison struct {
	Hospitals []HospitalEntry `json:"hospitals"`
	Summary   string          `json:"summary"`
}

func (r *CustomerReport) ReportType() domain.ReportType { return domain.ReportCustomer }
func (r *CustomerReport) setDate(d string)              { r.Date = d }

func (r *CustomerReport) normalize() {
	r.KeySummary.Points = strs(r.KeySummary.Points)
	r.CauseAnalysis.Causes = strs(r.CauseAnalysis.Causes)
	r.Recommendation.Primary.Items = strs(r.Recommendation.Primary.Items)
	r.Recommendation.Secondary.Items = strs(r.Recommendation.Secondary.Items)
	if r.Recovery.Timeline == nil {
		r.Recovery.Timeline = []RecoveryStep{}
	}
	r.ScarInfo.Points = strs(r.ScarInfo.Points)
	r.Precautions.Points = strs(r.Precautions.Points)
	r.Risks.Points = strs(r.Risks.Points)
	r.CostEstimate.Items = strs(r.CostEstimate.Items)
	r.ClosingMessage.Paragraphs = strs(r.ClosingMessage.Paragraphs)
	if hc := r.HospitalComparison; hc != nil {
		if hc.Hospitals == nil {
			hc.Hospitals = []HospitalEntry{}
		}
		for i := range hc.Hospitals {
			hc.Hospitals[i].Procedures = strs(hc.Hospitals[i].Procedures)
			hc.Hospitals[i].Advantages = strs(hc.Hospitals[i].Advantages)
		}
	}
}

// DoctorBrief (r1) prepares the clinician. It never carries cost data.
type DoctorBrief struct {
	Title               string              `json:"title"`
	Date                string              `json:"date"`
	PatientOverview     PatientOverview     `json:"section1_patient_overview"`
	ChiefComplaints     ChiefComplaints     `json:"section2_chief_complaints"`
	MentionedProcedures MentionedProcedures `json:"section3_mentioned_procedures"`
	MedicalContext      MedicalContext      `json:"section4_medical_context"`
	PatientConcerns     PatientConcerns     `json:"section5_patient_concerns"`
	VisitIntent         VisitIntent         `json:"section6_visit_intent"`
	DoctorNotes         DoctorNotes         `json:"section7_doctor_notes"`
}

type PatientOverview struct {
	Name             string `json:"name"`
	Classification   string `json:"classification"`
	CTALevel         string `json:"cta_level"`
	ConsultationDate string `json:"consultation_date"`
	Summary          string `json:"summary"`
}

type ChiefComplaints struct {
	Summary string   `json:"summary"`
	Points  []string `json:"points"`
}

type ProcedureMention struct {
	Name            string `json:"name"`
	Context         string `json:"context"`
	PatientAttitude string `json:"patient_attitude"`
}

type MentionedProcedures struct {
	Procedures []ProcedureMention `json:"procedures"`
}

type MedicalContext struct {
	CurrentState   string   `json:"current_state"`
	RelatedHistory *string  `json:"related_history"`
	KeyConcerns    []string `json:"key_concerns"`
}

type Concern struct {
	Concern  string `json:"concern"`
	Priority string `json:"priority"`
}

type PatientConcerns struct {
	Concerns []Concern `json:"concerns"`
}

type VisitIntent struct {
	CTALevel      string   `json:"cta_level"`
	Evidence      []string `json:"evidence"`
	ExpectedVisit string   `json:"expected_visit"`
}

type DoctorNotes struct {
	PreliminaryOpinion string   `json:"preliminary_opinion"`
	RecommendedTests   []string `json:"recommended_tests"`
	Cautions           []string `json:"cautions"`
}

func (r *DoctorBrief) ReportType() domain.ReportType { return domain.ReportDoctor }
func (r *DoctorBrief) setDate(d string) {
	r.Date = d
	r.PatientOverview.ConsultationDate = d
}

func (r *DoctorBrief) normalize() {
	r.ChiefComplaints.Points = strs(r.ChiefComplaints.Points)
	if r.MentionedProcedures.Procedures == nil {
		r.MentionedProcedures.Procedures = []ProcedureMention{}
	}
	r.MedicalContext.KeyConcerns = strs(r.MedicalContext.KeyConcerns)
	if r.PatientConcerns.Concerns == nil {
		r.PatientConcerns.Concerns = []Concern{}
	}
	r.VisitIntent.Evidence = strs(r.VisitIntent.Evidence)
	r.DoctorNotes.RecommendedTests = strs(r.DoctorNotes.RecommendedTests)
	r.DoctorNotes.Cautions = strs(r.DoctorNotes.Cautions)
}

// OperationsBrief (r2) plans resources for the consultation director. Every
// cost figure is an estimate and flagged as such.
type OperationsBrief struct {
	Title                string               `json:"title"`
	Date                 string               `json:"date"`
	ProcedureSummary     ProcedureSummary     `json:"section1_procedure_summary"`
	ResourceRequirements ResourceRequirements `json:"section2_resource_requirements"`
	CostPlanning         CostPlanning         `json:"section3_cost_planning"`
	Scheduling           Scheduling           `json:"section4_scheduling"`
	PatientReadiness     PatientReadiness     `json:"section5_patient_readiness"`
}

type PlannedProcedure struct {
	Name     string `json:"name"`
	Priority string `json:"priority"`
	Note     string `json:"note"`
}

type ProcedureSummary struct {
	DoctorOpinion         string             `json:"doctor_opinion"`
	RecommendedProcedures []PlannedProcedure `json:"recommended_procedures"`
}

type ResourceRequirements struct {
	Equipment         []string `json:"equipment"`
	Materials         []string `json:"materials"`
	Staff             string   `json:"staff"`
	EstimatedDuration string   `json:"estimated_duration"`
}

type CostLine struct {
	Procedure     string `json:"procedure"`
	EstimatedCost string `json:"estimated_cost"`
	IsEstimate    bool   `json:"is_estimate"`
}

type CostPlanning struct {
	Items         []CostLine `json:"items"`
	TotalEstimate string     `json:"total_estimate"`
	Note          string     `json:"note"`
}

type Scheduling struct {
	PatientPreferredDate string   `json:"patient_preferred_date"`
	PreTests             []string `json:"pre_tests"`
	Hospitalization      *string  `json:"hospitalization"`
	FollowUp             []string `json:"follow_up"`
}

type PatientReadiness struct {
	CTALevel           string   `json:"cta_level"`
	DecisionFactors    []string `json:"decision_factors"`
	Barriers           []string `json:"barriers"`
	RecommendedActions []string `json:"recommended_actions"`
}

func (r *OperationsBrief) ReportType() domain.ReportType { return domain.ReportOperations }
func (r *OperationsBrief) setDate(d string)              { r.Date = d }

func (r *OperationsBrief) normalize() {
	if r.ProcedureSummary.RecommendedProcedures == nil {
		r.ProcedureSummary.RecommendedProcedures = []PlannedProcedure{}
	}
	r.ResourceRequirements.Equipment = strs(r.ResourceRequirements.Equipment)
	r.ResourceRequirements.Materials = strs(r.ResourceRequirements.Materials)
	if r.CostPlanning.Items == nil {
		r.CostPlanning.Items = []CostLine{}
	}
	// Costs in an operations brief are never quotes.
	for i := range r.CostPlanning.Items {
		r.CostPlanning.Items[i].IsEstimate = true
	}
	r.Scheduling.PreTests = strs(r.Scheduling.PreTests)
	r.Scheduling.FollowUp = strs(r.Scheduling.FollowUp)
	r.PatientReadiness.DecisionFactors = strs(r.PatientReadiness.DecisionFactors)
	r.PatientReadiness.Barriers = strs(r.PatientReadiness.Barriers)
	r.PatientReadiness.RecommendedActions = strs(r.PatientReadiness.RecommendedActions)
}

// ExecutiveBrief (r3) synthesizes the doctor and operations briefs.
type ExecutiveBrief struct {
	Title             string           `json:"title"`
	Date              string           `json:"date"`
	Marketing         MarketingPillar  `json:"pillar1_marketing"`
	Medical           MedicalPillar    `json:"pillar2_medical"`
	PatientManagement ManagementPillar `json:"pillar3_patient_management"`
	Summary           ExecutiveSummary `json:"executive_summary"`
}

type MarketingPillar struct {
	CTAAssessment     string   `json:"cta_assessment"`
	PatientNeeds      []string `json:"patient_needs"`
	VisitLikelihood   string   `json:"visit_likelihood"`
	ConversionFactors []string `json:"conversion_factors"`
	ApproachStrategy  string   `json:"approach_strategy"`
}

type MedicalPillar struct {
	Classification      string `json:"classification"`
	ProcedureComplexity string `json:"procedure_complexity"`
	ResourceSummary     string `json:"resource_summary"`
	RiskLevel           string `json:"risk_level"`
	ExpectedOutcome     string `json:"expected_outcome"`
}

type ManagementPillar struct {
	FollowUpStrategy    string   `json:"follow_up_strategy"`
	UpsellOpportunities []string `json:"upsell_opportunities"`
	VisitInducement     string   `json:"visit_inducement"`
	Cautions            []string `json:"cautions"`
}

type ExecutiveSummary struct {
	OneLiner    string   `json:"one_liner"`
	ActionItems []string `json:"action_items"`
}

func (r *ExecutiveBrief) ReportType() domain.ReportType { return domain.ReportExecutive }
func (r *ExecutiveBrief) setDate(d string)              { r.Date = d }

func (r *ExecutiveBrief) normalize() {
	r.Marketing.PatientNeeds = strs(r.Marketing.PatientNeeds)
	r.Marketing.ConversionFactors = strs(r.Marketing.ConversionFactors)
	r.PatientManagement.UpsellOpportunities = strs(r.PatientManagement.UpsellOpportunities)
	r.PatientManagement.Cautions = strs(r.PatientManagement.Cautions)
	r.Summary.ActionItems = strs(r.Summary.ActionItems)
}

func strs(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
