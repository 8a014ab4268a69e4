package report

import (
	"fmt"

	"github.com/ippeo/consultd/internal/domain"
)

// Template describes how one report type is generated and reviewed.
type Template struct {
	Type     domain.ReportType
	Name     string
	System   string
	Rubric   Rubric
	Requires []domain.ReportType
	New      func() Document

	// schema renders the JSON skeleton and rules for a given input.
	schema func(in WriteInput, loc Locale) string
	// locale is the output language for a given input.
	locale func(in WriteInput) Locale
}

// Rubric is the reviewer's checklist for a report type.
type Rubric struct {
	System    string
	Checklist string
}

// Order is the dependency order reports are generated in.
var Order = []domain.ReportType{
	domain.ReportDoctor,
	domain.ReportOperations,
	domain.ReportExecutive,
	domain.ReportCustomer,
}

var templates = map[domain.ReportType]Template{
	domain.ReportDoctor: {
		Type:   domain.ReportDoctor,
		Name:   "doctor brief",
		System: doctorSystemPrompt,
		Rubric: Rubric{System: reviewSystemPrompt, Checklist: doctorChecklist},
		New:    func() Document { return &DoctorBrief{} },
		schema: func(in WriteInput, loc Locale) string {
			return fmt.Sprintf(doctorSchema, in.CustomerName, loc.CategoryNote(in.Category), in.CTALevel) + "\n\n" + doctorRules
		},
		locale: internalLocale,
	},
	domain.ReportOperations: {
		Type:     domain.ReportOperations,
		Name:     "operations brief",
		System:   operationsSystemPrompt,
		Rubric:   Rubric{System: reviewSystemPrompt, Checklist: operationsChecklist},
		Requires: []domain.ReportType{domain.ReportDoctor},
		New:      func() Document { return &OperationsBrief{} },
		schema: func(in WriteInput, loc Locale) string {
			return fmt.Sprintf(operationsSchema, in.CustomerName, loc.CategoryNote(in.Category), in.CTALevel) + "\n\n" + operationsRules
		},
		locale: internalLocale,
	},
	domain.ReportExecutive: {
		Type:     domain.ReportExecutive,
		Name:     "executive brief",
		System:   executiveSystemPrompt,
		Rubric:   Rubric{System: reviewSystemPrompt, Checklist: executiveChecklist},
		Requires: []domain.ReportType{domain.ReportDoctor, domain.ReportOperations},
		New:      func() Document { return &ExecutiveBrief{} },
		schema: func(in WriteInput, loc Locale) string {
			return fmt.Sprintf(executiveSchema, in.CustomerName, loc.CategoryNote(in.Category), in.CTALevel) + "\n\n" + executiveRules
		},
		locale: internalLocale,
	},
	domain.ReportCustomer: {
		Type:   domain.ReportCustomer,
		Name:   "customer report",
		System: customerSystemPrompt,
		Rubric: Rubric{System: reviewSystemPrompt, Checklist: customerChecklist},
		New:    func() Document { return &CustomerReport{} },
		schema: func(in WriteInput, loc Locale) string {
			hospitals, rule := "", customerNoHospitalRule
			if len(in.Intent.HospitalMentions) > 0 {
				hospitals, rule = customerHospitalSchema, customerHospitalRule
			}
			return fmt.Sprintf(customerSchema, loc.Undecided, in.CTALevel, hospitals) + "\n\n" +
				fmt.Sprintf(customerRules, loc.Name, rule)
		},
		locale: func(in WriteInput) Locale { return LocaleFor(in.InputLanguage) },
	},
}

// Internal briefs are always written in Korean for clinic staff.
func internalLocale(WriteInput) Locale { return korean }

// Lookup returns the template for t.
func Lookup(t domain.ReportType) (Template, bool) {
	tpl, ok := templates[t]
	return tpl, ok
}

// Expand returns the requested types plus everything they depend on, in
// generation order.
func Expand(requested []domain.ReportType) []domain.ReportType {
	want := make(map[domain.ReportType]bool)
	var add func(t domain.ReportType)
	add = func(t domain.ReportType) {
		tpl, ok := templates[t]
		if !ok || want[t] {
			return
		}
		want[t] = true
		for _, dep := range tpl.Requires {
			add(dep)
		}
	}
	for _, t := range requested {
		add(t)
	}

	out := make([]domain.ReportType, 0, len(want))
	for _, t := range Order {
		if want[t] {
			out = append(out, t)
		}
	}
	return out
}

const reviewSystemPrompt = `You are a strict quality reviewer for consultation reports at a Korean cosmetic-medicine referral service.
Compare the report against the consultation transcript and the reference material. Score 0-100.
A report passes only when the score is at least 80 and there are no fabricated facts. Output JSON only:
{"passed": true|false, "score": 0-100, "issues": ["..."], "suggestions": ["..."], "feedback": "one paragraph the writer can act on"}`

const customerChecklist = `Checklist:
1. Medical accuracy: claims agree with the reference material and contain no overstatement.
2. No fabrication: every fact in sections 1-4 and sections 8-9 appears in the transcript. Any price in section8 that the counselor did not state is an automatic fail.
3. Completeness: all ten sections are present and sections 5-7 are not empty.
4. Tone: warm, calm and free of pressure. No citations of papers or video titles.
5. Personalization: every section10 paragraph refers to this customer's own concerns. Generic phrasing fails.
6. Language: every value is written in the customer's language.
7. Hospitals: hospital_comparison appears only when hospitals were mentioned and carries only stated details.`

const doctorChecklist = `Checklist:
1. All seven sections are present and written in Korean.
2. No cost or price information anywhere.
3. Every complaint, procedure and quote appears in the transcript.
4. Clinical terminology is accurate and concise.
5. Visit evidence quotes the customer rather than paraphrasing.`

const operationsChecklist = `Checklist:
1. All five sections are present and written in Korean.
2. Every cost figure is a range marked as an estimate.
3. The plan is consistent with the doctor brief.
4. Resources, staff and duration are realistic for the procedures.
5. Scheduling reflects the customer's stated preferences only.`

const executiveChecklist = `Checklist:
1. All four blocks are present and written in Korean.
2. Nothing contradicts the doctor or operations briefs.
3. Visit likelihood matches the CTA level and its evidence.
4. Action items are concrete and immediately actionable.
5. The one-liner states a decision point rather than a summary.`
