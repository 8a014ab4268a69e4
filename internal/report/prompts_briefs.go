package report

const doctorSystemPrompt = `You prepare pre-consultation briefings for clinicians at Korean cosmetic clinics.
Write concise, clinically precise Korean. Record only what the consultation states. Never include prices. Output JSON only.`

const doctorSchema = `{
  "title": "%[1]s 환자 - %[2]s 사전 브리핑",
  "date": "",
  "section1_patient_overview": {
    "name": "%[1]s",
    "classification": "%[2]s",
    "cta_level": "%[3]s",
    "consultation_date": "",
    "summary": "one-sentence summary of the consultation"
  },
  "section2_chief_complaints": {"summary": "", "points": ["complaint"]},
  "section3_mentioned_procedures": {
    "procedures": [{"name": "", "context": "how it came up", "patient_attitude": "적극적|관심|소극적"}]
  },
  "section4_medical_context": {
    "current_state": "",
    "related_history": "prior procedures or history if stated, otherwise null",
    "key_concerns": ["clinical concern"]
  },
  "section5_patient_concerns": {"concerns": [{"concern": "", "priority": "high|medium|low"}]},
  "section6_visit_intent": {
    "cta_level": "%[3]s",
    "evidence": ["verbatim customer quote"],
    "expected_visit": "stated visit timing, otherwise '미정'"
  },
  "section7_doctor_notes": {
    "preliminary_opinion": "",
    "recommended_tests": [],
    "cautions": []
  }
}`

const doctorRules = `Rules:
- Korean only. One or two sentences per item.
- Only what the consultation states. No speculation.
- Never include cost or price information.
- All seven sections are required.`

const operationsSystemPrompt = `You prepare operations briefings for the consultation director of a Korean cosmetic clinic.
You plan resources, costs and scheduling from the clinician briefing. Output JSON only, in Korean.`

const operationsSchema = `{
  "title": "%[1]s 환자 - %[2]s 운영 브리핑",
  "date": "",
  "section1_procedure_summary": {
    "doctor_opinion": "summary of the clinician briefing",
    "recommended_procedures": [{"name": "", "priority": "primary|secondary", "note": ""}]
  },
  "section2_resource_requirements": {
    "equipment": [],
    "materials": [],
    "staff": "e.g. 집도의 1명, 간호사 2명",
    "estimated_duration": "e.g. 1~2시간"
  },
  "section3_cost_planning": {
    "items": [{"procedure": "", "estimated_cost": "range, e.g. 200~400만원", "is_estimate": true}],
    "total_estimate": "",
    "note": "state that figures are estimates confirmed after examination"
  },
  "section4_scheduling": {
    "patient_preferred_date": "stated date, otherwise '미정'",
    "pre_tests": [],
    "hospitalization": "if applicable, otherwise null",
    "follow_up": []
  },
  "section5_patient_readiness": {
    "cta_level": "%[3]s",
    "decision_factors": [],
    "barriers": [],
    "recommended_actions": []
  }
}`

const operationsRules = `Rules:
- Cost estimates are allowed but every figure must be marked as an estimate (추정치) with is_estimate true.
- Stay consistent with the clinician briefing.
- One or two sentences per item. All five sections are required.`

const executiveSystemPrompt = `You write executive summaries for the management of a Korean cosmetic-medicine referral business.
Synthesize the clinician and operations briefings into decisions. Output JSON only, in Korean.`

const executiveSchema = `{
  "title": "%[1]s 환자 - %[2]s 종합 분석",
  "date": "",
  "pillar1_marketing": {
    "cta_assessment": "",
    "patient_needs": [],
    "visit_likelihood": "높음|보통|낮음 with one-sentence reason",
    "conversion_factors": [],
    "approach_strategy": ""
  },
  "pillar2_medical": {
    "classification": "%[2]s",
    "procedure_complexity": "높음|보통|낮음 with reason",
    "resource_summary": "",
    "risk_level": "높음|보통|낮음 with reason",
    "expected_outcome": ""
  },
  "pillar3_patient_management": {
    "follow_up_strategy": "",
    "upsell_opportunities": [],
    "visit_inducement": "",
    "cautions": []
  },
  "executive_summary": {
    "one_liner": "the key decision point in one line",
    "action_items": ["concrete, immediately actionable item"]
  }
}`

const executiveRules = `Rules:
- Do not contradict the clinician or operations briefings.
- Include return-on-investment implications from a management perspective.
- Action items must be concrete enough for staff to act on immediately.
- One or two sentences per item. All four blocks are required.`
