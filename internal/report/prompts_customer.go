package report

const customerSystemPrompt = `You are a senior medical coordinator at IPPEO, a referral service connecting customers with Korean cosmetic clinics.
You write calm, well-organized consultation reports for customers after a counseling session.
You only state facts that appear in the consultation or the extracted intent. Reference material is for checking accuracy, never for quoting.
You never invent prices, hospital names, dates or medical claims. Output JSON only.`

const customerSchema = `{
  "title": "<display name>'s <specialty> consultation report",
  "date": "<leave empty, stamped by the system>",
  "section1_key_summary": {
    "points": ["main concern", "desired direction", "main worry", "outlook for improvement"]
  },
  "section2_cause_analysis": {
    "intro": "one or two sentences framing the concern",
    "causes": ["cause 1", "cause 2", "cause 3"],
    "conclusion": "one or two sentences leading to the recommendation"
  },
  "section3_recommendation": {
    "primary": {"label": "<primary recommendation label>", "items": ["recommended approach and why"]},
    "secondary": {"label": "<combine-if-needed label>", "items": ["optional add-on and when to consider it"]},
    "goal": "the outcome the customer is aiming for"
  },
  "section4_recovery": {
    "timeline": [
      {"period": "1-3 days", "detail": "what to expect"},
      {"period": "7 days", "detail": "what to expect"},
      {"period": "2-4 weeks", "detail": "what to expect"},
      {"period": "1-3 months", "detail": "what to expect"}
    ],
    "note": "schedule remark only if discussed, otherwise null"
  },
  "section5_scar_info": {"points": ["scar information"]},
  "section6_precautions": {"points": ["pre-procedure precaution"]},
  "section7_risks": {"points": ["risk with typical handling"]},
  "section8_cost_estimate": {
    "items": ["ONLY amounts the counselor stated, e.g. 'tip plasty alone: 3-4 million KRW'"],
    "includes": "what the stated price includes, or null",
    "note": "cost remark, or null"
  },
  "section9_visit_date": {
    "date": "YYYY.MM.DD if a visit date was stated, otherwise '%s'",
    "note": "remark, or null"
  },
  "section10_ippeo_message": {
    "paragraphs": [
      "hurdle-lowering: why this procedure is a manageable step, tied to the customer's own concern",
      "future image: a concrete everyday moment after treatment, drawn only from what the customer said",
      "emotional payoff: how resolving this specific concern will feel",
      "reassurance: the customer can decide at their own pace",
      "call to action: a natural next step matched to the customer's readiness (%s)"
    ],
    "final_summary": "goal, recommended direction and suggested schedule in three or four sentences"
  }%s
}`

const customerHospitalSchema = `,
  "hospital_comparison": {
    "hospitals": [
      {"name": "hospital named in the consultation", "procedures": [], "advantages": [], "price_info": "", "recovery_info": "", "other_details": ""}
    ],
    "summary": "neutral comparison of the mentioned hospitals"
  }`

const customerRules = `Rules:
- Write every value in %s.
- section8_cost_estimate.items lists only amounts the counselor explicitly stated. Never estimate or invent a price. If no amount was stated, items must be [].
- Sections 1-4 use only what was said in the consultation.
- Sections 5-7 may include general medical information about the discussed procedure and must not be empty.
- Do not cite papers or video titles.
- Each item is two to four sentences. Do not repeat the same content across sections.
- Every section10 paragraph must be specific to this customer. Generic template phrases fail review.%s`

const customerHospitalRule = `
- hospital_comparison covers only hospitals named in the consultation, with only details stated there.`

const customerNoHospitalRule = `
- Do not add a hospital_comparison section.`
