package analysis

const translateSystemPrompt = `You are a professional Japanese-to-Korean medical interpreter for a cosmetic-medicine consultation service.
Translate faithfully. Keep procedure names, prices, dates and speaker labels exactly as stated.
Output JSON only.`

const translateUserPrompt = `Translate the following Japanese consultation transcript into natural Korean.

Output format:
{"translated_text": "<Korean translation>"}

Transcript:
---
%s
---`

const ctaSystemPrompt = `You analyze Korean consultation transcripts between a clinic counselor and a prospective customer.
Judge how ready the customer is to book a visit or procedure. Output JSON only.`

const ctaLevelGuide = `CTA levels:
- "hot": the customer asks about booking, schedules, deposits or concrete dates, or states a decision.
- "warm": the customer compares options, asks about prices, recovery or risks in detail.
- "cool": the customer is only gathering general information or expresses hesitation.

cta_signals: short verbatim quotes (max 5) from the customer that justify the level.`

const ctaOnlyUserPrompt = `The customer's utterances have already been separated from the counselor's.

` + ctaLevelGuide + `

Output format:
{"cta_level": "hot|warm|cool", "cta_signals": ["..."]}

Customer utterances:
---
%s
---`

const ctaFullUserPrompt = `Split the transcript into speaker turns and judge the customer's readiness.

Speakers are "counselor" (clinic staff, 상담사) and "customer" (고객). When labels are missing, infer the speaker from context.
customer_utterances: all customer turns joined with newlines.

` + ctaLevelGuide + `

Output format:
{"speaker_segments": [{"speaker": "counselor|customer", "text": "..."}], "customer_utterances": "...", "cta_level": "hot|warm|cool", "cta_signals": ["..."]}

Transcript:
---
%s
---`

const intentSystemPrompt = `You extract structured intent from Korean cosmetic-medicine consultations.
Only record what the customer or counselor actually said. Never infer or invent. Output JSON only, with Korean values.`

const intentUserPrompt = `Extract the customer's intent from the consultation below.

Fields:
- main_concerns: the customer's main worries or complaints
- desired_direction: the look or outcome the customer wants, one sentence
- unwanted: results or procedures the customer explicitly does not want
- mentioned_procedures: procedures named in the conversation
- body_parts: body parts discussed
- keywords: 3-8 search keywords for finding reference material
- hospital_mentions: ONLY hospitals explicitly named in the conversation. If none is named, return [].
  Each entry: {"name", "procedures": [], "advantages": [], "price_info", "recovery_info", "other_details"}.
  Use "" for details that were not stated.

Output format:
{"main_concerns": [], "desired_direction": "", "unwanted": [], "mentioned_procedures": [], "body_parts": [], "keywords": [], "hospital_mentions": []}

Consultation:
---
%s
---`

const classifySystemPrompt = `You route cosmetic-medicine consultations to the right specialty. Output JSON only.`

const classifyUserPrompt = `Classify the consultation into exactly one category:
- "plastic_surgery": surgical procedures such as eyelid, rhinoplasty, contouring, breast, liposuction, lifting surgery
- "dermatology": non-surgical skin treatments such as lasers, botox, fillers, acne, pigmentation, skin boosters

Base the decision on what the customer wants, not on incidental mentions.
confidence is between 0 and 1. reason is one Korean sentence.

Output format:
{"classification": "plastic_surgery|dermatology", "confidence": 0.0, "reason": ""}

Extracted intent:
%s

Consultation:
---
%s
---`

const validateSystemPrompt = `You double-check specialty routing decisions for a cosmetic-medicine referral service. Output JSON only.`

const validateUserPrompt = `A first-pass classifier labeled this consultation as "%s" (confidence %.2f) because: %s

Re-read the consultation and intent independently.
- If the label is correct, return it.
- If the other category clearly fits better, return that one.
- If the consultation mixes both categories without a clear primary, is unrelated to cosmetic medicine, or is too vague to decide, return "unclassified".

confidence is between 0 and 1. reason is one Korean sentence.

Output format:
{"classification": "plastic_surgery|dermatology|unclassified", "confidence": 0.0, "reason": ""}

Extracted intent:
%s

Consultation:
---
%s
---`
