package preprocess

import (
	"regexp"
	"strings"

	"github.com/ippeo/consultd/internal/domain"
)

// labeledRatio is the fraction of non-empty lines that must carry a speaker
// label before a transcript is segmented.
const labeledRatio = 0.4

var (
	counselorLabels = []string{"의사", "상담사", "カウンセラー", "counselor"}
	customerLabels  = []string{"환자", "고객", "相談者", "お客様", "customer"}

	labelAlternation = strings.Join(append(append([]string{}, counselorLabels...), customerLabels...), "|")

	timestampedLine = regexp.MustCompile(`^(` + labelAlternation + `)\s*\(\d+\)\s*[:：]\s*(.*)`)
	plainLine       = regexp.MustCompile(`^(` + labelAlternation + `)\s*[:：]\s*(.*)`)

	noise = map[string]bool{"???": true, "??": true, "?": true, "…": true, "...": true, "": true}
)

// Canonical line prefixes written into the cleaned transcript.
const (
	CounselorPrefix = "상담사"
	CustomerPrefix  = "고객"
)

// Result is the outcome of rule-based preprocessing.
type Result struct {
	CleanedText      string
	HasSpeakerLabels bool
	Segments         []domain.SpeakerSegment
	CustomerText     string
	CounselorText    string
}

// Preprocess detects speaker labels and, when enough lines carry one,
// rewrites the transcript with canonical labels and drops noise utterances.
// Unlabeled transcripts are returned unchanged.
func Preprocess(raw string) Result {
	lines := strings.Split(raw, "\n")

	nonEmpty, labeled := 0, 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++
		if _, _, ok := matchLabel(line); ok {
			labeled++
		}
	}
	if nonEmpty == 0 || float64(labeled)/float64(nonEmpty) <= labeledRatio {
		return Result{CleanedText: raw}
	}

	var (
		out       []string
		segments  []domain.SpeakerSegment
		customer  []string
		counselor []string
	)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		speaker, text, ok := matchLabel(line)
		if !ok {
			out = append(out, line)
			continue
		}
		text = strings.TrimSpace(text)
		if noise[text] {
			continue
		}
		segments = append(segments, domain.SpeakerSegment{Speaker: speaker, Text: text})
		if speaker == domain.SpeakerCounselor {
			out = append(out, CounselorPrefix+": "+text)
			counselor = append(counselor, text)
		} else {
			out = append(out, CustomerPrefix+": "+text)
			customer = append(customer, text)
		}
	}

	return Result{
		CleanedText:      strings.Join(out, "\n"),
		HasSpeakerLabels: true,
		Segments:         segments,
		CustomerText:     strings.Join(customer, "\n"),
		CounselorText:    strings.Join(counselor, "\n"),
	}
}

func matchLabel(line string) (speaker, text string, ok bool) {
	m := timestampedLine.FindStringSubmatch(line)
	if m == nil {
		m = plainLine.FindStringSubmatch(line)
	}
	if m == nil {
		return "", "", false
	}
	return roleOf(m[1]), m[2], true
}

func roleOf(label string) string {
	for _, l := range counselorLabels {
		if l == label {
			return domain.SpeakerCounselor
		}
	}
	return domain.SpeakerCustomer
}
