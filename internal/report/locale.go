package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ippeo/consultd/internal/domain"
)

// reportZone is the timezone report dates are stamped in (JST/KST).
var reportZone = time.FixedZone("UTC+9", 9*60*60)

// Locale holds everything that varies with the output language of a report.
type Locale struct {
	Language      domain.Language
	Name          string
	Honorific     string
	Anonymous     string
	DatePrefix    string
	FeedbackLabel string
	Undecided     string
	NoReferences  string
	CategoryNotes map[domain.Category]string
	dateFormat    string
}

var (
	japanese = Locale{
		Language:      domain.LanguageJapanese,
		Name:          "Japanese",
		Honorific:     "様",
		Anonymous:     "お客様",
		DatePrefix:    "作成日：",
		FeedbackLabel: "レビューフィードバック",
		Undecided:     "未定",
		NoReferences:  "※参考資料なし。相談内容のみに基づいて作成してください。",
		CategoryNotes: map[domain.Category]string{
			domain.CategoryPlasticSurgery: "整形外科",
			domain.CategoryDermatology:    "皮膚科",
		},
		dateFormat: "%d年%d月%d日",
	}
	korean = Locale{
		Language:      domain.LanguageKorean,
		Name:          "Korean",
		Honorific:     "님",
		Anonymous:     "고객님",
		DatePrefix:    "작성일: ",
		FeedbackLabel: "리뷰 피드백",
		Undecided:     "미정",
		NoReferences:  "※참고 자료 없음. 상담 내용만을 근거로 작성하세요.",
		CategoryNotes: map[domain.Category]string{
			domain.CategoryPlasticSurgery: "성형외과",
			domain.CategoryDermatology:    "피부과",
		},
		dateFormat: "%d년 %d월 %d일",
	}
)

// LocaleFor returns the locale for lang. Anything but Korean is Japanese,
// the default customer language.
func LocaleFor(lang domain.Language) Locale {
	if lang == domain.LanguageKorean {
		return korean
	}
	return japanese
}

// FormatDate renders t in the report timezone, e.g. 2026年10月18日.
func (l Locale) FormatDate(t time.Time) string {
	t = t.In(reportZone)
	return fmt.Sprintf(l.dateFormat, t.Year(), int(t.Month()), t.Day())
}

// CategoryNote is the specialty label shown in prompts and titles. Anything
// that is not plastic surgery is treated as dermatology.
func (l Locale) CategoryNote(c domain.Category) string {
	if c == domain.CategoryPlasticSurgery {
		return l.CategoryNotes[domain.CategoryPlasticSurgery]
	}
	return l.CategoryNotes[domain.CategoryDermatology]
}

// DisplayName is the first token of the customer's name with an honorific.
func (l Locale) DisplayName(customerName string) string {
	fields := strings.Fields(customerName)
	if len(fields) == 0 {
		return l.Anonymous
	}
	return fields[0] + l.Honorific
}

// FeedbackNote formats one reviewer feedback entry for the next attempt.
func (l Locale) FeedbackNote(feedback string) string {
	return "[" + l.FeedbackLabel + ": " + feedback + "]"
}
