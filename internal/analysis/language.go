package analysis

import "github.com/ippeo/consultd/internal/domain"

// japaneseRatio is the share of kana among kana+Hangul above which a
// transcript is treated as Japanese.
const japaneseRatio = 0.3

// DetectLanguage counts kana and Hangul code points and returns Japanese when
// kana make up strictly more than 30% of them. Text with neither script is
// treated as Korean, the working language of the pipeline.
func DetectLanguage(text string) domain.Language {
	var ja, ko int
	for _, r := range text {
		switch {
		case r >= 0x3040 && r <= 0x309F, r >= 0x30A0 && r <= 0x30FF:
			ja++
		case r >= 0xAC00 && r <= 0xD7AF, r >= 0x1100 && r <= 0x11FF, r >= 0x3130 && r <= 0x318F:
			ko++
		}
	}
	if ja+ko == 0 {
		return domain.LanguageKorean
	}
	if float64(ja)/float64(ja+ko) > japaneseRatio {
		return domain.LanguageJapanese
	}
	return domain.LanguageKorean
}
