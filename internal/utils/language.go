package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Detection is the dominant language of a text
type Detection struct {
	Tag        language.Tag
	Confidence float64 // share of letters written in the winning script
}

// Code returns the base language code, e.g. "ru"
func (d Detection) Code() string {
	base, _ := d.Tag.Base()
	return base.String()
}

type script struct {
	table *unicode.RangeTable
	tag   language.Tag
}

// Han is checked after kana so mixed Japanese text is not reported as Chinese
var scripts = []script{
	{unicode.Cyrillic, language.Russian},
	{unicode.Latin, language.English},
	{unicode.Hebrew, language.Hebrew},
	{unicode.Arabic, language.Arabic},
	{unicode.Hangul, language.Korean},
	{unicode.Hiragana, language.Japanese},
	{unicode.Katakana, language.Japanese},
	{unicode.Han, language.Chinese},
}

// DetectLanguage guesses the language of text from the scripts of its letters.
// Empty or letterless text is reported as Russian with zero confidence, the
// working language of the mailbox.
func DetectLanguage(text string) Detection {
	counts := make(map[language.Tag]int)
	letters := 0
	for _, r := range strings.TrimSpace(text) {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		for _, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[s.tag]++
				break
			}
		}
	}
	if letters == 0 {
		return Detection{Tag: language.Russian}
	}

	// any kana makes CJK text Japanese
	if counts[language.Japanese] > 0 && counts[language.Chinese] > 0 {
		counts[language.Japanese] += counts[language.Chinese]
		delete(counts, language.Chinese)
	}

	best := Detection{Tag: language.Russian}
	bestCount := 0
	for _, s := range scripts {
		if c := counts[s.tag]; c > bestCount {
			bestCount = c
			best.Tag = s.tag
		}
	}
	best.Confidence = float64(bestCount) / float64(letters)
	return best
}
