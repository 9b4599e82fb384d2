package exam

import (
	"strconv"

	"github.com/linkalls/marksheet/internal/model"
)

var (
	kanaLabels  = []string{"あ", "い", "う", "え", "お", "か", "き", "く", "け", "こ"}
	irohaLabels = []string{"イ", "ロ", "ハ", "ニ", "ホ", "ヘ", "ト", "チ", "リ", "ヌ"}
)

// OptionLabel returns the display label of the zero-based option index under
// the given style. Alphabet labels continue past "z" as "aa", "ab", ...
// Kana and iroha have ten native characters; later options get a synthetic
// "k<n>" or "i<n>" label. Unknown styles fall back to numbers.
func OptionLabel(style model.OptionStyle, index int) string {
	if index < 0 {
		index = 0
	}
	switch style {
	case model.StyleAlphabet:
		return alphabetLabel(index)
	case model.StyleKana:
		if index < len(kanaLabels) {
			return kanaLabels[index]
		}
		return "k" + strconv.Itoa(index+1)
	case model.StyleIroha:
		if index < len(irohaLabels) {
			return irohaLabels[index]
		}
		return "i" + strconv.Itoa(index+1)
	default:
		return strconv.Itoa(index + 1)
	}
}

// OptionLabels lists the labels of the first count options.
func OptionLabels(style model.OptionStyle, count int) []string {
	labels := make([]string, 0, count)
	for i := 0; i < count; i++ {
		labels = append(labels, OptionLabel(style, i))
	}
	return labels
}

// alphabetLabel uses bijective base-26: 0 -> a, 25 -> z, 26 -> aa.
func alphabetLabel(index int) string {
	var buf []byte
	n := index + 1
	for n > 0 {
		n--
		buf = append([]byte{byte('a' + n%26)}, buf...)
		n /= 26
	}
	return string(buf)
}
