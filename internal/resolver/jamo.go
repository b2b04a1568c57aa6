package resolver

// Hangul syllable decomposition. A precomposed syllable (U+AC00..U+D7A3)
// expands to its initial/medial/optional-final jamo so that a single-jamo
// typo costs one edit instead of a whole syllable.

var choseong = []rune{
	'ㄱ', 'ㄲ', 'ㄴ', 'ㄷ', 'ㄸ', 'ㄹ', 'ㅁ', 'ㅂ', 'ㅃ', 'ㅅ',
	'ㅆ', 'ㅇ', 'ㅈ', 'ㅉ', 'ㅊ', 'ㅋ', 'ㅌ', 'ㅍ', 'ㅎ',
}

var jungseong = []rune{
	'ㅏ', 'ㅐ', 'ㅑ', 'ㅒ', 'ㅓ', 'ㅔ', 'ㅕ', 'ㅖ', 'ㅗ', 'ㅘ',
	'ㅙ', 'ㅚ', 'ㅛ', 'ㅜ', 'ㅝ', 'ㅞ', 'ㅟ', 'ㅠ', 'ㅡ', 'ㅢ', 'ㅣ',
}

// index 0 means "no final consonant"
var jongseong = []rune{
	0, 'ㄱ', 'ㄲ', 'ㄳ', 'ㄴ', 'ㄵ', 'ㄶ', 'ㄷ', 'ㄹ', 'ㄺ',
	'ㄻ', 'ㄼ', 'ㄽ', 'ㄾ', 'ㄿ', 'ㅀ', 'ㅁ', 'ㅂ', 'ㅄ', 'ㅅ',
	'ㅆ', 'ㅇ', 'ㅈ', 'ㅊ', 'ㅋ', 'ㅌ', 'ㅍ', 'ㅎ',
}

const (
	syllableBase = 0xAC00
	syllableEnd  = 0xD7A3
)

// decomposeJamo expands Hangul syllables; everything else passes through.
func decomposeJamo(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < syllableBase || r > syllableEnd {
			out = append(out, r)
			continue
		}
		offset := r - syllableBase
		out = append(out, choseong[offset/588], jungseong[(offset%588)/28])
		if final := jongseong[offset%28]; final != 0 {
			out = append(out, final)
		}
	}
	return out
}

// jamoDistance is the Levenshtein distance over decomposed jamo sequences.
func jamoDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Similarity scores two strings in [0,1] on their jamo sequences.
func Similarity(a, b string) float64 {
	ja, jb := decomposeJamo(a), decomposeJamo(b)
	longest := max(len(ja), len(jb))
	if longest == 0 {
		return 0
	}
	return 1 - float64(jamoDistance(ja, jb))/float64(longest)
}
