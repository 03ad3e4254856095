package game

// Score implements the two-pass scoring algorithm over uppercase letters.
//
// Pass 1:
//   - Count every target letter.
//   - Mark exact matches Correct and consume one count for each.
//
// Pass 2:
//   - For each remaining guess letter: Misplaced while a count is left for that
//     letter (consuming it), otherwise Incorrect.
//
// Exact matches must be reserved first; a single left-to-right pass would hand
// the only copy of a letter to an earlier misplaced guess.
func Score(guess, target []byte) []Verdict {
	n := len(guess)
	res := make([]Verdict, n)
	if len(target) != n {
		for i := range res {
			res[i] = VerdictIncorrect
		}
		return res
	}

	var counts [26]int
	for _, c := range target {
		if j := idx(c); j >= 0 {
			counts[j]++
		}
	}

	for i := 0; i < n; i++ {
		if guess[i] == target[i] {
			res[i] = VerdictCorrect
			if j := idx(guess[i]); j >= 0 {
				counts[j]--
			}
		}
	}

	for i := 0; i < n; i++ {
		if res[i] == VerdictCorrect {
			continue
		}
		if j := idx(guess[i]); j >= 0 && counts[j] > 0 {
			res[i] = VerdictMisplaced
			counts[j]--
		} else {
			res[i] = VerdictIncorrect
		}
	}
	return res
}

// ScoreWord is Score over strings, for callers holding whole words.
func ScoreWord(guess, target string) []Verdict {
	return Score([]byte(guess), []byte(target))
}

// idx maps an uppercase ASCII letter to 0..25, or -1.
func idx(c byte) int {
	if c < 'A' || c > 'Z' {
		return -1
	}
	return int(c - 'A')
}

// allCorrect returns true if every verdict is Correct.
func allCorrect(vs []Verdict) bool {
	for _, v := range vs {
		if v != VerdictCorrect {
			return false
		}
	}
	return len(vs) > 0
}
