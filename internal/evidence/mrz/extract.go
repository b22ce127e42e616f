package mrz

import "regexp"

var mrzLine = regexp.MustCompile(`[A-Z0-9<]{30,}`)

// FindLines recovers MRZ lines from free OCR text. It returns nil unless at
// least two candidate lines are found.
func FindLines(text []string) []string {
	var found []string
	for _, t := range text {
		found = append(found, mrzLine.FindAllString(t, -1)...)
	}
	if len(found) < 2 {
		return nil
	}
	return found
}
