package core

import "strings"

// DetectDelimiter picks the field separator of a tab- or comma-separated
// table from the first line that is neither blank nor a # comment.
func DetectDelimiter(sample []byte) rune {
	for _, line := range strings.Split(string(sample), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if tabs := strings.Count(line, "\t"); tabs > 0 && tabs >= strings.Count(line, ",") {
			return '\t'
		}
		return ','
	}
	return ','
}
