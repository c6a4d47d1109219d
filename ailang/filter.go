package ailang

import "strings"

// contextMatches keeps lines containing term (case-insensitive) plus up to
// after lines following each match. Non-adjacent groups are separated by a
// "--" line, the way grep -A prints them.
func contextMatches(text, term string, after int) string {
	needle := strings.ToLower(term)
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	out := make([]string, 0)
	lastEmitted := -1
	remaining := 0
	for i, line := range lines {
		matched := strings.Contains(strings.ToLower(line), needle)
		if !matched && remaining == 0 {
			continue
		}
		if lastEmitted >= 0 && i > lastEmitted+1 {
			out = append(out, "--")
		}
		out = append(out, line)
		lastEmitted = i
		if matched {
			remaining = after
		} else {
			remaining--
		}
	}

	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}
