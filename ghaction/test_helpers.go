package ghaction

import "strings"

// OutputValue returns the value of the output name in the contents of a
// GITHUB_OUTPUT file. Both the name=value and the multi-line
// name<<DELIMITER forms are understood.
func OutputValue(contents, name string) (string, bool) {
	lines := strings.Split(contents, "\n")
	for pos := 0; pos < len(lines); pos++ {
		line := lines[pos]
		key, delimiter, heredoc := strings.Cut(line, "<<")
		if !heredoc || strings.Contains(key, "=") {
			key, value, ok := strings.Cut(line, "=")
			if ok && key == name {
				return value, true
			}
			continue
		}
		var value []string
		for pos++; pos < len(lines) && lines[pos] != delimiter; pos++ {
			value = append(value, lines[pos])
		}
		if key == name {
			return strings.Join(value, "\n"), true
		}
	}
	return "", false
}
