package listing

import "strings"

// includeStack tracks the include files active at the current listing row.
type includeStack struct {
	frames []string
}

func (s *includeStack) push(name string) {
	s.frames = append(s.frames, name)
}

// pop removes the innermost frame. Popping an empty stack is a no-op so an
// unbalanced listing falls back to the enclosing file's name.
func (s *includeStack) pop() (string, bool) {
	if len(s.frames) == 0 {
		return "", false
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return top, true
}

// top returns the innermost include or fallback when none is active.
func (s *includeStack) top(fallback string) string {
	if len(s.frames) == 0 {
		return fallback
	}
	return s.frames[len(s.frames)-1]
}

func (s *includeStack) depth() int {
	return len(s.frames)
}

// braceBalance returns the number of closing braces minus opening braces.
// Braces inside strings or comments are counted like any other.
func braceBalance(row string) int {
	return strings.Count(row, "}") - strings.Count(row, "{")
}

var braceStripper = strings.NewReplacer("{", "", "}", "")

// includeNames extracts include file paths from the text of an include
// directive. contentStart bytes are dropped from the front of the text first;
// tokens after the first '{' that open a brace, carry no '&' argument marker
// and contain a '/' are include paths.
func includeNames(directive string, contentStart int) []string {
	if len(directive) < contentStart {
		return nil
	}
	text := strings.TrimSpace(directive[contentStart:])
	open := strings.IndexByte(text, '{')
	if open < 0 {
		return nil
	}

	var names []string
	for _, token := range strings.Fields(text[open:]) {
		if strings.Contains(token, "{") && !strings.Contains(token, "&") && strings.Contains(token, "/") {
			names = append(names, braceStripper.Replace(token))
		}
	}
	return names
}
