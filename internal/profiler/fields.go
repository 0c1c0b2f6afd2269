package profiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is one token of a profiler record. Quoted fields carry the text
// between the quotes; bare fields are runs of non-space characters.
type Field struct {
	Text   string
	Quoted bool
}

// Int parses a bare field as an integer.
func (f Field) Int() (int, error) {
	if f.Quoted {
		return 0, fmt.Errorf("expected bare integer, got quoted %q", f.Text)
	}
	n, err := strconv.Atoi(f.Text)
	if err != nil {
		return 0, fmt.Errorf("expected bare integer, got %q", f.Text)
	}
	return n, nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Tokenize splits a profiler record into quoted and bare fields:
//
//	698 "remove-all-links adm/objects/broker.p" "" 0
//
// yields a bare 698, a quoted string, an empty quoted string and a bare 0.
// Quotes have no escape; a quote without a closing partner starts a bare
// field.
func Tokenize(line string) []Field {
	var fields []Field
	n := len(line)
	for i := 0; i < n; {
		if isSpace(line[i]) {
			i++
			continue
		}
		if line[i] == '"' {
			if end := strings.IndexByte(line[i+1:], '"'); end >= 0 {
				fields = append(fields, Field{Text: line[i+1 : i+1+end], Quoted: true})
				i += end + 2
				continue
			}
		}
		j := i
		for j < n && !isSpace(line[j]) {
			j++
		}
		fields = append(fields, Field{Text: line[i:j]})
		i = j
	}
	return fields
}
