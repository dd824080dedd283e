package roster

import (
	"encoding/csv"
	"strings"
)

// Sentinels stored on malformed text entries so the operator can spot them.
const (
	MissingName     = "Sin nombre"
	MissingIdentity = "Sin DNI"
)

// Entry is one line of a pasted roster.
type Entry struct {
	Line           int
	Name           string
	IdentityNumber string
	Malformed      bool
	Problem        string
}

var headerWords = []string{"nombre", "cuil", "dni", "apellido"}

// ParseText reads "name, CUIL" pairs, one per line. The separator may be a
// comma, a semicolon or a tab. A leading header line is dropped and blank
// lines are skipped. Malformed lines are kept and flagged.
func ParseText(input string) []Entry {
	var entries []Entry
	first := true
	for i, line := range strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitLine(line)
		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}
		entries = append(entries, parseEntry(i+1, fields))
	}
	return entries
}

func splitLine(line string) []string {
	delimiter := ','
	switch {
	case strings.ContainsRune(line, '\t'):
		delimiter = '\t'
	case strings.ContainsRune(line, ';'):
		delimiter = ';'
	}
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	fields, err := reader.Read()
	if err != nil {
		return []string{strings.TrimSpace(line)}
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.TrimSpace(f))
	}
	return out
}

func isHeader(fields []string) bool {
	for _, f := range fields {
		lower := strings.ToLower(f)
		for _, word := range headerWords {
			if strings.Contains(lower, word) {
				return true
			}
		}
	}
	return false
}

func parseEntry(line int, fields []string) Entry {
	entry := Entry{Line: line}
	var name, rawIdentity string
	if len(fields) > 0 {
		name = fields[0]
	}
	if len(fields) > 1 {
		rawIdentity = fields[1]
	}

	if name == "" {
		entry.Name = MissingName
		entry.Malformed = true
		entry.Problem = "missing name"
	} else {
		entry.Name = name
	}

	switch normalized, ok := NormalizeIdentity(rawIdentity); {
	case rawIdentity == "":
		entry.IdentityNumber = MissingIdentity
		entry.Malformed = true
		entry.Problem = joinProblem(entry.Problem, "missing identity number")
	case !ok:
		entry.IdentityNumber = rawIdentity
		entry.Malformed = true
		entry.Problem = joinProblem(entry.Problem, "identity number must have 11 digits")
	default:
		entry.IdentityNumber = normalized
	}
	return entry
}

func joinProblem(current, next string) string {
	if current == "" {
		return next
	}
	return current + "; " + next
}
