package status

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// decor is the markdown emphasis agents like to wrap labels in.
const decor = "[*_`]*"

// markerRe matches a line that consists only of the STATUS marker, optionally
// indented, bulleted, or emphasised ("- **STATUS:**").
var markerRe = regexp.MustCompile(`(?im)^[ \t]*(?:[-*+>][ \t]+|#{1,6}[ \t]+)?` + decor + `status` + decor + `[ \t]*:` + decor + `[ \t]*$`)

var (
	intRe  = regexp.MustCompile(`-?\d+`)
	boolRe = regexp.MustCompile(`(?i)\b(true|false)\b`)
)

// field describes one labelled line inside the block.
type field struct {
	name string
	re   *regexp.Regexp
}

func labelRe(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t]*(?:[-*+>][ \t]+)?` + decor + label + decor + `[ \t]*:` + decor + `[ \t]*(.*)$`)
}

var (
	progressField       = field{"progress", labelRe(`progress`)}
	tasksCompletedField = field{"tasks_completed", labelRe(`tasks[_ -]?completed`)}
	tasksTotalField     = field{"tasks_total", labelRe(`tasks[_ -]?total`)}
	exitSignalField     = field{"exit_signal", labelRe(`exit[_ -]?signal`)}
	summaryField        = field{"summary", labelRe(`summary`)}
)

// Parse extracts the last STATUS block from raw agent output. It returns
// false when no marker is present or when any of progress, tasks_completed,
// tasks_total, or EXIT_SIGNAL is missing or malformed. Summary is optional.
func Parse(text string) (Parsed, bool) {
	block, ok := lastBlock(text)
	if !ok {
		return Parsed{}, false
	}

	progress, ok := intField(block, progressField)
	if !ok {
		return Parsed{}, false
	}
	completed, ok := intField(block, tasksCompletedField)
	if !ok {
		return Parsed{}, false
	}
	total, ok := intField(block, tasksTotalField)
	if !ok {
		return Parsed{}, false
	}
	exit, ok := boolField(block, exitSignalField)
	if !ok {
		return Parsed{}, false
	}
	summary, _ := textField(block, summaryField)

	return Parsed{
		Progress:       clamp(progress, 0, 100),
		TasksCompleted: max(completed, 0),
		TasksTotal:     max(total, 0),
		ExitSignal:     exit,
		Summary:        summary,
	}, true
}

// Has reports whether text contains a complete STATUS block.
func Has(text string) bool {
	_, ok := Parse(text)
	return ok
}

// MissingFields explains a failed Parse: it returns "status" when there is
// no marker, otherwise the names of required fields that are absent or
// malformed after the last marker. It returns nil for a valid block.
func MissingFields(text string) []string {
	block, ok := lastBlock(text)
	if !ok {
		return []string{"status"}
	}
	var missing []string
	for _, f := range []field{progressField, tasksCompletedField, tasksTotalField} {
		if _, ok := intField(block, f); !ok {
			missing = append(missing, f.name)
		}
	}
	if _, ok := boolField(block, exitSignalField); !ok {
		missing = append(missing, exitSignalField.name)
	}
	return missing
}

// normalize strips terminal escape sequences and converts CRLF / CR line
// endings to LF.
func normalize(text string) string {
	text = ansi.Strip(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// lastBlock returns the text following the last STATUS marker. Agents often
// restate draft blocks while reasoning; only the final one counts.
func lastBlock(text string) (string, bool) {
	plain := normalize(text)
	locs := markerRe.FindAllStringIndex(plain, -1)
	if len(locs) == 0 {
		return "", false
	}
	return plain[locs[len(locs)-1][1]:], true
}

// textField returns the trimmed value of the first line carrying the label.
func textField(block string, f field) (string, bool) {
	m := f.re.FindStringSubmatch(block)
	if m == nil {
		return "", false
	}
	return strings.Trim(m[1], " \t*_`"), true
}

// intField returns the first integer embedded in the field value, so
// "85%" and "**3** of 5" both parse.
func intField(block string, f field) (int, bool) {
	v, ok := textField(block, f)
	if !ok {
		return 0, false
	}
	digits := intRe.FindString(v)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// boolField returns the first true/false token in the field value.
func boolField(block string, f field) (bool, bool) {
	v, ok := textField(block, f)
	if !ok {
		return false, false
	}
	m := boolRe.FindStringSubmatch(v)
	if m == nil {
		return false, false
	}
	return strings.EqualFold(m[1], "true"), true
}

func clamp(n, lo, hi int) int {
	return min(max(n, lo), hi)
}
