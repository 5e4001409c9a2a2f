package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Tests replace these to capture command output.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// mark is the leading glyph of a status line. Failures go to stderr, every
// other mark to stdout.
type mark string

const (
	markOK   mark = "✓"
	markFail mark = "✗"
	markWarn mark = "⚠"
	markSkip mark = "○" // not applicable here
	markMiss mark = "-" // nothing found
	markNote mark = "~"
)

func (m mark) writer() io.Writer {
	if m == markFail {
		return stderr
	}
	return stdout
}

// emit writes "  <mark>  [label] msg", dropping the brackets when label is
// empty. Labels are allele names, file names or doctor check names.
func (m mark) emit(label, msg string) {
	w := m.writer()
	if label != "" {
		msg = "[" + label + "] " + msg
	}
	fmt.Fprintf(w, "  %s  %s\n", m, msg)
}

func printOK(label, msg string)   { markOK.emit(label, msg) }
func printErr(label, msg string)  { markFail.emit(label, msg) }
func printWarn(label, msg string) { markWarn.emit(label, msg) }
func printSkip(label, msg string) { markSkip.emit(label, msg) }
func printMiss(label, msg string) { markMiss.emit(label, msg) }
func printInfo(label, msg string) { markNote.emit(label, msg) }

// printSection opens a block of output: "=== Title ===".
func printSection(title string) {
	fmt.Fprintf(stdout, "\n=== %s ===\n", title)
}

// printBullet opens a group inside a section: "● Title".
func printBullet(title string) {
	fmt.Fprintf(stdout, "\n● %s\n", title)
}

// printJSON is the --json form of a command's result.
func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
