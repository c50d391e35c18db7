package capture

import (
	"regexp"
	"strconv"
	"strings"
)

// StackFrame is one parsed line of a raw stack trace string.
type StackFrame struct {
	FunctionName string `json:"function_name,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	LineNumber   int    `json:"line_number,omitempty"`
	ColumnNumber int    `json:"column_number,omitempty"`
}

var (
	// V8 style: "at func (file:line:col)" or "at file:line:col"
	v8FrameRe = regexp.MustCompile(`^\s*at\s+(?:(.+?)\s+\()?(.*?):(\d+):(\d+)\)?\s*$`)
	// Gecko/WebKit style: "func@file:line:col" or "@file:line:col"
	geckoFrameRe = regexp.MustCompile(`^\s*(.*?)@(.*?):(\d+):(\d+)\s*$`)
)

// ParseStackTrace converts a raw multi-line trace string into structured
// frames. Lines that match no known format are dropped; parsing never fails.
func ParseStackTrace(raw string) []StackFrame {
	if raw == "" {
		return nil
	}

	var frames []StackFrame
	for _, line := range strings.Split(raw, "\n") {
		if frame, ok := parseFrameLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

func parseFrameLine(line string) (StackFrame, bool) {
	if strings.TrimSpace(line) == "" {
		return StackFrame{}, false
	}

	if m := v8FrameRe.FindStringSubmatch(line); m != nil {
		return buildFrame(m[1], m[2], m[3], m[4])
	}
	if m := geckoFrameRe.FindStringSubmatch(line); m != nil {
		return buildFrame(m[1], m[2], m[3], m[4])
	}
	return StackFrame{}, false
}

func buildFrame(fn, file, lineStr, colStr string) (StackFrame, bool) {
	lineNo, err := strconv.Atoi(lineStr)
	if err != nil {
		return StackFrame{}, false
	}
	colNo, err := strconv.Atoi(colStr)
	if err != nil {
		return StackFrame{}, false
	}
	return StackFrame{
		FunctionName: strings.TrimSpace(fn),
		FileName:     strings.TrimSpace(file),
		LineNumber:   lineNo,
		ColumnNumber: colNo,
	}, true
}
