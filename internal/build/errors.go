package build

import (
	"fmt"
	"strings"
)

// Step names one stage of a source build.
type Step string

const (
	StepPrepare  Step = "prepare"
	StepClone    Step = "clone"
	StepDownload Step = "download"
	StepExtract  Step = "extract"
	StepCompile  Step = "build"
	StepLocate   Step = "locate output"
	StepCopy     Step = "copy"
	StepVerify   Step = "verify"
)

// StepError is a failed build step. Output holds the tail of the step's
// process output, if it ran one.
type StepError struct {
	Step   Step
	Err    error
	Output string
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("build step %q failed: %v", string(e.Step), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	max int
	buf []byte
}

func newTail(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailWriter) String() string {
	return string(t.buf)
}
