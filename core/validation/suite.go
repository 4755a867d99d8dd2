// Package validation runs the startup checks: configuration, tuning
// file, storage paths, and inference credentials. Results print to the
// console with colored status markers before the server comes up.
package validation

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// StepStatus is the outcome of one validation step.
type StepStatus int

const (
	// StepPassed means the check succeeded
	StepPassed StepStatus = iota
	// StepFailed means the check failed and startup should abort
	StepFailed
	// StepWarning means startup can continue in a degraded form
	StepWarning
)

// Step is one completed validation check.
type Step struct {
	// Name identifies the check
	Name string
	// Status is the outcome
	Status StepStatus
	// Message is optional human-readable detail
	Message string
	// Err carries the failure cause when Status is StepFailed
	Err error
}

// Result summarizes a full validation run.
type Result struct {
	// Success is true when no step failed
	Success bool
	// Passed counts successful steps
	Passed int
	// Failed counts failed steps
	Failed int
	// Warnings counts degraded-mode steps
	Warnings int
	// Steps holds every outcome in execution order
	Steps []Step
	// Duration is the total run time
	Duration time.Duration
}

// checkFunc runs one check and reports its outcome.
type checkFunc func() Step

// Suite runs the registered checks in order.
type Suite struct {
	output       io.Writer
	showProgress bool
	checks       []checkFunc
}

// NewSuite creates a suite with the standard startup checks.
func NewSuite() *Suite {
	s := &Suite{output: os.Stdout}
	s.checks = []checkFunc{
		checkConfiguration,
		checkTuningFile,
		checkDatabaseDirectory,
		checkLogFile,
		checkInferenceCredentials,
	}
	return s
}

// WithOutput redirects console output, mainly for tests.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithShowProgress enables the colored console report.
func (s *Suite) WithShowProgress(show bool) *Suite {
	s.showProgress = show
	return s
}

// Validate runs every check and returns the aggregate result.
func (s *Suite) Validate() Result {
	start := time.Now()
	result := Result{Success: true}

	if s.showProgress {
		s.printHeader()
	}

	for _, check := range s.checks {
		step := check()
		result.Steps = append(result.Steps, step)
		switch step.Status {
		case StepPassed:
			result.Passed++
		case StepFailed:
			result.Failed++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
		if s.showProgress {
			s.printStep(step)
		}
	}

	result.Duration = time.Since(start)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *Suite) printHeader() {
	fmt.Fprintln(s.output)
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintln(s.output, "Flowstate startup validation")
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step Step) {
	var icon string
	var clr *color.Color
	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		dim := color.New(color.FgHiBlack)
		dim.Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Err != nil {
		errColor := color.New(color.FgRed)
		errColor.Fprintf(s.output, "    %s\n", step.Err.Error())
	}
}

func (s *Suite) printSummary(result Result) {
	fmt.Fprintln(s.output)
	if result.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprintf(s.output, "  %d checks passed", result.Passed)
		if result.Warnings > 0 {
			warn := color.New(color.FgYellow)
			warn.Fprintf(s.output, ", %d warnings", result.Warnings)
		}
	} else {
		bad := color.New(color.FgRed, color.Bold)
		bad.Fprintf(s.output, "  %d of %d checks failed", result.Failed, len(result.Steps))
	}
	fmt.Fprintf(s.output, " (%s)\n\n", result.Duration.Round(time.Millisecond))
}
