package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sagars2004/Flowstate/core"
)

// checkConfiguration verifies the environment-derived configuration
// loads and holds positive rate limits.
func checkConfiguration() Step {
	if _, err := core.LoadConfig(); err != nil {
		return Step{Name: "configuration", Status: StepFailed, Err: err}
	}
	return Step{Name: "configuration", Status: StepPassed}
}

// checkTuningFile verifies the optional tuning file parses. A missing
// file passes; built-in defaults apply.
func checkTuningFile() Step {
	config, err := core.LoadConfig()
	if err != nil {
		return Step{Name: "tuning file", Status: StepFailed, Err: err}
	}

	if _, statErr := os.Stat(config.TuningPath); os.IsNotExist(statErr) {
		return Step{Name: "tuning file", Status: StepPassed, Message: "not present, using defaults"}
	}
	if _, err := core.LoadTuning(config.TuningPath); err != nil {
		return Step{Name: "tuning file", Status: StepFailed, Err: err}
	}
	return Step{Name: "tuning file", Status: StepPassed, Message: config.TuningPath}
}

// checkDatabaseDirectory verifies the database's parent directory
// exists or can be created, and is writable.
func checkDatabaseDirectory() Step {
	config, err := core.LoadConfig()
	if err != nil {
		return Step{Name: "database directory", Status: StepFailed, Err: err}
	}

	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Step{Name: "database directory", Status: StepFailed,
			Err: fmt.Errorf("cannot create %s: %w", dir, err)}
	}

	probe := filepath.Join(dir, ".flowstate-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return Step{Name: "database directory", Status: StepFailed,
			Err: fmt.Errorf("%s is not writable: %w", dir, err)}
	}
	f.Close()
	os.Remove(probe)
	return Step{Name: "database directory", Status: StepPassed, Message: dir}
}

// checkLogFile verifies the log file can be opened for append.
func checkLogFile() Step {
	config, err := core.LoadConfig()
	if err != nil {
		return Step{Name: "log file", Status: StepFailed, Err: err}
	}

	f, err := os.OpenFile(config.LogFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Step{Name: "log file", Status: StepFailed,
			Err: fmt.Errorf("cannot open %s: %w", config.LogFilePath, err)}
	}
	f.Close()
	return Step{Name: "log file", Status: StepPassed, Message: config.LogFilePath}
}

// checkInferenceCredentials warns when no API key is configured. The
// system still runs, with deterministic coaching text only.
func checkInferenceCredentials() Step {
	config, err := core.LoadConfig()
	if err != nil {
		return Step{Name: "inference credentials", Status: StepFailed, Err: err}
	}

	if !config.HasInferenceKey() {
		return Step{Name: "inference credentials", Status: StepWarning,
			Message: "no API key, coaching falls back to rule-based text"}
	}
	return Step{Name: "inference credentials", Status: StepPassed}
}
