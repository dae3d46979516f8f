package audio

import (
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strings"
)

// TempoRunner shells out to the tempo-estimation collaborator. The
// contract: one positional track-path argument, one JSON object on
// stdout, nonzero exit or unparseable output = failure. Failure is
// always tolerated upstream.
type TempoRunner struct {
	Command string // e.g. "estimate_bpm"
}

type tempoOutput struct {
	OK         bool    `json:"ok"`
	BPM        float64 `json:"bpm"`
	BPMInt     int     `json:"bpmInt"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

func (t TempoRunner) Estimate(trackPath string) (int, error) {
	cmd := exec.Command(t.Command, trackPath)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("tempo estimator: %w", err)
	}

	var result tempoOutput
	// The estimator may log above its result; parse the last line.
	if err := json.Unmarshal([]byte(lastLine(out)), &result); err != nil {
		return 0, fmt.Errorf("tempo estimator output: %w", err)
	}
	if !result.OK {
		return 0, fmt.Errorf("tempo estimator: %s", orUnknown(result.Error))
	}

	bpm := result.BPMInt
	if bpm == 0 && result.BPM > 0 {
		bpm = int(math.Round(result.BPM))
	}
	if bpm <= 0 || math.IsNaN(result.BPM) || math.IsInf(result.BPM, 0) {
		return 0, fmt.Errorf("tempo estimator: non-finite tempo")
	}
	return bpm, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown failure"
	}
	return s
}
