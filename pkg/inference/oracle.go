package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ReasonUnavailable is the Err reason when no oracle is configured or found
const ReasonUnavailable = "oracle unavailable"

// Oracle suggests tag values for a file. Implementations never panic;
// every failure is reported as an Err result.
type Oracle interface {
	Infer(ctx context.Context, guess Guess) Result
}

// CommandOracle runs an external program per request. The guess is written
// to its stdin as JSON and a Suggestion is read back from stdout.
type CommandOracle struct {
	command string
	args    []string
	timeout time.Duration
}

// NewCommandOracle resolves command on PATH. An empty or missing command
// yields an oracle whose every answer is Err(ReasonUnavailable).
func NewCommandOracle(command string, args []string, timeout time.Duration) *CommandOracle {
	o := &CommandOracle{
		args:    append([]string(nil), args...),
		timeout: timeout,
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return o
	}
	if path, err := exec.LookPath(command); err == nil {
		o.command = path
	} else {
		log.WithFields(logrus.Fields{
			"command": command,
			"error":   err,
		}).Warn("Inference command not found, falling back to filename parsing")
	}
	return o
}

// Available reports whether the command was found
func (o *CommandOracle) Available() bool {
	return o.command != ""
}

// Infer runs the command once
func (o *CommandOracle) Infer(ctx context.Context, guess Guess) Result {
	if !o.Available() {
		return Err(ReasonUnavailable)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	input, err := json.Marshal(guess)
	if err != nil {
		return Err(fmt.Sprintf("encode request: %v", err))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, o.command, o.args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Err("oracle timed out")
		}
		if ctx.Err() != nil {
			return Err(ctx.Err().Error())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return Err("oracle failed: " + msg)
	}

	var s Suggestion
	if err := json.Unmarshal(stdout.Bytes(), &s); err != nil {
		return Err(fmt.Sprintf("oracle returned invalid JSON: %v", err))
	}
	if s.Empty() {
		return Err("oracle returned no values")
	}
	s.Confidence = normalizeConfidence(s.Confidence)
	s.Source = SourceOracle
	return Ok(s)
}
