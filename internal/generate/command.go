package generate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandGenerator pipes the prompt into `ollama run <model>` and returns
// its standard output.
type CommandGenerator struct {
	binary string
	model  string
}

// NewCommandGenerator creates a CLI backend. binary defaults to "ollama".
func NewCommandGenerator(binary, model string) *CommandGenerator {
	if binary == "" {
		binary = "ollama"
	}
	if model == "" {
		model = DefaultModel
	}
	return &CommandGenerator{binary: binary, model: model}
}

// Name returns "ollama-cli".
func (c *CommandGenerator) Name() string { return "ollama-cli" }

// Model returns the model name.
func (c *CommandGenerator) Model() string { return c.model }

// Complete runs the command once. A non-zero exit is an error carrying the
// command's stderr.
func (c *CommandGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, "run", c.model)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s run %s: %w", c.binary, c.model, err)
		}
		return "", fmt.Errorf("%s run %s: %w: %s", c.binary, c.model, err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Available reports whether the binary is on PATH.
func (c *CommandGenerator) Available(context.Context) bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}
