// Package lifecycle prepares a local Ollama server for autowriter: it
// checks that the server answers and pulls the embedding and generation
// models the configuration names.
package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
)

const (
	// DefaultHost is the default Ollama API endpoint.
	DefaultHost = "http://localhost:11434"

	// ReadyPollInterval is the initial polling interval for WaitForReady.
	ReadyPollInterval = 100 * time.Millisecond

	// MaxReadyPollInterval caps exponential backoff.
	MaxReadyPollInterval = 2 * time.Second
)

// Manager talks to the Ollama management API.
type Manager struct {
	host   string
	client *http.Client
	// pulls stream for minutes; only the header wait is bounded.
	pullClient *http.Client
}

// PullProgress is one line of the streaming pull response.
type PullProgress struct {
	Model     string
	Status    string
	Digest    string
	Total     int64
	Completed int64
	Percent   float64
}

// ModelState reports whether one model is present.
type ModelState struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Present bool   `json:"present"`
}

// NewManager creates a manager for host.
func NewManager(host string) *Manager {
	if host == "" {
		host = DefaultHost
	}
	return &Manager{
		host:       strings.TrimRight(host, "/"),
		client:     &http.Client{Timeout: 5 * time.Second},
		pullClient: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second}},
	}
}

// Host returns the configured Ollama host.
func (m *Manager) Host() string {
	return m.host
}

// IsRunning checks if the Ollama API is responding.
func (m *Manager) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// WaitForReady polls until Ollama responds or timeout elapses.
func (m *Manager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := ReadyPollInterval
	for {
		if m.IsRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return awerrors.New(awerrors.ErrCodeNetworkUnavailable,
				"timed out waiting for Ollama at "+m.host, ctx.Err()).
				WithSuggestion("Start it with 'ollama serve' or set OLLAMA_HOST")
		case <-time.After(interval):
		}

		interval *= 2
		if interval > MaxReadyPollInterval {
			interval = MaxReadyPollInterval
		}
	}
}

// ListModels returns the names of locally available models.
func (m *Manager) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, awerrors.New(awerrors.ErrCodeNetworkUnavailable, "cannot reach Ollama at "+m.host, err).
			WithSuggestion("Start it with 'ollama serve' or set OLLAMA_HOST")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	models := make([]string, len(result.Models))
	for i, m := range result.Models {
		models[i] = m.Name
	}
	return models, nil
}

// hasModel matches exact names, and a bare name against its ":latest" tag.
func hasModel(available []string, model string) bool {
	want := normalizeModel(model)
	for _, a := range available {
		if normalizeModel(a) == want {
			return true
		}
	}
	return false
}

func normalizeModel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.Contains(name, ":") {
		name += ":latest"
	}
	return name
}

// Check reports which of models (role -> name) are present.
func (m *Manager) Check(ctx context.Context, models map[string]string) ([]ModelState, error) {
	available, err := m.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	states := make([]ModelState, 0, len(models))
	for _, role := range sortedRoles(models) {
		states = append(states, ModelState{
			Name:    models[role],
			Role:    role,
			Present: hasModel(available, models[role]),
		})
	}
	return states, nil
}

// PullModel downloads model, reporting progress. A model that is already
// present is not pulled again.
func (m *Manager) PullModel(ctx context.Context, model string, progress func(PullProgress)) error {
	available, err := m.ListModels(ctx)
	if err != nil {
		return err
	}
	if hasModel(available, model) {
		return nil
	}

	body, err := json.Marshal(map[string]any{"model": model, "stream": true})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.pullClient.Do(req)
	if err != nil {
		return awerrors.New(awerrors.ErrCodeNetworkUnavailable, "failed to start pull of "+model, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pull of %s failed with status %d: %s", model, resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var p struct {
			Status    string `json:"status"`
			Digest    string `json:"digest"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(line, &p); err != nil {
			continue
		}
		if p.Error != "" {
			return fmt.Errorf("pull of %s failed: %s", model, p.Error)
		}

		if progress != nil {
			percent := 0.0
			if p.Total > 0 {
				percent = float64(p.Completed) / float64(p.Total) * 100
			}
			progress(PullProgress{
				Model:     model,
				Status:    p.Status,
				Digest:    p.Digest,
				Total:     p.Total,
				Completed: p.Completed,
				Percent:   percent,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

// EnsureModels waits for the server, then pulls every missing model in
// role order.
func (m *Manager) EnsureModels(ctx context.Context, models map[string]string, wait time.Duration, progress func(PullProgress)) error {
	if err := m.WaitForReady(ctx, wait); err != nil {
		return err
	}
	for _, role := range sortedRoles(models) {
		if err := m.PullModel(ctx, models[role], progress); err != nil {
			return err
		}
	}
	return nil
}

func sortedRoles(models map[string]string) []string {
	roles := make([]string, 0, len(models))
	for role, name := range models {
		if name != "" {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	return roles
}
