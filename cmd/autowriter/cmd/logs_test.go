package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"assets_loaded","vectors":12}
{"time":"2026-03-01T10:00:01Z","level":"WARN","msg":"retrieval_fallback","matched":1}
{"time":"2026-03-01T10:00:02Z","level":"INFO","msg":"listing_written","source":"generated"}
`

func TestLogsCmd(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "tail",
			args: []string{"-n", "10"},
			want: []string{"assets_loaded", "retrieval_fallback", "listing_written"},
		},
		{
			name:    "last line only",
			args:    []string{"-n", "1"},
			want:    []string{"listing_written"},
			notWant: []string{"assets_loaded"},
		},
		{
			name:    "level filter",
			args:    []string{"--level", "warn"},
			want:    []string{"retrieval_fallback"},
			notWant: []string{"listing_written"},
		},
		{
			name:    "grep",
			args:    []string{"--grep", "fallback"},
			want:    []string{"retrieval_fallback"},
			notWant: []string{"assets_loaded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a log file
			testEnv(t)
			writeFile(t, "autowriter.log", sampleLog)

			// When: viewing it
			args := append([]string{"logs", "--file", "autowriter.log", "--no-color"}, tt.args...)
			out := mustRun(t, args...)

			// Then: only the selected entries are printed
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestLogsCmd_BadPattern(t *testing.T) {
	testEnv(t)
	writeFile(t, "autowriter.log", sampleLog)

	_, err := run(t, "logs", "--file", "autowriter.log", "--grep", "(")

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "--grep"))
}
