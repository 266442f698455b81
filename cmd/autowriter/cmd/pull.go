package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/autowriter/internal/config"
	"github.com/Aman-CERP/autowriter/internal/embed"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/lifecycle"
	"github.com/Aman-CERP/autowriter/internal/ui"
)

func newPullCmd(root *rootOptions) *cobra.Command {
	var (
		check      bool
		jsonOutput bool
		wait       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the Ollama models the configuration names",
		Long: `Pull the embedding model (when embeddings.provider is ollama) and the
generation model (when generation.backend is ollama) into the Ollama server
each is configured against. Models already present are skipped.

With --check nothing is downloaded; missing models are listed and the
command fails if any are absent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			byHost := ollamaModels(root.cfg)
			if len(byHost) == 0 {
				_, err := fmt.Fprintln(out, "No Ollama models configured")
				return err
			}

			var states []lifecycle.ModelState
			for host, models := range byHost {
				m := lifecycle.NewManager(host)
				if check {
					s, err := m.Check(ctx, models)
					if err != nil {
						return err
					}
					states = append(states, s...)
					continue
				}
				plain := jsonOutput || !ui.IsTTY(out)
				if err := m.EnsureModels(ctx, models, wait, lifecycle.ProgressPrinter(out, plain)); err != nil {
					return err
				}
			}

			if !check {
				_, err := fmt.Fprintln(out, "Models ready")
				return err
			}

			missing := 0
			for _, s := range states {
				if !s.Present {
					missing++
				}
			}
			if jsonOutput {
				if err := printJSON(out, states); err != nil {
					return err
				}
			} else {
				for _, s := range states {
					mark := "present"
					if !s.Present {
						mark = "missing"
					}
					_, _ = fmt.Fprintf(out, "%-10s %-30s %s\n", s.Role, s.Name, mark)
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d model(s) missing; run 'autowriter pull'", missing)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only report missing models")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output --check results as JSON")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the Ollama server")

	return cmd
}

// ollamaModels groups the Ollama-served models by host, keyed by role.
func ollamaModels(cfg *config.Config) map[string]map[string]string {
	byHost := make(map[string]map[string]string)
	add := func(host, role, model string) {
		if model == "" {
			return
		}
		if byHost[host] == nil {
			byHost[host] = make(map[string]string)
		}
		byHost[host][role] = model
	}
	if cfg.Embeddings.Provider == string(embed.ProviderOllama) {
		add(cfg.Embeddings.Host, "embedding", cfg.Embeddings.Model)
	}
	if cfg.Generation.Backend == generate.BackendOllama {
		add(cfg.Generation.Host, "generation", cfg.Generation.Model)
	}
	return byHost
}
