package cmd

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/signalnine/expandbench/internal/config"
	"github.com/signalnine/expandbench/internal/corpus"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config, the corpus and that both tools resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fmt.Printf("Config %s: ok\n", cfgFile)

			files, err := corpus.Discover(cfg.Corpus.Root, cfg.Corpus.Extension)
			if err != nil {
				return err
			}
			fmt.Printf("Corpus %s: %d %s files\n", cfg.Corpus.Root, len(files), cfg.Corpus.Extension)

			missing := checkTools(cfg)
			if missing > 0 {
				return fmt.Errorf("%d tool(s) could not be resolved", missing)
			}
			return nil
		},
	}
}

// checkTools prints where each tool resolves and returns how many did not.
// Tools run inside a container are resolved by the image, not checked here.
func checkTools(cfg *config.Config) int {
	tools := []struct {
		name string
		path string
	}{
		{"loop_expander", cfg.Tools.LoopExpander.Path},
		{"spectector", cfg.Tools.Spectector.Path},
	}
	if cfg.Tools.Docker.Image != "" {
		for _, t := range tools {
			fmt.Printf("%s: %s (inside %s)\n", t.name, t.path, cfg.Tools.Docker.Image)
		}
		return 0
	}
	missing := 0
	for _, t := range tools {
		resolved, err := exec.LookPath(t.path)
		if err != nil {
			fmt.Printf("%s: MISSING (%v)\n", t.name, err)
			missing++
			continue
		}
		fmt.Printf("%s: %s\n", t.name, resolved)
	}
	return missing
}
