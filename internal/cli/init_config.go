package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/conclave/internal/config"
	"github.com/ppiankov/conclave/internal/tension"
	"github.com/ppiankov/conclave/internal/tier"
)

var (
	initPath  string
	initForce bool
)

func init() {
	rootCmd.AddCommand(initConfigCmd)
	initConfigCmd.Flags().StringVar(&initPath, "path", "", "Config directory (default ~/.conclave)")
	initConfigCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Bootstrap conclave configuration",
	Long: "Creates the config directory with a commented default engine config,\n" +
		"tier map, and tension protocol file. Existing files are left alone\n" +
		"unless --force is given.",
	RunE: runInitConfig,
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	dir := initPath
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".conclave")
	}

	var created []string
	files := []struct {
		name    string
		content string
	}{
		{"config.yaml", config.DefaultConfigYAML()},
		{"tiers.yaml", tier.DefaultMapYAML()},
		{"protocols.yaml", tension.DefaultProtocolsYAML()},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		wrote, err := writeIfMissing(path, f.content)
		if err != nil {
			return err
		}
		if wrote {
			created = append(created, path)
		}
	}

	fmt.Println("conclave init-config complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
	}
	fmt.Println()
	fmt.Println("Deliberate a proposal:")
	fmt.Println("  conclave run --title \"...\" --body \"...\"")

	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
