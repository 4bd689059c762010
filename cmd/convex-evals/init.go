package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oIoTShipTalk/convex-evals/internal/backend"
)

var (
	initForce      bool
	initSkipChecks bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize an evals workspace",
	Long: `Initialize a directory for running evaluations.

This command sets up everything needed to run the harness:
  - Verifies prerequisites (bun, convex-local-backend)
  - Creates an evals/ directory with an example test case
  - Creates a .convex-evals.yaml starter configuration

The directory argument is optional and defaults to the current
directory.

Examples:
  convex-evals init              # Initialize current directory
  convex-evals init ./my-evals   # Initialize specific directory
  convex-evals init --force      # Overwrite an existing configuration`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
	initCmd.Flags().BoolVar(&initSkipChecks, "skip-checks", false, "Skip prerequisite checks")
}

// starterConfig mirrors the config file schema for the generated
// starter file.
type starterConfig struct {
	Anthropic struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"anthropic"`
	Evals struct {
		Root        string `yaml:"root"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"evals"`
	Backend struct {
		Binary       string `yaml:"binary"`
		Port         int    `yaml:"port"`
		SitePort     int    `yaml:"site_port"`
		ProbeTimeout string `yaml:"probe_timeout"`
	} `yaml:"backend"`
	Lint struct {
		ESLintConfig string `yaml:"eslint_config"`
	} `yaml:"lint"`
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing convex-evals in %s...\n\n", absPath)

	if !initSkipChecks {
		if err := checkBun(); err != nil {
			printStatus("✗", "bun not found", color.FgRed)
			return err
		}
		printStatus("✓", "bun found", color.FgGreen)

		if _, err := exec.LookPath(backend.DefaultBinary); err != nil {
			printStatus("⚠", "convex-local-backend not found in PATH (the deploy stage needs it)", color.FgYellow)
		} else {
			printStatus("✓", "convex-local-backend found", color.FgGreen)
		}

		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
		} else {
			printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
		}
	}

	if err := createExampleEval(absPath); err != nil {
		return err
	}

	if err := createStarterConfig(absPath); err != nil {
		return err
	}

	fmt.Printf("\n%s Initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Add test cases under evals/<category>/<test>/TASK.txt")
	fmt.Println()
	fmt.Println("  2. Run the harness:")
	fmt.Println("     convex-evals run")
	fmt.Println()
	fmt.Println("  3. Learn more:")
	fmt.Println("     convex-evals --help")

	return nil
}

// createExampleEval scaffolds the evals root with one example test
// case so a fresh workspace has something to run.
func createExampleEval(root string) error {
	exampleDir := filepath.Join(root, "evals", "fundamentals", "http_echo")
	taskPath := filepath.Join(exampleDir, "TASK.txt")

	if _, err := os.Stat(taskPath); err == nil {
		printStatus("✓", "evals directory exists", color.FgGreen)
		return nil
	}

	if err := os.MkdirAll(exampleDir, 0755); err != nil {
		return fmt.Errorf("creating evals directory: %w", err)
	}

	task := `Create a Convex backend with an HTTP endpoint at /echo that
accepts a POST request and responds with the request body unchanged.
Use an httpAction registered in convex/http.ts.
`
	if err := os.WriteFile(taskPath, []byte(task), 0644); err != nil {
		return fmt.Errorf("creating example task: %w", err)
	}
	printStatus("✓", "Created evals/ with an example test case", color.FgGreen)
	return nil
}

// createStarterConfig writes a .convex-evals.yaml populated with the
// built-in defaults.
func createStarterConfig(root string) error {
	configPath := filepath.Join(root, ".convex-evals.yaml")

	if _, err := os.Stat(configPath); err == nil && !initForce {
		printStatus("✓", ".convex-evals.yaml exists (use --force to overwrite)", color.FgGreen)
		return nil
	}

	var sc starterConfig
	sc.Anthropic.APIKey = "${ANTHROPIC_API_KEY}"
	sc.Anthropic.Model = "claude-sonnet-4-20250514"
	sc.Evals.Root = "evals"
	sc.Evals.Concurrency = 4
	sc.Backend.Binary = backend.DefaultBinary
	sc.Backend.Port = backend.DefaultPort
	sc.Backend.SitePort = backend.DefaultSitePort
	sc.Backend.ProbeTimeout = backend.DefaultProbeTimeout.Round(time.Second).String()
	sc.Lint.ESLintConfig = "eslint.config.mjs"

	data, err := yaml.Marshal(&sc)
	if err != nil {
		return fmt.Errorf("marshaling starter config: %w", err)
	}

	header := []byte("# convex-evals configuration\n# Overrides defaults from ~/.config/convex-evals/config.yaml\n\n")
	if err := os.WriteFile(configPath, append(header, data...), 0644); err != nil {
		return fmt.Errorf("creating starter config: %w", err)
	}
	printStatus("✓", "Created .convex-evals.yaml", color.FgGreen)
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
