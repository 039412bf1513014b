package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentflow/internal/templates"
)

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesValidateCmd)
}

// templatesCmd is the parent command for template operations
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage agent templates",
}

// templatesValidateCmd checks template files for missing sections
var templatesValidateCmd = &cobra.Command{
	Use:   "validate [file-or-dir...]",
	Short: "Validate agent template files",
	Long: `Validate agent template markdown files. Each template needs a role
title, a system prompt and at least one responsibility.

Without arguments the configured template directories are checked.

Examples:
  agentflow templates validate
  agentflow templates validate agents/custom/security.md`,
	RunE: runTemplatesValidate,
}

func runTemplatesValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var problems map[string][]string
	if len(args) > 0 {
		files, err := templateFiles(args)
		if err != nil {
			return err
		}
		problems = validateFiles(files)
		if len(problems) == 0 {
			fmt.Fprintf(out, "%d template(s) valid\n", len(files))
		}
	} else {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close(cmd.Context())

		loader, err := templates.NewLoader(a.cfg.System.AgentTemplatesDir, a.cfg.System.CustomTemplatesDir, templates.WithLogger(a.logger))
		if err != nil {
			return err
		}
		problems = loader.ValidateDir()
		if len(problems) == 0 {
			fmt.Fprintf(out, "%d role template(s) loaded: %v\n", len(loader.Roles()), loader.Roles())
		}
	}

	if len(problems) > 0 {
		printProblems(out, problems)
		return fmt.Errorf("%d invalid template(s)", len(problems))
	}
	return nil
}

// templateFiles expands directories to the *.md files they contain.
func templateFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.md"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func validateFiles(files []string) map[string][]string {
	problems := map[string][]string{}
	for _, f := range files {
		if errs := templates.ValidateFile(f); len(errs) > 0 {
			problems[f] = errs
		}
	}
	return problems
}

func printProblems(w io.Writer, problems map[string][]string) {
	paths := make([]string, 0, len(problems))
	for p := range problems {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintln(w, badStyle.Render(p))
		for _, msg := range problems[p] {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
}
