package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/patterngen"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List, validate and author detection rules",
	}
	cmd.AddCommand(
		newRulesListCmd(a),
		newRulesValidateCmd(a),
		newRulesSchemaCmd(),
		newRulesGenerateCmd(a),
	)
	return cmd
}

func newRulesListCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the effective rule set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := a.ruleStore(cmd.Context())
			if err != nil {
				return err
			}
			base, overrides, err := rs.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			list := make([]rules.Rule, 0, len(base))
			for _, r := range base {
				if o, ok := overrides[r.ID]; ok {
					r = rules.ApplyOverride(r, o)
				}
				if r.Enabled || all {
					list = append(list, r)
				}
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, list)
			}
			printHeader(out, fmt.Sprintf("Rules (%d)", len(list)))
			table := newTable(out, "ID", "Category", "Severity", "Score", "Patterns", "Source", "Enabled")
			for _, r := range list {
				id := r.ID
				if _, ok := overrides[r.ID]; ok {
					id += " *"
				}
				table.Append([]string{
					id, string(r.Category), string(r.Severity), strconv.Itoa(r.RiskScore),
					strconv.Itoa(len(r.Patterns)), string(r.Source), strconv.FormatBool(r.Enabled),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include disabled rules")
	return cmd
}

func newRulesValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|dir>",
		Short: "Validate rule files against the authoring format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := ruleFiles(args[0])
			if err != nil {
				return err
			}
			v := rules.NewValidator()
			out := cmd.OutOrStdout()
			failed := false
			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				rep := v.ValidateFile(data)
				if !rep.OK() {
					failed = true
				}
				if a.jsonOut {
					if err := printJSON(out, map[string]any{"file": path, "report": rep}); err != nil {
						return err
					}
					continue
				}
				printReport(out, path, rep)
			}
			if failed {
				return fmt.Errorf("rule validation failed")
			}
			return nil
		},
	}
}

func newRulesSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the rule file format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := ruleFileSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

func newRulesGenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <description>",
		Short: "Suggest regex patterns from a plain-language description",
		Example: `  securevector rules generate "block requests to reveal the system prompt"
  securevector rules generate 'flag messages containing "wire transfer"'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc := strings.Join(args, " ")
			patterns := patterngen.Generate(desc)
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, patterns)
			}
			if len(patterns) == 0 {
				fmt.Fprintln(out, "no patterns could be derived from the description")
				return nil
			}
			table := newTable(out, "Pattern", "Category", "Confidence", "Description")
			for _, p := range patterns {
				table.Append([]string{p.Pattern, string(p.Category), fmt.Sprintf("%.2f", p.Confidence), p.Description})
			}
			table.Render()
			return nil
		},
	}
}

// ruleFileSchema reflects the authoring format into a JSON Schema document.
func ruleFileSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{ExpandedStruct: true}
	s := reflector.Reflect(&rules.File{})
	s.Title = "securevector rule file"
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return b, nil
}

// ruleFiles expands path into the YAML files it names.
func ruleFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var out []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(p))
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rule files under %s", path)
	}
	return out, nil
}

func printReport(w io.Writer, path string, rep rules.Report) {
	if rep.OK() {
		allowColor.Fprint(w, "ok   ")
	} else {
		blockColor.Fprint(w, "FAIL ")
	}
	fmt.Fprintf(w, "%s (%d rules)\n", path, rep.Rules)
	for _, e := range rep.Errors {
		blockColor.Fprint(w, "  error   ")
		fmt.Fprintln(w, e.String())
	}
	for _, wr := range rep.Warnings {
		warnColor.Fprint(w, "  warning ")
		fmt.Fprintln(w, wr.String())
	}
}
