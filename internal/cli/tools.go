package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/toolcalls"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
)

func newToolsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect tool permissions and check model tool calls",
	}
	cmd.AddCommand(newToolsListCmd(a), newToolsCheckCmd(a), newToolsExtractCmd(a))
	return cmd
}

func newToolsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List essential and custom tools with their effective action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.guard(cmd.Context())
			if err != nil {
				return err
			}
			views, err := g.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, views)
			}

			printHeader(out, fmt.Sprintf("Tools (registry %s)", g.Essential().Version()))
			table := newTable(out, "Tool", "Source", "Risk", "Default", "Effective", "Capabilities")
			for _, v := range views {
				effective := string(v.EffectiveAction)
				if v.HasOverride {
					effective += " *"
				}
				table.Append([]string{
					v.ToolID, v.Source, string(v.Risk), string(v.DefaultPermission),
					effective, strings.Join(v.Capabilities, ","),
				})
			}
			table.Render()
			mutedColor.Fprintln(out, "* user override")
			return nil
		},
	}
}

func newToolsCheckCmd(a *app) *cobra.Command {
	var arguments string

	cmd := &cobra.Command{
		Use:   "check <function-name>",
		Short: "Decide whether a single tool call would be allowed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.guard(cmd.Context())
			if err != nil {
				return err
			}
			call := toolcalls.ToolCall{FunctionName: args[0], Arguments: arguments}
			d, err := g.EvaluateCall(cmd.Context(), call)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				if err := printJSON(out, d); err != nil {
					return err
				}
			} else {
				printDecision(out, call, d)
			}
			if d.Action == tools.ActionBlock {
				return ErrThreatDetected
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&arguments, "args", "{}", "Call arguments as a JSON string")
	return cmd
}

func newToolsExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file|->",
		Short: "Extract tool calls from a raw LLM response and evaluate each one",
		Long: `Read an OpenAI, Anthropic, Gemini, Cohere or Ollama response body and
print every tool call it requests along with the permission decision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readFileArg(cmd, args[0])
			if err != nil {
				return err
			}
			g, err := a.guard(cmd.Context())
			if err != nil {
				return err
			}
			decisions, err := g.EvaluateResponse(cmd.Context(), body)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			blocked := false
			for _, cd := range decisions {
				if cd.Decision.Action == tools.ActionBlock {
					blocked = true
				}
			}
			if a.jsonOut {
				if err := printJSON(out, decisions); err != nil {
					return err
				}
			} else if len(decisions) == 0 {
				fmt.Fprintln(out, "no tool calls found")
			} else {
				table := newTable(out, "Function", "Resolved", "Action", "Reason")
				for _, cd := range decisions {
					table.Append([]string{
						cd.FunctionName, deref(cd.Decision.ToolName),
						actionColor(cd.Decision.Action).Sprint(cd.Decision.Action), cd.Decision.Reason,
					})
				}
				table.Render()
			}
			if blocked {
				return ErrThreatDetected
			}
			return nil
		},
	}
}

func printDecision(w io.Writer, call toolcalls.ToolCall, d tools.Decision) {
	actionColor(d.Action).Fprintf(w, "%s", d.Action)
	fmt.Fprintf(w, "  %s", call.FunctionName)
	if d.ToolName != nil && *d.ToolName != call.FunctionName {
		fmt.Fprintf(w, " -> %s", *d.ToolName)
	}
	if d.Risk != nil {
		fmt.Fprintf(w, "  risk=%s", *d.Risk)
	}
	fmt.Fprintln(w)
	mutedColor.Fprintln(w, d.Reason)
}

func readFileArg(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return b, nil
}
