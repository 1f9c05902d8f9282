package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/server"
	"github.com/teemow/inboxsorter/internal/store"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Render a markdown reference of the registered MCP tools and their
arguments. Tools that move messages are marked, since --read-only hides them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			md, err := toolsReference()
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), md)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(md), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// toolsReference registers the tools against an in-memory store with the
// default configuration; no credentials are needed to describe them.
func toolsReference() (string, error) {
	sc, err := server.NewServerContext(context.Background(), config.Default(), store.NewMemory())
	if err != nil {
		return "", fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = sc.Shutdown() }()

	full, err := newMCPServer(sc, false)
	if err != nil {
		return "", err
	}
	readOnly, err := newMCPServer(sc, true)
	if err != nil {
		return "", err
	}

	safe := readOnly.ListTools()
	tools := make([]mcp.Tool, 0, len(full.ListTools()))
	moves := make(map[string]bool)
	for name, st := range full.ListTools() {
		tools = append(tools, st.Tool)
		if _, ok := safe[name]; !ok {
			moves[name] = true
		}
	}
	return generateToolsMarkdown(tools, moves), nil
}

// generateToolsMarkdown groups tools by name prefix. Tools named in moves get
// a note that they change the mailbox.
func generateToolsMarkdown(tools []mcp.Tool, moves map[string]bool) string {
	groups := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		group := toolGroup(tool.Name)
		groups[group] = append(groups[group], tool)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("# inboxsorter MCP tools\n\n")
	sb.WriteString("Generated by `inboxsorter generate-docs`. Every tool takes a `token` argument: the access token returned by `/api/auth/callback`.\n\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", name, strings.ToLower(name))
	}

	for _, name := range names {
		group := groups[name]
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })

		fmt.Fprintf(&sb, "\n## %s\n", name)
		for _, tool := range group {
			writeTool(&sb, tool, moves[tool.Name])
		}
	}
	return sb.String()
}

func toolGroup(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	switch prefix {
	case "classify":
		return "Classification"
	case "rules":
		return "Rules"
	default:
		return "Other"
	}
}

func writeTool(sb *strings.Builder, tool mcp.Tool, moves bool) {
	fmt.Fprintf(sb, "\n### %s\n\n", tool.Name)
	if tool.Description != "" {
		sb.WriteString(tool.Description + "\n\n")
	}
	if moves {
		sb.WriteString("Moves messages. Not registered with `--read-only`.\n\n")
	}
	if len(tool.InputSchema.Properties) == 0 {
		return
	}

	args := make([]string, 0, len(tool.InputSchema.Properties))
	for arg := range tool.InputSchema.Properties {
		args = append(args, arg)
	}
	sort.Strings(args)

	sb.WriteString("| Argument | Type | Required | Description |\n|---|---|---|---|\n")
	for _, arg := range args {
		prop, _ := tool.InputSchema.Properties[arg].(map[string]any)
		typ, _ := prop["type"].(string)
		if typ == "" {
			typ = "any"
		}
		desc, _ := prop["description"].(string)
		required := "no"
		if slices.Contains(tool.InputSchema.Required, arg) {
			required = "yes"
		}
		fmt.Fprintf(sb, "| `%s` | %s | %s | %s |\n", arg, typ, required, desc)
	}
}
