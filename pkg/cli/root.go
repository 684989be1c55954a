package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the warden-admin root command
func NewRootCommand(backend Backend, out io.Writer) *Command {
	root := &Command{
		Name:        "warden-admin",
		Description: "Warden - tenant isolation administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("warden-admin", flag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		newMigrateCommand(backend, out),
		newGrantSuperAdminCommand(backend, out),
		newRevokeSuperAdminCommand(backend, out),
		newIssueTokenCommand(backend, out),
		newCreateTenantCommand(backend, out),
	} {
		cmd.Flags.SetOutput(out)
		root.Subcommands[cmd.Name] = cmd
	}
	root.Flags.SetOutput(out)

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := c.Flags.Output()
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-18s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
