package cli

import (
	"flag"
	"fmt"
	"os"
	"sort"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "shopfront-cli",
		Description: "Shopfront - route permission administration CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("shopfront-cli", flag.ExitOnError),
	}

	root.Subcommands["routes"] = newRoutesCommand()
	root.Subcommands["permissions"] = newPermissionsCommand()
	root.Subcommands["rules"] = newRulesCommand()
	root.Subcommands["grant"] = newGrantCommand()
	root.Subcommands["revoke"] = newRevokeCommand()
	root.Subcommands["retire"] = newRetireCommand()

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the subcommand named by args[0]
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for _, name := range names {
		fmt.Printf("  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	fmt.Printf("\nEvery command accepts -server (or $%s) and -token (or $%s).\n", EnvServer, EnvToken)
	return nil
}
