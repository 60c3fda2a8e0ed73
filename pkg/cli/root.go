package cli

import (
	"fmt"
	"sort"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "meridian-admin",
		Description: "Meridian operational tooling",
		Subcommands: make(map[string]*Command),
	}

	root.Subcommands["migrate"] = newMigrateCommand()
	root.Subcommands["token"] = newTokenCommand()
	root.Subcommands["seed-roles"] = newSeedRolesCommand()
	root.Subcommands["audit"] = newAuditCommand()

	return root
}

// Execute dispatches to a subcommand
func (c *Command) Execute(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-12s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
