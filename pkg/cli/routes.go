package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/platinummonkey/shopfront/pkg/rbac"
)

func newRoutesCommand() *Command {
	cmd := &Command{
		Name:        "routes",
		Description: "List the routes the server serves",
		Flags:       flag.NewFlagSet("routes", flag.ContinueOnError),
		Run:         runRoutes,
	}
	addGlobalFlags(cmd.Flags)
	return cmd
}

func runRoutes(args []string) error {
	cmd := newRoutesCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	var endpoints []rbac.Endpoint
	if _, err := clientFromFlags(cmd.Flags).Get(context.Background(), "/routes", &endpoints); err != nil {
		return fmt.Errorf("failed to list routes: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATH\tNAME\tCONTROLLER\tACTION")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ep.Method, ep.Path, ep.Name, ep.Controller, ep.Action)
	}
	return w.Flush()
}

func newPermissionsCommand() *Command {
	cmd := &Command{
		Name:        "permissions",
		Description: "List registered permissions",
		Flags:       flag.NewFlagSet("permissions", flag.ContinueOnError),
		Run:         runPermissions,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.Bool("include-deleted", false, "Include retired permissions")
	return cmd
}

func runPermissions(args []string) error {
	cmd := newPermissionsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	path := "/routes/from-database"
	if cmd.Flags.Lookup("include-deleted").Value.String() == "true" {
		path += "?includeDeleted=true"
	}

	var permissions []rbac.Permission
	if _, err := clientFromFlags(cmd.Flags).Get(context.Background(), path, &permissions); err != nil {
		return fmt.Errorf("failed to list permissions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tPATH\tNAME\tSTATE")
	for _, p := range permissions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Method, p.Path, p.Name, p.State)
	}
	return w.Flush()
}

func newRulesCommand() *Command {
	cmd := &Command{
		Name:        "rules",
		Description: "List roles with their granted permissions",
		Flags:       flag.NewFlagSet("rules", flag.ContinueOnError),
		Run:         runRules,
	}
	addGlobalFlags(cmd.Flags)
	return cmd
}

func runRules(args []string) error {
	cmd := newRulesCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	var rules []rbac.Rule
	if _, err := clientFromFlags(cmd.Flags).Get(context.Background(), "/routes/all-rules", &rules); err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE ID\tROLE\tPERMISSION ID\tMETHOD\tPATH")
	for _, rule := range rules {
		role := rule.Name
		switch {
		case rule.IsAdmin:
			role += " (admin)"
		case rule.IsDefault:
			role += " (default)"
		}

		if rule.IsAdmin {
			fmt.Fprintf(w, "%d\t%s\t-\t*\t*\n", rule.ID, role)
			continue
		}
		if len(rule.Permissions) == 0 {
			fmt.Fprintf(w, "%d\t%s\t-\t-\t-\n", rule.ID, role)
			continue
		}
		for _, p := range rule.Permissions {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", rule.ID, role, p.ID, p.Method, p.Path)
		}
	}
	return w.Flush()
}

func newGrantCommand() *Command {
	cmd := &Command{
		Name:        "grant",
		Description: "Grant a permission to a role",
		Flags:       flag.NewFlagSet("grant", flag.ContinueOnError),
		Run:         runGrant,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.Int64("role", 0, "Role ID")
	cmd.Flags.Int64("permission", 0, "Permission ID")
	return cmd
}

func runGrant(args []string) error {
	cmd := newGrantCommand()
	return runGrantMutation(cmd, args, "/routes/add-permission-to-role")
}

func newRevokeCommand() *Command {
	cmd := &Command{
		Name:        "revoke",
		Description: "Revoke a permission from a role",
		Flags:       flag.NewFlagSet("revoke", flag.ContinueOnError),
		Run:         runRevoke,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.Int64("role", 0, "Role ID")
	cmd.Flags.Int64("permission", 0, "Permission ID")
	return cmd
}

func runRevoke(args []string) error {
	cmd := newRevokeCommand()
	return runGrantMutation(cmd, args, "/routes/remove-permission-from-role")
}

func runGrantMutation(cmd *Command, args []string, path string) error {
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	roleID, err := positiveID(cmd.Flags, "role")
	if err != nil {
		return err
	}
	permissionID, err := positiveID(cmd.Flags, "permission")
	if err != nil {
		return err
	}

	req := rbac.RolePermissionRequest{RoleID: roleID, ActionPermissionID: permissionID}
	var grant rbac.RoleGrant
	message, err := clientFromFlags(cmd.Flags).Post(context.Background(), path, req, &grant)
	if err != nil {
		return fmt.Errorf("%s failed: %w", cmd.Name, err)
	}

	fmt.Printf("%s: role %d (%s), permission %d (%s)\n", message, grant.RoleID, grant.RoleName, grant.PermissionID, grant.PermissionName)
	return nil
}

func newRetireCommand() *Command {
	cmd := &Command{
		Name:        "retire",
		Description: "Retire a permission so it authorizes nothing",
		Flags:       flag.NewFlagSet("retire", flag.ContinueOnError),
		Run:         runRetire,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.Int64("permission", 0, "Permission ID")
	return cmd
}

func runRetire(args []string) error {
	cmd := newRetireCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	permissionID, err := positiveID(cmd.Flags, "permission")
	if err != nil {
		return err
	}

	var permission rbac.Permission
	req := rbac.RetirePermissionRequest{ActionPermissionID: permissionID}
	message, err := clientFromFlags(cmd.Flags).Post(context.Background(), "/routes/retire-permission", req, &permission)
	if err != nil {
		return fmt.Errorf("retire failed: %w", err)
	}

	fmt.Printf("%s: %d %s %s\n", message, permission.ID, permission.Method, permission.Path)
	return nil
}

func positiveID(fs *flag.FlagSet, name string) (int64, error) {
	id, err := strconv.ParseInt(fs.Lookup(name).Value.String(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("-%s must be a positive id", name)
	}
	return id, nil
}
