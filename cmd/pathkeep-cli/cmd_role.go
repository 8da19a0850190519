package main

import "fmt"

func (c *CLI) roleCommand(args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "create":
		if len(args) < 1 {
			return fmt.Errorf("usage: pathkeep-cli role create <name> [description] [path...]")
		}
		description := ""
		var paths []string
		if len(args) > 1 {
			description = args[1]
			paths = args[2:]
		}
		return c.client.CreateRole(ctx(), args[0], description, paths)
	case "list":
		principal := ""
		if len(args) > 0 {
			principal = args[0]
		}
		roles, err := c.client.Roles(ctx(), principal)
		if err != nil {
			return err
		}
		return printJSON(roles)
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: pathkeep-cli role get <name>")
		}
		role, err := c.client.Role(ctx(), args[0])
		if err != nil {
			return err
		}
		return printJSON(role)
	case "allow":
		if len(args) != 2 {
			return fmt.Errorf("usage: pathkeep-cli role allow <role> <path>")
		}
		return c.client.AllowRolePath(ctx(), args[0], args[1])
	case "deny":
		if len(args) != 2 {
			return fmt.Errorf("usage: pathkeep-cli role deny <role> <path>")
		}
		return c.client.DenyRolePath(ctx(), args[0], args[1])
	case "grant":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: pathkeep-cli role grant <role> <principal> [ttl-seconds]")
		}
		ttlArg := ""
		if len(args) == 3 {
			ttlArg = args[2]
		}
		ttl, err := parseTTL(ttlArg)
		if err != nil {
			return err
		}
		return c.client.GrantRole(ctx(), args[1], args[0], ttl)
	case "revoke":
		if len(args) != 2 {
			return fmt.Errorf("usage: pathkeep-cli role revoke <role> <principal>")
		}
		return c.client.RevokeRole(ctx(), args[1], args[0])
	default:
		return fmt.Errorf("unknown role subcommand: %s", sub)
	}
}
