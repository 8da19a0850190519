package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pathkeep/pathkeep/client"
	"github.com/pathkeep/pathkeep/core/acl"
)

// Version is set at build time
var Version = "dev"

// CLI holds the client configuration
type CLI struct {
	client *client.Client
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cli := &CLI{
		client: client.New(
			getEnv("PATHKEEP_URL", "http://localhost:8080/api/v1"),
			client.WithToken(os.Getenv("PATHKEEP_TOKEN")),
		),
	}

	var err error
	switch cmd {
	case "acl":
		err = cli.aclCommand(args)
	case "allow":
		err = cli.allowCommand(args)
	case "deny":
		err = cli.denyCommand(args)
	case "check":
		err = cli.checkCommand(args)
	case "paths":
		err = cli.pathsCommand(args)
	case "role", "roles":
		err = cli.roleCommand(args)
	case "version":
		fmt.Printf("pathkeep-cli %s\n", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) aclCommand(args []string) error {
	ctx := ctx()
	if len(args) == 0 || args[0] == "show" {
		m, err := c.client.Acl(ctx)
		if err != nil {
			return err
		}
		return printJSON(m)
	}
	switch args[0] {
	case "set-operator":
		if len(args) != 3 {
			return fmt.Errorf("usage: pathkeep-cli acl set-operator <address|acl> <value>")
		}
		return c.client.SetOperator(ctx, acl.Operator{
			Kind:  acl.OperatorKind(args[1]),
			Value: args[2],
		})
	default:
		return fmt.Errorf("unknown acl subcommand: %s", args[0])
	}
}

func (c *CLI) allowCommand(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: pathkeep-cli allow <principal> <path> [ttl-seconds]")
	}
	ttlArg := ""
	if len(args) == 3 {
		ttlArg = args[2]
	}
	ttl, err := parseTTL(ttlArg)
	if err != nil {
		return err
	}
	return c.client.Allow(ctx(), args[0], args[1], ttl)
}

func (c *CLI) denyCommand(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: pathkeep-cli deny <principal> <path>")
	}
	return c.client.Deny(ctx(), args[0], args[1])
}

func (c *CLI) checkCommand(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: pathkeep-cli check <principal> <path> [path...]")
	}
	ok, err := c.client.IsAllowed(ctx(), acl.IsAllowedParams{
		Principal: args[0],
		Paths:     args[1:],
	})
	if err != nil {
		return err
	}
	if ok {
		fmt.Println("allowed")
	} else {
		fmt.Println("denied")
	}
	return nil
}

func (c *CLI) pathsCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pathkeep-cli paths <acl|role|principal> [name]")
	}
	subject := acl.Subject{Kind: acl.SubjectKind(args[0])}
	if len(args) > 1 {
		subject.Name = args[1]
	}

	// Follow cursors until the enumeration is exhausted.
	cursor := ""
	for {
		page, err := c.client.Paths(ctx(), acl.PathsParams{Subject: subject, Cursor: cursor})
		if err != nil {
			return err
		}
		for _, pg := range page.Paths {
			if pg.ExpiresAt != nil {
				fmt.Printf("%s\t(expires %s)\n", pg.Path, pg.ExpiresAt.Format(time.RFC3339))
			} else {
				fmt.Println(pg.Path)
			}
		}
		if page.Cursor == "" {
			return nil
		}
		cursor = page.Cursor
	}
}

func parseTTL(arg string) (*int64, error) {
	if arg == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ttl %q: %w", arg, err)
	}
	return &n, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func ctx() context.Context {
	return context.Background()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println(`pathkeep-cli - Pathkeep ACL management

Usage:
  pathkeep-cli <command> [arguments]

Commands:
  acl show                                  Show ACL metadata
  acl set-operator <address|acl> <value>    Replace the operator
  allow <principal> <path> [ttl]            Grant direct access
  deny <principal> <path>                   Remove a direct grant
  check <principal> <path> [path...]        Check authorization
  paths <acl|role|principal> [name]         Enumerate paths
  role create <name> [description] [path...]
  role list [principal]
  role get <name>
  role allow <role> <path>
  role deny <role> <path>
  role grant <role> <principal> [ttl]
  role revoke <role> <principal>
  version                                   Print version

Environment:
  PATHKEEP_URL     Server base URL (default http://localhost:8080/api/v1)
  PATHKEEP_TOKEN   Bearer token for mutating commands`)
}
