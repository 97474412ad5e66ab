// Package cli implements rcctl, the operator tool for recordcache
// deployments: it checks and scaffolds configuration files and inspects or
// bumps entry versions in the shared version store.
package cli

import (
	"context"
	"io"
)

const (
	configEnv    = "RECORDCACHE_CONFIG"
	redisAddrEnv = "RECORDCACHE_REDIS_ADDR"

	defaultConfigPath = "recordcache.hujson"
)

// Run is the entry point of rcctl. Returns the exit code.
func Run(ctx context.Context, out, errOut io.Writer, args []string, env map[string]string) int {
	o := NewIO(out, errOut)
	commands := []*Command{
		checkCmd(env),
		initCmd(),
		versionsCmd(env),
	}

	if len(args) < 2 || args[1] == "-h" || args[1] == "--help" || args[1] == "help" {
		printUsage(o, commands)
		return 0
	}
	for _, c := range commands {
		if c.Name() == args[1] {
			return c.Run(ctx, o, args[2:])
		}
	}
	o.ErrPrintln("error: unknown command:", args[1])
	printUsage(NewIO(errOut, errOut), commands)
	return 1
}

func printUsage(o *IO, commands []*Command) {
	o.Println("rcctl manages recordcache configuration and versions.")
	o.Println()
	o.Println("Usage: rcctl <command> [flags] [args]")
	o.Println()
	o.Println("Commands:")
	for _, c := range commands {
		o.Println(c.HelpLine())
	}
	o.Println()
	o.Println("Environment:")
	o.Printf("  %-34s %s\n", configEnv, "config file used when --config is not given")
	o.Printf("  %-34s %s\n", redisAddrEnv, "version store address used when --redis is not given")
}

// lookup reads env, ignoring empty values.
func lookup(env map[string]string, key, fallback string) string {
	if v := env[key]; v != "" {
		return v
	}
	return fallback
}
