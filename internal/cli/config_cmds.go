package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/unkn0wn-root/recordcache/config"
)

func checkCmd(env map[string]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("check", flag.ContinueOnError),
		Usage: "check [file]",
		Short: "Validate a config file and list its entities",
		Long: "Parses the HuJSON config file, applies RECORDCACHE_* environment overrides\n" +
			"and validates it. The file defaults to $" + configEnv + " or " + defaultConfigPath + ".",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 1 {
				return errors.New("check takes at most one file")
			}
			path := lookup(env, configEnv, defaultConfigPath)
			if len(args) == 1 {
				path = args[0]
			}
			f, err := config.Load(path)
			if err != nil {
				return err
			}
			printFile(o, path, f)
			return nil
		},
	}
}

func printFile(o *IO, path string, f *config.File) {
	o.Printf("%s: ok\n", path)
	o.Printf("versions: %s\n", describeStore(f.Versions))
	o.Printf("records:  %s\n", describeStore(f.Records))

	names := make([]string, 0, len(f.Stores))
	for name := range f.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o.Printf("store %s: %s\n", name, describeStore(f.Stores[name]))
	}

	o.Printf("entities: %d\n", len(f.Entities))
	for _, e := range f.Entities {
		var parts []string
		if len(e.Unique) > 0 {
			parts = append(parts, "unique="+strings.Join(e.Unique, ","))
		}
		if len(e.Index) > 0 {
			parts = append(parts, "index="+strings.Join(e.Index, ","))
		}
		if e.FullTable {
			parts = append(parts, "full_table")
		}
		if e.RequestCache {
			parts = append(parts, "request_cache")
		}
		if e.Store != "" {
			parts = append(parts, "store="+e.Store)
		}
		o.Printf("  %-16s %s\n", e.Name, strings.Join(parts, " "))
	}
}

func describeStore(sc config.StoreConfig) string {
	if sc.Kind == "redis" {
		return fmt.Sprintf("redis %s db=%d prefix=%q", sc.Addr, sc.DB, sc.Prefix)
	}
	return sc.Kind
}

func initCmd() *Command {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.BoolP("force", "f", false, "overwrite an existing file")
	return &Command{
		Flags: fs,
		Usage: "init <file> [--force]",
		Short: "Write a starter config file",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("init needs exactly one file")
			}
			path := args[0]
			if !*force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := atomic.WriteFile(path, strings.NewReader(config.Sample)); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			o.Println("wrote", path)
			return nil
		},
	}
}
