package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/unkn0wn-root/recordcache"
	"github.com/unkn0wn-root/recordcache/config"
	pr "github.com/unkn0wn-root/recordcache/provider"
	"github.com/unkn0wn-root/recordcache/provider/redis"
)

func versionsCmd(env map[string]string) *Command {
	fs := flag.NewFlagSet("versions", flag.ContinueOnError)
	redisAddr := fs.String("redis", "", "version store address (default $"+redisAddrEnv+")")
	prefix := fs.String("prefix", "", "key prefix of the redis version store")
	cfgPath := fs.StringP("config", "c", "", "take the version store from this config file")
	ttl := fs.Duration("ttl", 0, "TTL for renewed versions (0 keeps them forever)")

	return &Command{
		Flags: fs,
		Usage: "versions <get|renew|delete> <key>...",
		Short: "Inspect or bump versions in the version store",
		Long: "Reads, renews or deletes entry versions, e.g. rc/person/14.\n" +
			"Renewing or deleting a version makes every worker miss the cached record.\n" +
			"The store is the redis server at --redis (or $" + redisAddrEnv + "), otherwise the\n" +
			"versions store of --config (or $" + configEnv + ").",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return errors.New("versions needs an action and at least one key")
			}
			action, keys := args[0], args[1:]
			switch action {
			case "get", "renew", "delete":
			default:
				return fmt.Errorf("unknown action %q", action)
			}

			p, err := openVersions(ctx, env, *redisAddr, *prefix, *cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close(ctx) }()

			vs, err := recordcache.NewVersionStore(recordcache.VersionStoreOptions{Provider: p, TTL: *ttl})
			if err != nil {
				return err
			}
			return runVersions(ctx, o, vs, action, keys)
		},
	}
}

func openVersions(ctx context.Context, env map[string]string, addr, prefix, cfgPath string) (pr.Provider, error) {
	if addr == "" {
		addr = env[redisAddrEnv]
	}
	if addr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
		p, err := redis.New(redis.Config{Client: client, Prefix: prefix, CloseClient: true})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	if cfgPath == "" {
		cfgPath = lookup(env, configEnv, defaultConfigPath)
	}
	f, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if f.Versions.Kind != "redis" {
		return nil, fmt.Errorf("%s: versions store is %q; only a shared redis store can be inspected", cfgPath, f.Versions.Kind)
	}
	return config.NewProvider(ctx, f.Versions, 0)
}

func runVersions(ctx context.Context, o *IO, vs *recordcache.VersionStore, action string, keys []string) error {
	var errs []error
	for _, key := range keys {
		switch action {
		case "get":
			if v, ok := vs.Current(ctx, key); ok {
				o.Printf("%s\t%d\n", key, v)
			} else {
				o.Printf("%s\t-\n", key)
			}
		case "renew":
			v, err := vs.Renew(ctx, key)
			if err != nil {
				errs = append(errs, fmt.Errorf("renew %s: %w", key, err))
				continue
			}
			o.Printf("%s\t%d\n", key, v)
		case "delete":
			if err := vs.Delete(ctx, key); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
				continue
			}
			o.Printf("%s\tdeleted\n", key)
		}
	}
	return errors.Join(errs...)
}
