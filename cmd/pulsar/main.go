package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/instrument"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/store"
	"github.com/oriys/pulsar/internal/webcache"
)

var (
	configPath string
	redisAddr  string
	redisPass  string
	redisDB    int
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulsar",
		Short: "Pulsar - instrumented Redis cache",
		Long:  "A Redis-backed key-value cache with call instrumentation and a read-through page cache",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetLevelFromString(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (JSON)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address")
	rootCmd.PersistentFlags().StringVar(&redisPass, "redis-pass", "", "Redis password")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "Redis database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		initCmd(),
		storeCmd(),
		getCmd(),
		replayCmd(),
		fetchCmd(),
		countCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges the config file, environment, and flags, with
// flags winning.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if redisPass != "" {
		cfg.Redis.Password = redisPass
	}
	if redisDB != 0 {
		cfg.Redis.DB = redisDB
	}
	return cfg, nil
}

// newClient connects to Redis without flushing; every command except
// init preserves existing state.
func newClient(ctx context.Context) (*redis.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Connect to Redis and flush the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := store.New(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			defer c.Close()
			logging.Op().Info("database flushed", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
			return nil
		},
	}
}

func storeCmd() *cobra.Command {
	var valueType string

	cmd := &cobra.Command{
		Use:   "store <value>",
		Short: "Store a value under a fresh key and print the key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := parseValue(args[0], valueType)
			if err != nil {
				return err
			}

			key, err := store.Attach(client).Store(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}

	cmd.Flags().StringVar(&valueType, "type", "str", "Value type (str, bytes, int, float)")
	return cmd
}

func parseValue(raw, valueType string) (any, error) {
	switch valueType {
	case "str":
		return raw, nil
	case "bytes":
		return []byte(raw), nil
	case "int":
		return strconv.ParseInt(raw, 10, 64)
	case "float":
		return strconv.ParseFloat(raw, 64)
	default:
		return nil, fmt.Errorf("unknown value type %q", valueType)
	}
}

func getCmd() *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			c := store.Attach(client)
			switch as {
			case "str":
				s, err := c.GetString(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(s)
			case "int":
				n, err := c.GetInt(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(n)
			case "raw":
				v, err := c.Get(cmd.Context(), args[0], nil)
				if err != nil {
					return err
				}
				os.Stdout.Write(v.([]byte))
			default:
				return fmt.Errorf("unknown conversion %q", as)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&as, "as", "str", "Conversion applied to the stored bytes (raw, str, int)")
	return cmd
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [operation]",
		Short: "Print the call transcript of an instrumented operation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := store.OpStore
			if len(args) == 1 {
				name = args[0]
			}
			// Replay uses its own connection independent of any facade.
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			return instrument.Replay(cmd.Context(), client, name, os.Stdout)
		},
	}
}

func fetchCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a page through the cache and print its body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.Cache.TTL
			}

			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			pc := webcache.New(client,
				webcache.NewHTTPFetcher(cfg.Cache.FetchTimeout),
				webcache.WithTTL(ttl),
			)
			body, err := pc.GetPage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Print(body)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Cache expiration (default from config)")
	return cmd
}

func countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <url>",
		Short: "Print the access counter for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			pc := webcache.New(client, webcache.NewHTTPFetcher(0))
			n, err := pc.AccessCount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}
