package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bluesky-social/merkle-avl/avl"
	"github.com/bluesky-social/merkle-avl/kvstore"
	"github.com/bluesky-social/merkle-avl/lrucache"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "avl-tool",
		Usage: "development tool for inspecting and editing Merkle-AVL state stores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				EnvVars: []string{"AVL_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "storage backend: pebble, sqlite, or memory",
				Value:   "pebble",
				EnvVars: []string{"AVL_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "path",
				Usage:   "database directory (pebble) or file (sqlite)",
				Value:   "./data/avl",
				EnvVars: []string{"AVL_PATH"},
			},
			&cli.StringFlag{
				Name:    "hash",
				Usage:   "node hash function: sha256 or blake2b. must match the one the store was written with",
				Value:   "sha256",
				EnvVars: []string{"AVL_HASH"},
			},
			&cli.IntFlag{
				Name:    "cache-size",
				Usage:   "number of decoded nodes to keep in memory (0 disables)",
				Value:   10_000,
				EnvVars: []string{"AVL_CACHE_SIZE"},
			},
			&cli.StringFlag{
				Name:    "cache-policy",
				Usage:   "node cache eviction policy: lru or arc",
				Value:   "lru",
				EnvVars: []string{"AVL_CACHE_POLICY"},
			},
		},
	}
	versionFlag := &cli.Uint64Flag{
		Name:  "version",
		Usage: "tree version to read (default: latest)",
	}
	app.Commands = []*cli.Command{
		&cli.Command{
			Name:      "put",
			Usage:     "set a key and commit the result as a new version",
			ArgsUsage: "<key> <value>",
			Action:    runPut,
		},
		&cli.Command{
			Name:      "delete",
			Usage:     "remove a key and commit the result as a new version",
			ArgsUsage: "<key>",
			Action:    runDelete,
		},
		&cli.Command{
			Name:      "get",
			Usage:     "print the value stored under a key",
			ArgsUsage: "<key>",
			Action:    runGet,
			Flags:     []cli.Flag{versionFlag},
		},
		&cli.Command{
			Name:   "root",
			Usage:  "print a version's root hash, size and height",
			Action: runRoot,
			Flags:  []cli.Flag{versionFlag},
		},
		&cli.Command{
			Name:   "versions",
			Usage:  "list committed versions and their root hashes",
			Action: runVersions,
		},
		&cli.Command{
			Name:   "list",
			Usage:  "print keys and values in order",
			Action: runList,
			Flags: []cli.Flag{
				versionFlag,
				&cli.StringFlag{
					Name:  "start",
					Usage: "first key to include",
				},
				&cli.StringFlag{
					Name:  "end",
					Usage: "first key to exclude",
				},
				&cli.BoolFlag{
					Name:  "reverse",
					Usage: "list in descending order",
				},
			},
		},
		&cli.Command{
			Name:   "dump",
			Usage:  "print the tree structure",
			Action: runDump,
			Flags:  []cli.Flag{versionFlag},
		},
		&cli.Command{
			Name:   "verify",
			Usage:  "load every node of a version and check balance, ordering and hashes",
			Action: runVerify,
			Flags:  []cli.Flag{versionFlag},
		},
		cmdBench,
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(h))
	app.RunAndExitOnError()
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func openStore(cctx *cli.Context) (kvstore.KVStore, error) {
	path := cctx.String("path")
	switch cctx.String("backend") {
	case "pebble":
		return kvstore.OpenPebble(path, nil)
	case "sqlite":
		return kvstore.OpenSQLite(path)
	case "memory":
		return kvstore.NewDatastoreStore(dssync.MutexWrap(datastore.NewMapDatastore())), nil
	default:
		return nil, fmt.Errorf("unknown backend: %q", cctx.String("backend"))
	}
}

type stateTree = avl.Tree[string, []byte]

// toolEnv bundles what every command needs: the raw store and a tree context over it
type toolEnv struct {
	kv  kvstore.KVStore
	tc  *avl.TreeContext[string, []byte]
	log *slog.Logger
}

func setup(cctx *cli.Context) (*toolEnv, error) {
	logger := configLogger(cctx, os.Stderr)

	hasher, err := avl.HasherByName(cctx.String("hash"))
	if err != nil {
		return nil, err
	}
	policy, err := lrucache.ParsePolicy(cctx.String("cache-policy"))
	if err != nil {
		return nil, err
	}

	kv, err := openStore(cctx)
	if err != nil {
		return nil, err
	}

	opts := avl.DefaultOptions()
	opts.NewHasher = hasher
	opts.CacheSize = cctx.Int("cache-size")
	opts.CachePolicy = policy
	opts.Logger = logger

	tc, err := avl.NewContext[string, []byte](avl.StringMarshaller{}, avl.BytesMarshaller{}, strings.Compare, kv, opts)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return &toolEnv{kv: kv, tc: tc, log: logger}, nil
}

func (env *toolEnv) Close() {
	if err := env.kv.Close(); err != nil {
		env.log.Error("closing store", "err", err)
	}
}

// loadLatest returns the newest committed version, or an empty tree at version 0 if nothing has been committed yet.
func (env *toolEnv) loadLatest(ctx context.Context) (*stateTree, uint64, error) {
	version, root, err := avl.LatestVersion(ctx, env.kv)
	if errors.Is(err, avl.ErrVersionNotFound) {
		return avl.NewTree(env.tc), 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	tree, err := avl.LoadTree(ctx, env.tc, root)
	if err != nil {
		return nil, 0, err
	}
	return tree, version, nil
}

// loadRequested honors the --version flag, falling back to the latest version.
func (env *toolEnv) loadRequested(ctx context.Context, cctx *cli.Context) (*stateTree, uint64, error) {
	if cctx.IsSet("version") {
		version := cctx.Uint64("version")
		tree, err := avl.LoadVersion(ctx, env.tc, version)
		return tree, version, err
	}
	return env.loadLatest(ctx)
}

func (env *toolEnv) commitNext(ctx context.Context, tree *stateTree, version uint64) error {
	_, root, err := tree.CommitVersion(ctx, version+1)
	if err != nil {
		return err
	}
	fmt.Printf("version %d root %x\n", version+1, root)
	return nil
}

func runPut(cctx *cli.Context) error {
	ctx := context.Background()
	if cctx.Args().Len() != 2 {
		return fmt.Errorf("need to provide key and value")
	}
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()

	tree, version, err := env.loadLatest(ctx)
	if err != nil {
		return err
	}
	tree, err = tree.With(ctx, cctx.Args().Get(0), []byte(cctx.Args().Get(1)))
	if err != nil {
		return err
	}
	return env.commitNext(ctx, tree, version)
}

func runDelete(cctx *cli.Context) error {
	ctx := context.Background()
	key := cctx.Args().First()
	if key == "" {
		return fmt.Errorf("need to provide key")
	}
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()

	tree, version, err := env.loadLatest(ctx)
	if err != nil {
		return err
	}
	ok, err := tree.Has(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key not found: %s", key)
	}
	tree, err = tree.Without(ctx, key)
	if err != nil {
		return err
	}
	return env.commitNext(ctx, tree, version)
}

func runGet(cctx *cli.Context) error {
	ctx := context.Background()
	key := cctx.Args().First()
	if key == "" {
		return fmt.Errorf("need to provide key")
	}
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()

	tree, _, err := env.loadRequested(ctx, cctx)
	if err != nil {
		return err
	}
	val, ok, err := tree.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key not found: %s", key)
	}
	fmt.Println(string(val))
	return nil
}

func runRoot(cctx *cli.Context) error {
	ctx := context.Background()
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()

	tree, version, err := env.loadRequested(ctx, cctx)
	if err != nil {
		return err
	}
	size, err := tree.Len(ctx)
	if err != nil {
		return err
	}
	height, err := tree.Height(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("version\t%d\nroot\t%x\nkeys\t%d\nheight\t%d\n", version, tree.RootRef().Hash(), size, height)
	return nil
}

func runVersions(cctx *cli.Context) error {
	ctx := context.Background()
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()

	return avl.ListVersions(ctx, env.kv, false, func(version uint64, root []byte) error {
		fmt.Printf("%d\t%x\n", version, root)
		return nil
	})
}

func runList(cctx *cli.Context) error {
	ctx := context.Background()
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()

	tree, _, err := env.loadRequested(ctx, cctx)
	if err != nil {
		return err
	}
	var start, end *string
	if cctx.IsSet("start") {
		s := cctx.String("start")
		start = &s
	}
	if cctx.IsSet("end") {
		e := cctx.String("end")
		end = &e
	}
	return tree.Iterate(ctx, start, end, cctx.Bool("reverse"), func(key string, val []byte) error {
		fmt.Printf("%s\t%s\n", key, val)
		return nil
	})
}

func runDump(cctx *cli.Context) error {
	ctx := context.Background()
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()

	tree, _, err := env.loadRequested(ctx, cctx)
	if err != nil {
		return err
	}
	return tree.DebugPrint(ctx, os.Stdout)
}

func runVerify(cctx *cli.Context) error {
	ctx := context.Background()
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()

	tree, version, err := env.loadRequested(ctx, cctx)
	if err != nil {
		return err
	}
	if err := tree.Verify(ctx); err != nil {
		return err
	}
	fmt.Printf("verified version %d\n", version)
	return nil
}
