package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var cmdBench = &cli.Command{
	Name:  "bench",
	Usage: "insert random keys in batches, committing each batch, then read them back concurrently",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "keys",
			Usage: "number of keys to insert",
			Value: 100_000,
		},
		&cli.IntFlag{
			Name:  "batch",
			Usage: "keys inserted per committed version",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "readers",
			Usage: "concurrent reader goroutines",
			Value: 8,
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "random seed for generated keys",
			Value: 1,
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "if set, serve prometheus metrics on this address while the benchmark runs",
			EnvVars: []string{"AVL_METRICS_LISTEN"},
		},
	},
	Action: runBench,
}

func runBench(cctx *cli.Context) error {
	ctx := context.Background()
	env, err := setup(cctx)
	if err != nil {
		return err
	}
	defer env.Close()
	log := env.log.With("cmd", "bench")

	if addr := cctx.String("metrics-listen"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	total := cctx.Int("keys")
	batch := cctx.Int("batch")
	if total <= 0 || batch <= 0 {
		return fmt.Errorf("keys and batch must be positive")
	}

	tree, version, err := env.loadLatest(ctx)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cctx.Int64("seed")))
	keys := make([]string, total)
	for i := range keys {
		keys[i] = fmt.Sprintf("bench/%016x", rng.Uint64())
	}

	start := time.Now()
	for i, k := range keys {
		tree, err = tree.With(ctx, k, []byte(k))
		if err != nil {
			return err
		}
		if (i+1)%batch == 0 || i == len(keys)-1 {
			version++
			tree, _, err = tree.CommitVersion(ctx, version)
			if err != nil {
				return err
			}
		}
	}
	writeDur := time.Since(start)
	log.Info("inserted keys", "keys", total, "version", version, "duration", writeDur)

	readers := cctx.Int("readers")
	start = time.Now()
	var eg errgroup.Group
	for r := 0; r < readers; r++ {
		r := r
		eg.Go(func() error {
			for i := r; i < len(keys); i += readers {
				val, ok, err := tree.Get(ctx, keys[i])
				if err != nil {
					return err
				}
				if !ok || string(val) != keys[i] {
					return fmt.Errorf("read back mismatch for %s", keys[i])
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	readDur := time.Since(start)

	height, err := tree.Height(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("keys\t%d\nversions\t%d\nheight\t%d\nwrite\t%s (%.0f keys/s)\nread\t%s (%.0f keys/s)\n",
		total, version, height,
		writeDur, float64(total)/writeDur.Seconds(),
		readDur, float64(total)/readDur.Seconds())
	return nil
}
