package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/assetcache"
	"github.com/unkn0wn-root/assetcache/internal/config"
	"github.com/unkn0wn-root/assetcache/lcu"
)

var (
	version = "dev"
	commit  = "unknown"
)

// CLI is the top-level command structure for assetctl.
type CLI struct {
	Version kong.VersionFlag `help:"Show version." short:"V"`
	Config  string           `help:"YAML config file." type:"path" default:"assetctl.yaml" env:"ASSETCTL_CONFIG"`

	Resolve ResolveCmd `cmd:"" help:"Resolve asset ids to data URIs through the cache."`
	Catalog CatalogCmd `cmd:"" help:"Show the client's icon index for a kind."`
}

// ResolveCmd resolves ids of one kind and prints one line per id.
type ResolveCmd struct {
	Kind    string        `arg:"" enum:"profile,champion,item,spell,perk" help:"Asset kind."`
	IDs     []uint32      `arg:"" name:"id" help:"Asset ids (0 = none)."`
	Full    bool          `help:"Print full locators instead of a truncated preview."`
	Timeout time.Duration `help:"Overall deadline." default:"30s"`
}

// CatalogCmd prints the size (or contents) of one kind's icon index.
type CatalogCmd struct {
	Kind string `arg:"" enum:"champion,item,spell,perk" help:"Asset kind."`
	List bool   `help:"List every id with its icon path."`
}

// env carries what commands need; built once after parsing.
type env struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer
}

const previewLen = 48

func (r *ResolveCmd) Run(e *env) error {
	kind, err := assetcache.ParseKind(r.Kind)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(r.Timeout)
	defer cancel()

	s, err := buildStack(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}
	defer s.Close()

	locs, rerr := s.cache.ResolveMany(ctx, kind, r.IDs)
	for _, id := range r.IDs {
		key := assetcache.Key{Kind: kind, ID: id}
		switch loc, ok := locs[id]; {
		case id == 0:
			fmt.Fprintf(e.out, "%s\t(none)\n", key)
		case !ok:
			fmt.Fprintf(e.out, "%s\tFAILED\n", key)
		case r.Full:
			fmt.Fprintf(e.out, "%s\t%s\n", key, loc)
		default:
			fmt.Fprintf(e.out, "%s\t%s\n", key, preview(loc))
		}
	}
	st := s.cache.Stats()
	e.log.Debug("resolve done", zap.Int("cached", st.Cached), zap.Int("in_flight", st.InFlight))
	return rerr
}

func (c *CatalogCmd) Run(e *env) error {
	kind, err := assetcache.ParseKind(c.Kind)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(e.cfg.LCU.Timeout * 3)
	defer cancel()

	client, err := newLCUClient(e.cfg)
	if err != nil {
		return err
	}
	idx, err := lcu.NewCatalog(client).Index(ctx, kind)
	if err != nil {
		return err
	}
	if !c.List {
		fmt.Fprintf(e.out, "%d %s icons\n", len(idx), kind)
		return nil
	}
	for _, id := range slices.Sorted(maps.Keys(idx)) {
		fmt.Fprintf(e.out, "%d\t%s\n", id, idx[id])
	}
	return nil
}

func preview(loc string) string {
	if len(loc) <= previewLen {
		return loc
	}
	return fmt.Sprintf("%s... (%d bytes)", loc[:previewLen], len(loc))
}

func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("assetctl"),
		kong.Description("Resolve League client asset icons through assetcache."),
		kong.Vars{"version": version + " " + commit},
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(2)
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	if err := kctx.Run(&env{cfg: cfg, log: log, out: os.Stdout}); err != nil {
		log.Error("command failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
