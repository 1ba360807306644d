package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"imagemanager/database"
	"imagemanager/finder"
	"imagemanager/hashcache"
	"imagemanager/imageprocessor"
	"imagemanager/logging"
	"imagemanager/organizer"
	"imagemanager/scanner"
	"imagemanager/signalhandler"
	"imagemanager/types"
	"imagemanager/utils"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
)

const envPrefix = "IMAGEMANAGER_"

func main() {
	ctx, cancel := signalhandler.SetupHandler(context.Background())
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logging.LogError("%v", err)
		logging.CloseLogger()
		os.Exit(1)
	}
	logging.CloseLogger()
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "imagemanager",
		Usage: "find duplicate images and organize image collections",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", EnvVars: []string{envPrefix + "DEBUG"}},
			&cli.StringFlag{Name: "log-file", Usage: "also write logs to `FILE`", EnvVars: []string{envPrefix + "LOG_FILE"}},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "log format, text or json", EnvVars: []string{envPrefix + "LOG_FORMAT"}},
		},
		Before: func(c *cli.Context) error {
			if err := logging.SetupLogger(logging.Options{
				Debug:    c.Bool("debug"),
				FilePath: c.String("log-file"),
				JSON:     c.String("log-format") == "json",
			}); err != nil {
				return err
			}
			_, err := maxprocs.Set(maxprocs.Logger(logging.DebugLog))
			return errors.Wrap(err, "set GOMAXPROCS")
		},
		Commands: []*cli.Command{
			filterCommand(),
			organizeCommand(),
			cacheCommand(),
		},
	}
}

func cacheDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "cache-dir",
		Value:   utils.GetDefaultCacheLocation(),
		Usage:   "hash cache directory, or a redis:// URL",
		EnvVars: []string{envPrefix + "CACHE_DIR"},
	}
}

func filterCommand() *cli.Command {
	defaults := finder.DefaultOptions()
	return &cli.Command{
		Name:      "filter",
		Usage:     "find duplicate images and move them into a duplicates folder",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recurse", Aliases: []string{"r"}, Usage: "descend into subdirectories"},
			&cli.BoolFlag{Name: "hash-verify", Usage: "include a content digest in cache keys so edited files are rehashed"},
			&cli.StringFlag{Name: "digest", Value: string(defaults.Digest), Usage: "content digest: md5, murmur3 or xxhash"},
			&cli.StringFlag{Name: "dup-dir", Aliases: []string{"d"}, Usage: "move duplicates into `DIR` instead of a dups folder next to each kept image"},
			cacheDirFlag(),
			&cli.IntFlag{Name: "workers", Usage: "hashing workers per phase, 0 for one per usable CPU"},
			&cli.StringFlag{Name: "coarse-algorithm", Value: defaults.Coarse.Name, Usage: "coarse hash: ahash or dhash"},
			&cli.IntFlag{Name: "coarse-size", Value: defaults.Coarse.HashSize, Usage: "coarse hash size"},
			&cli.IntFlag{Name: "fine-size", Value: defaults.Fine.HashSize, Usage: "perceptual hash size"},
			&cli.IntFlag{Name: "fine-resolution", Value: defaults.Fine.HighFreqFactor, Usage: "perceptual hash high frequency factor"},
			&cli.BoolFlag{Name: "dry-run", Usage: "only print duplicate sets"},
			&cli.BoolFlag{Name: "progress", Value: true, Usage: "print phase progress"},
		},
		Action: runFilter,
	}
}

func runFilter(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("filter needs at least one PATH", 2)
	}

	opts := finder.DefaultOptions()
	opts.Coarse = types.Algorithm{Name: c.String("coarse-algorithm"), HashSize: c.Int("coarse-size")}
	opts.Fine = types.Algorithm{Name: types.AlgorithmPerception, HashSize: c.Int("fine-size"), HighFreqFactor: c.Int("fine-resolution")}
	opts.Verify = c.Bool("hash-verify")
	opts.Workers = c.Int("workers")
	opts.ShowProgress = c.Bool("progress")
	digest, err := hashcache.ParseDigestAlgorithm(c.String("digest"))
	if err != nil {
		return err
	}
	opts.Digest = digest
	if opts.Coarse.Name == types.AlgorithmPerception {
		return cli.Exit("coarse-algorithm must be ahash or dhash", 2)
	}

	opener, err := hashcache.NewOpener(c.String("cache-dir"))
	if err != nil {
		return err
	}

	registry := imageprocessor.NewImageLoaderRegistry()
	defer registry.Close()

	startTime := time.Now()
	pipeline := finder.NewPipeline(scanner.NewScanner(), opener, imageprocessor.NewImageHasher(registry), opts)
	sets, err := pipeline.Run(c.Context, c.Args().Slice(), c.Bool("recurse"))
	if err != nil {
		return err
	}

	fmt.Printf("\nFound %d duplicate sets in %v\n", len(sets), time.Since(startTime).Round(time.Millisecond))
	for i, set := range sets {
		fmt.Printf("%d. %s\n", i+1, set.Value)
		for _, img := range organizer.SelectSubject(set.Images) {
			fmt.Printf("   %s\n", img)
		}
	}
	for _, st := range pipeline.Stats {
		fmt.Printf("- %s: %d images, %d cached, %d computed, %d unreadable\n",
			st.Phase, st.Total, st.Cached, st.Computed, st.Failed)
	}

	if c.Bool("dry-run") || len(sets) == 0 {
		return nil
	}

	report, err := organizer.New().OrganizeDuplicates(sets, c.String("dup-dir"))
	if report != nil {
		fmt.Printf("Moved %d duplicates\n", len(report.Done))
	}
	return err
}

func organizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "organize",
		Usage:     "sort images into aspect ratio and height folders",
		ArgsUsage: "SOURCE... TARGET",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "move", Usage: "move images instead of copying them"},
			&cli.BoolFlag{Name: "overwrite", Usage: "let a move replace an existing file"},
			&cli.BoolFlag{Name: "recurse", Aliases: []string{"r"}, Usage: "descend into subdirectories"},
		},
		Action: func(c *cli.Context) error {
			args := c.Args().Slice()
			if len(args) < 2 {
				return cli.Exit("organize needs at least one SOURCE and a TARGET", 2)
			}
			sources, target := args[:len(args)-1], args[len(args)-1]
			if !utils.IsDirectory(target) {
				return cli.Exit(fmt.Sprintf("target %s must be an existing directory", target), 2)
			}

			images, err := scanner.NewScanner().Discover(sources, c.Bool("recurse"))
			if err != nil {
				return err
			}

			registry := imageprocessor.NewImageLoaderRegistry()
			defer registry.Close()

			report, err := organizer.New().OrganizeImages(images, organizer.ImageOptions{
				Target:    target,
				Move:      c.Bool("move"),
				Overwrite: c.Bool("overwrite"),
			}, registry)
			if report != nil {
				fmt.Printf("Organized %d of %d images into %s\n", len(report.Done), len(images), target)
			}
			return err
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "inspect or trim the hash cache",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "count cached hashes per tag",
				Flags:  []cli.Flag{cacheDirFlag()},
				Action: runCacheStats,
			},
			{
				Name:  "evict",
				Usage: "delete every cached hash stored under a tag",
				Flags: []cli.Flag{
					cacheDirFlag(),
					&cli.StringFlag{Name: "tag", Required: true, Usage: "tag to evict, for example A-hash"},
				},
				Action: runCacheEvict,
			},
		},
	}
}

func openMaintainer(c *cli.Context) (hashcache.Maintainer, func(), error) {
	opener, err := hashcache.NewOpener(c.String("cache-dir"))
	if err != nil {
		return nil, nil, err
	}
	store, err := opener(c.Context)
	if err != nil {
		return nil, nil, err
	}
	m, ok := store.(hashcache.Maintainer)
	if !ok {
		store.Close()
		return nil, nil, errors.Errorf("cache at %s does not support maintenance", c.String("cache-dir"))
	}
	return m, func() { store.Close() }, nil
}

func runCacheStats(c *cli.Context) error {
	m, closeFn, err := openMaintainer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := m.Stats(c.Context)
	if err != nil {
		return err
	}
	printCacheStats(os.Stdout, stats)
	return nil
}

func printCacheStats(w io.Writer, stats *database.CacheStats) {
	tags := make([]string, 0, len(stats.ByTag))
	for tag := range stats.ByTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	fmt.Fprintf(w, "Cache: %s\n", stats.Location)
	fmt.Fprintf(w, "- Total entries: %d\n", stats.Total)
	for _, tag := range tags {
		fmt.Fprintf(w, "- %s: %d\n", tag, stats.ByTag[tag])
	}
}

func runCacheEvict(c *cli.Context) error {
	m, closeFn, err := openMaintainer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	removed, err := m.EvictTag(c.Context, c.String("tag"))
	if err != nil {
		return err
	}
	fmt.Printf("Evicted %d entries tagged %s\n", removed, c.String("tag"))
	return nil
}
