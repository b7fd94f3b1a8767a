package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/matthewgall/shelfscrape/internal/auth"
	"github.com/matthewgall/shelfscrape/internal/config"
	"github.com/matthewgall/shelfscrape/internal/http/server"
	"github.com/matthewgall/shelfscrape/internal/report"
	"github.com/matthewgall/shelfscrape/internal/search"
)

const (
	appName    = "shelfscrape"
	appVersion = "1.0.0"
)

const usage = `Usage: shelfscrape <command> [flags]

Commands:
  extract [flags] <path>   recover product data from a saved page
  fetch   [flags]          fetch a live page and recover its product data
  match   [flags]          search for a product and pick the best result
  serve   [flags]          run the HTTP API
  cache   [flags]          remove expired (or, with -all, every) cache entry
  token   [flags]          mint an API bearer token
  version                  print version information
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "extract":
		err = runExtract(args)
	case "fetch":
		err = runFetch(args)
	case "match":
		err = runMatch(args)
	case "serve":
		err = runServe(args)
	case "cache":
		err = runCache(args)
	case "token":
		err = runToken(args)
	case "version", "-version", "--version":
		fmt.Printf("%s v%s\n", appName, appVersion)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags registers the flags every command accepts.
type commonFlags struct {
	configFile    *string
	databasePath  *string
	artifactsDir  *string
	artifactsType *string
	cacheProvider *string
	redisURL      *string
	noCache       *bool
}

func newCommonFlags(flags *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configFile:    flags.String("config", "config.yaml", "Path to configuration file"),
		databasePath:  flags.String("db-path", "", "Run history database path"),
		artifactsDir:  flags.String("artifacts-dir", "", "Local artifacts directory"),
		artifactsType: flags.String("artifacts", "", "Artifact storage method (local or s3)"),
		cacheProvider: flags.String("cache", "", "Cache provider (sqlite or redis)"),
		redisURL:      flags.String("redis-url", "", "Redis URL for the redis cache"),
		noCache:       flags.Bool("no-cache", false, "Disable the page and search cache"),
	}
}

func (c *commonFlags) overrides() config.Overrides {
	overrides := config.Overrides{}
	if *c.databasePath != "" {
		overrides.DatabasePath = c.databasePath
	}
	if *c.artifactsDir != "" {
		overrides.ArtifactsDir = c.artifactsDir
	}
	if *c.artifactsType != "" {
		overrides.ArtifactMethod = c.artifactsType
	}
	if *c.cacheProvider != "" {
		overrides.CacheProvider = c.cacheProvider
	}
	if *c.redisURL != "" {
		overrides.CacheRedisURL = c.redisURL
	}
	if *c.noCache {
		overrides.CacheDisabled = c.noCache
	}
	return overrides
}

func loadConfig(common *commonFlags, overrides config.Overrides) (*config.Config, error) {
	cfg, err := config.Load(*common.configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.ApplyOverrides(common.overrides()); err != nil {
		return nil, fmt.Errorf("applying overrides: %w", err)
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		return nil, fmt.Errorf("applying overrides: %w", err)
	}
	return cfg, nil
}

func runExtract(args []string) error {
	flags := flag.NewFlagSet("extract", flag.ExitOnError)
	common := newCommonFlags(flags)
	out := flags.String("out", "", "Output JSON path")
	minSize := flags.Int("min-object-size", 0, "Minimum size of heuristically recovered objects")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("extract requires exactly one file path")
	}

	overrides := config.Overrides{}
	if *out != "" {
		overrides.OutputPath = out
	}
	if *minSize != 0 {
		overrides.MinObjectSize = minSize
	}
	cfg, err := loadConfig(common, overrides)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.pipeline.ExtractFile(ctx, flags.Arg(0))
	if err != nil {
		return err
	}
	return printReport(result.Report, result.OutputLocation)
}

// runFetch reports failures and returns without writing output. Only
// configuration problems produce a non-zero exit.
func runFetch(args []string) error {
	flags := flag.NewFlagSet("fetch", flag.ExitOnError)
	common := newCommonFlags(flags)
	url := flags.String("url", "", "Page URL to fetch")
	out := flags.String("out", "", "Output JSON path")
	if err := flags.Parse(args); err != nil {
		return err
	}

	overrides := config.Overrides{}
	if *url != "" {
		overrides.FetchURL = url
	}
	if *out != "" {
		overrides.OutputPath = out
	}
	cfg, err := loadConfig(common, overrides)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Printf("Fetching %s", cfg.Fetch.URL)
	result, err := a.pipeline.ExtractURL(ctx, cfg.Fetch.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil
	}
	return printReport(result.Report, result.OutputLocation)
}

func printReport(r report.Report, location string) error {
	if err := report.Render(os.Stdout, r); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	fmt.Println(r.Summary())
	fmt.Printf("Saved data to %s\n", location)
	return nil
}

func runMatch(args []string) error {
	flags := flag.NewFlagSet("match", flag.ExitOnError)
	common := newCommonFlags(flags)
	product := flags.String("product", "", "Product name to match")
	site := flags.String("site", "", "Restrict the search to this site")
	model := flags.String("model", "", "Chat model name")
	if err := flags.Parse(args); err != nil {
		return err
	}

	overrides := config.Overrides{}
	if *product != "" {
		overrides.SearchProduct = product
	}
	if *site != "" {
		overrides.SearchSite = site
	}
	if *model != "" {
		overrides.LLMModel = model
	}
	cfg, err := loadConfig(common, overrides)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	query := search.Query(cfg.Search.Site, cfg.Search.Product)
	results, err := a.search.Text(ctx, query, cfg.Search.MaxResults)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	fmt.Println(string(encoded))

	if !a.matcher.UsesModel() {
		log.Printf("Warning: no LLM API key configured, ranking results locally")
	}
	decision, err := a.matcher.Match(ctx, cfg.Search.Product, results)
	if err != nil {
		return err
	}
	fmt.Println(decision.Raw)
	return nil
}

func runServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	common := newCommonFlags(flags)
	address := flags.String("address", "", "Server address (host:port)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	overrides := config.Overrides{}
	if *address != "" {
		overrides.ServerAddress = address
	}
	cfg, err := loadConfig(common, overrides)
	if err != nil {
		return err
	}

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc := server.Services{
		Pipeline: a.pipeline.WithRunKeys(),
		Search:   a.search,
		Matcher:  a.matcher,
	}
	if a.history != nil {
		svc.History = a.history
	}
	srv := server.New(cfg, svc)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting %s server on %s", appName, cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func runCache(args []string) error {
	flags := flag.NewFlagSet("cache", flag.ExitOnError)
	common := newCommonFlags(flags)
	all := flags.Bool("all", false, "Remove every entry, not only expired ones")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(common, config.Overrides{})
	if err != nil {
		return err
	}

	ctx := context.Background()
	c := newCache(ctx, cfg.Cache)
	if c == nil {
		return errors.New("cache is disabled or unavailable")
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("Warning: failed to close cache: %v", err)
		}
	}()

	if *all {
		if err := c.ClearAll(ctx); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Println("Removed all cache entries")
		return nil
	}
	if err := c.ClearExpired(ctx); err != nil {
		return fmt.Errorf("clearing expired cache entries: %w", err)
	}
	fmt.Println("Removed expired cache entries")
	return nil
}

func runToken(args []string) error {
	flags := flag.NewFlagSet("token", flag.ExitOnError)
	common := newCommonFlags(flags)
	subject := flags.String("subject", "cli", "Token subject")
	ttl := flags.Duration("ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(common, config.Overrides{})
	if err != nil {
		return err
	}
	lifetime := cfg.Auth.TokenTTL
	if *ttl != 0 {
		lifetime = *ttl
	}

	token, err := auth.NewAuthService(cfg.Auth.TokenSecret).GenerateToken(*subject, lifetime)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
