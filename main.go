package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kapouer/url-inspector/agent"
	"github.com/kapouer/url-inspector/config"
	"github.com/kapouer/url-inspector/inspector"
	"github.com/kapouer/url-inspector/oembed"
)

var (
	// Version and Revision are injected at build time.
	Version  = "dev"
	Revision = "xxx"
)

func main() {
	app := &cli.App{
		Name:      "url-inspector",
		Usage:     "inspect a URL and print its normalized metadata",
		Version:   fmt.Sprintf("%s (%s)", Version, Revision),
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yml",
				Usage:   "path to the configuration file",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "do not skip favicon discovery",
			},
			&cli.StringFlag{
				Name:  "providers",
				Usage: "path to an additional oEmbed providers JSON list",
			},
			&cli.StringFlag{
				Name:  "ua",
				Usage: "override the outbound User-Agent",
			},
			&cli.BoolFlag{
				Name:  "file",
				Usage: "allow inspection of file: urls",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowAppHelp(c)
	}
	if err := setupLogger(c.Bool("debug")); err != nil {
		return err
	}
	defer zap.S().Sync()

	cfg, _ := config.LoadConfig(c.String("config"))
	if ua := c.String("ua"); ua != "" {
		cfg.Inspect.UserAgent = ua
	}
	if c.Bool("file") {
		cfg.Inspect.FileAccess = true
	}
	cfg.Inspect.NoFavicon = !c.Bool("all")

	providersPath := c.String("providers")
	if providersPath == "" {
		providersPath = cfg.Inspect.Providers
	}
	var providers []*oembed.Provider
	if providersPath != "" {
		data, err := os.ReadFile(providersPath)
		if err != nil {
			return err
		}
		providers, err = oembed.LoadProviders(data)
		if err != nil {
			return err
		}
	}

	target := c.Args().First()
	if strings.HasPrefix(target, "/") || strings.HasPrefix(target, "./") {
		target = "file://" + target
		cfg.Inspect.FileAccess = true
	}

	ins := inspector.New(agent.New(&agent.Config{
		Timeout:   cfg.Inspect.Timeout,
		UserAgent: cfg.Inspect.UserAgent,
	}), inspector.Options{
		Providers:  providers,
		UserAgent:  cfg.Inspect.UserAgent,
		NoFavicon:  cfg.Inspect.NoFavicon,
		FileAccess: cfg.Inspect.FileAccess,
	})

	rec, err := ins.Lookup(context.Background(), target)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func setupLogger(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	// keep stdout clean for the JSON result
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}
