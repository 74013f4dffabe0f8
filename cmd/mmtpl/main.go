// Command mmtpl is the build-time companion of the engine: it extracts a
// template document from a component source file and publishes it to a
// document store for the runtime to load.
//
// Usage:
//
//	mmtpl extract -component Counter -src counter.html -out counter.json
//	mmtpl extract -component Counter -src counter.html -store ./templates.db
//	mmtpl list -store ./templates.db
//	mmtpl versions -store ./templates.db -component Counter
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	minimact "github.com/minimact/minimact-sub002"
	"github.com/minimact/minimact-sub002/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "extract":
		err = runExtract(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "versions":
		err = runVersions(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mmtpl <extract|list|versions> [flags]")
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	component := fs.String("component", "", "component type name (required)")
	src := fs.String("src", "", "component source file (required)")
	out := fs.String("out", "", "write the document JSON to this file")
	dsn := fs.String("store", "", "publish the document to this SQLite store")
	version := fs.String("version", "", "document version (default: timestamp)")
	fs.Parse(args)

	if *component == "" || *src == "" {
		fs.Usage()
		return fmt.Errorf("both -component and -src are required")
	}

	source, err := os.ReadFile(*src)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	result, err := minimact.ExtractSource(*component, string(source))
	if err != nil {
		return fmt.Errorf("extracting %q: %w", *component, err)
	}
	for _, warning := range result.Warnings {
		slog.Warn("extraction warning", "component", *component, "detail", warning.String())
	}

	tm := result.Map
	if *version != "" {
		tm.Version = *version
	} else {
		tm.Version = time.Now().UTC().Format("20060102150405")
	}
	slog.Info("extracted template map",
		"component", *component,
		"version", tm.Version,
		"templates", tm.Len(),
		"warnings", len(result.Warnings))

	if *out != "" {
		payload, err := minimact.MarshalDocument(minimact.ToDocument(tm))
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, payload, 0644); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
	}

	if *dsn != "" {
		s, err := store.Open(*dsn)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := minimact.SaveTemplateMap(context.Background(), s, tm); err != nil {
			return err
		}
		slog.Info("document published", "store", *dsn)
	}

	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dsn := fs.String("store", "", "SQLite store path (required)")
	fs.Parse(args)

	if *dsn == "" {
		fs.Usage()
		return fmt.Errorf("-store is required")
	}

	s, err := store.Open(*dsn)
	if err != nil {
		return err
	}
	defer s.Close()

	components, err := s.Components(context.Background())
	if err != nil {
		return err
	}
	for _, c := range components {
		fmt.Println(c)
	}
	return nil
}

func runVersions(args []string) error {
	fs := flag.NewFlagSet("versions", flag.ExitOnError)
	dsn := fs.String("store", "", "SQLite store path (required)")
	component := fs.String("component", "", "component type name (required)")
	fs.Parse(args)

	if *dsn == "" || *component == "" {
		fs.Usage()
		return fmt.Errorf("both -store and -component are required")
	}

	s, err := store.Open(*dsn)
	if err != nil {
		return err
	}
	defer s.Close()

	versions, err := s.Versions(context.Background(), *component)
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Println(v)
	}
	return nil
}
