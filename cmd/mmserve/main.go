// Command mmserve hosts one component as a live page: it extracts the
// component's template document, mounts an instance, and streams patches to
// browsers over a WebSocket feed. While it runs it watches the source file
// and hot-reloads edits into connected clients.
//
// Usage:
//
//	mmserve -src counter.html -component Counter
//	mmserve -src counter.html -component Counter -state initial.json -addr :9000
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	minimact "github.com/minimact/minimact-sub002"
	"github.com/minimact/minimact-sub002/internal/memory"
	"github.com/minimact/minimact-sub002/internal/metrics"
	"github.com/minimact/minimact-sub002/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "engine config file (default minimact.yaml)")
	src := flag.String("src", "", "component source file (required)")
	component := flag.String("component", "", "component type name (required)")
	statePath := flag.String("state", "", "JSON file with the initial state snapshot")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	if *src == "" || *component == "" {
		fmt.Fprintln(os.Stderr, "usage: mmserve -src <file> -component <name> [flags]")
		os.Exit(2)
	}

	if err := run(*cfgPath, *src, *component, *statePath, *addr); err != nil {
		slog.Error("mmserve failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath, src, component, statePath, addr string) error {
	cfg, err := minimact.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ttl, _ := cfg.SessionTTLDuration()
	collector := metrics.NewCollector()
	manager := memory.NewManager(cfg.MemoryConfig())

	tm, regions, err := extractFile(component, src)
	if err != nil {
		return err
	}

	registry := minimact.NewRegistry(
		minimact.WithMetrics(collector),
		minimact.WithMemoryManager(manager),
	)
	registry.Put(tm)

	if cfg.StoreDSN != "" {
		s, err := store.Open(cfg.StoreDSN)
		if err != nil {
			return fmt.Errorf("opening document store: %w", err)
		}
		defer s.Close()
		if err := minimact.SaveTemplateMap(context.Background(), s, tm); err != nil {
			return fmt.Errorf("publishing document: %w", err)
		}
		slog.Info("document published", "store", cfg.StoreDSN, "version", tm.Version)
	}

	initial, err := loadState(statePath)
	if err != nil {
		return err
	}

	in, err := minimact.NewInstance(component, registry, minimact.SourceRenderer(regions), initial,
		minimact.WithInstanceMetrics(collector),
		minimact.WithInstanceMemory(manager),
	)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := in.Tree().CheckLimits(cfg.MaxTreeDepth, cfg.MaxTreeNodes); err != nil {
		return fmt.Errorf("initial render of %q: %w", component, err)
	}

	feed := minimact.NewFeed(ttl)
	feed.RegisterInstance(in)

	go watchSource(src, component, registry, in, feed)

	mux := http.NewServeMux()
	mux.Handle("/feed", feed)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(collector.GetMetrics())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, indexPage, component, in.Tree().Render(), in.ID)
	})

	slog.Info("serving component",
		"component", component,
		"instance", in.ID,
		"addr", addr,
		"templates", tm.Len())
	return http.ListenAndServe(addr, mux)
}

func extractFile(component, src string) (*minimact.TemplateMap, []*minimact.SourceNode, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, nil, fmt.Errorf("reading source: %w", err)
	}
	regions, err := minimact.ParseSource(string(data))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %q: %w", src, err)
	}
	result, err := minimact.Extract(component, regions)
	if err != nil {
		return nil, nil, fmt.Errorf("extracting %q: %w", component, err)
	}
	for _, warning := range result.Warnings {
		slog.Warn("extraction warning", "component", component, "detail", warning.String())
	}
	result.Map.Version = time.Now().UTC().Format("20060102150405")
	return result.Map, regions, nil
}

func loadState(path string) (minimact.StateSnapshot, error) {
	if path == "" {
		return minimact.StateSnapshot{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var snapshot minimact.StateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	return snapshot, nil
}

// watchSource polls the component source file and hot-reloads edits into the
// running instance. Patchable edits stream as patches through the feed;
// structural edits remount and push the replacement tree.
func watchSource(src, component string, registry *minimact.Registry, in *minimact.Instance, feed *minimact.Feed) {
	stat, err := os.Stat(src)
	if err != nil {
		slog.Warn("source watch disabled", "src", src, "error", err)
		return
	}
	lastMod := stat.ModTime()

	for range time.Tick(time.Second) {
		stat, err := os.Stat(src)
		if err != nil || !stat.ModTime().After(lastMod) {
			continue
		}
		lastMod = stat.ModTime()

		newMap, _, err := extractFile(component, src)
		if err != nil {
			slog.Error("hot reload extraction failed", "src", src, "error", err)
			continue
		}

		oldMap := registry.Swap(newMap)
		plan := minimact.DiffTemplateMaps(oldMap, newMap, in.Snapshot())
		tree, err := in.ApplyReload(plan)
		if err != nil {
			slog.Error("hot reload failed", "component", component, "error", err)
			continue
		}
		if plan.Remount {
			feed.BroadcastRemount(in.ID, component, tree)
		}
		slog.Info("hot reload applied",
			"component", component,
			"from", plan.FromVersion,
			"to", plan.ToVersion,
			"remount", plan.Remount,
			"patches", len(plan.Patches),
			"reason", plan.Reason)
	}
}

const indexPage = `<!doctype html>
<html>
<head><title>%s</title></head>
<body>
<div id="root">%s</div>
<script>
const root = document.getElementById("root");
const ws = new WebSocket("ws://" + location.host + "/feed?instance=%s");
ws.onmessage = (ev) => {
	const msg = JSON.parse(ev.data);
	console.log(msg.type, msg);
	if (msg.type === "remount") location.reload();
};
window.pushState = (changes) =>
	ws.send(JSON.stringify({type: "state_change", changes}));
</script>
</body>
</html>
`
