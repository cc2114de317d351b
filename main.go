package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/witheez/eventatlas-capture-sub000/internal/api"
	"github.com/witheez/eventatlas-capture-sub000/internal/applog"
	"github.com/witheez/eventatlas-capture-sub000/internal/bridge"
	"github.com/witheez/eventatlas-capture-sub000/internal/config"
	"github.com/witheez/eventatlas-capture-sub000/internal/export"
	"github.com/witheez/eventatlas-capture-sub000/internal/match"
	"github.com/witheez/eventatlas-capture-sub000/internal/server"
	"github.com/witheez/eventatlas-capture-sub000/internal/state"
	"github.com/witheez/eventatlas-capture-sub000/internal/storage"
	"github.com/witheez/eventatlas-capture-sub000/internal/summarize"
	"github.com/witheez/eventatlas-capture-sub000/internal/tui"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "export":
			runExport(os.Args[2:])
			return
		case "bundles":
			runBundles()
			return
		case "sync":
			runSync(os.Args[2:])
			return
		case "lookup":
			runLookup(os.Args[2:])
			return
		case "summarize":
			runSummarize(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}

	cfg := config.Load()

	fs := flag.NewFlagSet("eventatlas-capture", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "WebSocket port for the browser extension")
	apiURL := fs.String("api-url", cfg.APIURL, "EventAtlas API base URL (empty = local-only)")
	apiToken := fs.String("token", cfg.APIToken, "EventAtlas API token")
	fs.Parse(os.Args[1:])

	if err := applog.Init(cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
	}
	defer applog.Close()

	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	store := state.New()
	store.Load(db)
	applySettings(store, apiURL, apiToken)

	client := api.New(*apiURL, *apiToken)
	srv := server.New(*port)

	br, err := bridge.New(bridge.Config{
		Server:    srv,
		Store:     store,
		DB:        db,
		Client:    client,
		StaleSync: time.Duration(cfg.StaleSync) * time.Hour,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	model := tui.NewModel(store, db, srv, br)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applySettings lets persisted extension settings fill in API credentials
// when neither flag nor environment provided one.
func applySettings(store *state.Store, apiURL, apiToken *string) {
	s := store.Settings()
	if *apiURL == "" && s.APIURL != "" {
		*apiURL = s.APIURL
	}
	if *apiToken == "" && s.APIToken != "" {
		*apiToken = s.APIToken
	}
}

func printHelp() {
	fmt.Print(`eventatlas-capture — page capture companion for EventAtlas

Usage:
  eventatlas-capture                          Start the TUI (default)
    --port <n>            WebSocket port for the extension (default: 19292)
    --api-url <url>       EventAtlas API base URL (empty = local-only)
    --token <tok>         EventAtlas API token

  eventatlas-capture serve                    Headless bridge (no TUI)
    --port <n>            WebSocket port for the extension

  eventatlas-capture export                   Export bundles to stdout or file
    --json                Export as JSON instead of markdown
    --out <file>          Output file path (default: stdout)

  eventatlas-capture bundles                  List saved bundles

  eventatlas-capture sync                     Refresh the events catalog cache

  eventatlas-capture lookup <url>             Classify a URL against the catalog

  eventatlas-capture summarize                Summarize captured pages via Ollama
    --bundle <name>       Bundle to summarize (default: all)
    --model <name>        Ollama model (env: EVENTATLAS_MODEL, default: llama3.2)
    --out-dir <path>      Output directory (default: <data dir>/summaries)

Environment:
  EVENTATLAS_API_URL     API base URL (overridden by --api-url flag)
  EVENTATLAS_API_TOKEN   API token (overridden by --token flag)
  EVENTATLAS_PORT        Extension WebSocket port
  EVENTATLAS_DATA_DIR    Data directory (database, logs, summaries)
  EVENTATLAS_MODEL       Default Ollama model (overridden by --model flag)
  OLLAMA_HOST            Ollama server URL (default: http://localhost:11434)
`)
}

func runServe(args []string) {
	cfg := config.Load()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "WebSocket port for the browser extension")
	fs.Parse(args)

	if err := applog.Init(cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
	}
	defer applog.Close()

	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	store := state.New()
	store.Load(db)
	apiURL, apiToken := cfg.APIURL, cfg.APIToken
	applySettings(store, &apiURL, &apiToken)

	srv := server.New(*port)
	br, err := bridge.New(bridge.Config{
		Server:    srv,
		Store:     store,
		DB:        db,
		Client:    api.New(apiURL, apiToken),
		StaleSync: time.Duration(cfg.StaleSync) * time.Hour,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	go br.Run(ctx)

	fmt.Fprintf(os.Stderr, "Listening for extension on 127.0.0.1:%d (ctrl+c to stop)\n", *port)
	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "Export as JSON instead of markdown")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	fs.Parse(args)

	store, db := loadState()
	defer db.Close()

	var output string
	var err error
	if *jsonFlag {
		output, err = export.JSON(store.Bundles())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating JSON: %v\n", err)
			os.Exit(1)
		}
	} else {
		output = export.Markdown(store.Bundles())
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(output), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Print(output)
	}
}

func runBundles() {
	store, db := loadState()
	defer db.Close()

	bs := store.Bundles()
	if len(bs) == 0 {
		fmt.Println("No bundles.")
		return
	}
	for _, b := range bs {
		shots := 0
		for _, c := range b.Pages {
			if c.Screenshot != "" {
				shots++
			}
		}
		line := fmt.Sprintf("%s (%d pages", b.Name, len(b.Pages))
		if shots > 0 {
			line += fmt.Sprintf(", %d shots", shots)
		}
		line += ")"
		fmt.Println(line)
	}
}

func runSync(args []string) {
	cfg := config.Load()

	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	apiURL := fs.String("api-url", cfg.APIURL, "EventAtlas API base URL")
	apiToken := fs.String("token", cfg.APIToken, "EventAtlas API token")
	fs.Parse(args)

	store, db := loadState()
	defer db.Close()
	applySettings(store, apiURL, apiToken)

	client := api.New(*apiURL, *apiToken)
	if client.LocalOnly() {
		fmt.Fprintln(os.Stderr, "No API configured. Set EVENTATLAS_API_URL or pass --api-url.")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data := client.Sync(ctx)
	if data == nil {
		fmt.Fprintln(os.Stderr, "Sync failed.")
		os.Exit(1)
	}
	if err := storage.SaveSyncCache(db, data); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving sync cache: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Synced %d events, %d organizer links\n", len(data.Events), len(data.Links))
}

func runLookup(args []string) {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: eventatlas-capture lookup <url>")
		os.Exit(1)
	}
	url := fs.Arg(0)

	_, db := loadState()
	defer db.Close()

	data := storage.LoadSyncCache(db)
	if data == nil {
		fmt.Fprintln(os.Stderr, "No sync cache. Run 'eventatlas-capture sync' first.")
		os.Exit(1)
	}

	res := match.Classify(url, data)
	fmt.Printf("%s\n", res.Kind)
	if res.Event != nil {
		fmt.Printf("  %s (%s)\n", res.Event.Name, res.Event.URL)
		if res.Event.Date != "" {
			fmt.Printf("  %s\n", res.Event.Date)
		}
	}
	if res.Organizer != nil && res.Event == nil {
		name := res.Organizer.Name
		if name == "" {
			name = res.Organizer.Domain
		}
		fmt.Printf("  organizer: %s\n", name)
	}
}

func runSummarize(args []string) {
	cfg := config.Load()

	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	bundleName := fs.String("bundle", "", "Bundle to summarize (default: all)")
	model := fs.String("model", cfg.Model, "Ollama model")
	outDir := fs.String("out-dir", "", "Output directory")
	fs.Parse(args)

	store, db := loadState()
	defer db.Close()

	dir := *outDir
	if dir == "" {
		dir = defaultSummaryDir(cfg)
	}

	err := summarize.Run(summarize.Config{
		OutDir:     dir,
		Model:      *model,
		OllamaHost: cfg.OllamaHost,
		BundleName: *bundleName,
		Bundles:    store.Bundles(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultSummaryDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "summaries")
}

// loadState opens the database and loads persisted state. Shared by the
// read-mostly subcommands.
func loadState() (*state.Store, *sql.DB) {
	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	store := state.New()
	store.Load(db)
	return store, db
}

func openDB() (*sql.DB, error) {
	if dir := os.Getenv("EVENTATLAS_DATA_DIR"); dir != "" {
		return storage.OpenDB(filepath.Join(dir, "eventatlas.db"))
	}
	dbPath, err := storage.DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return storage.OpenDB(dbPath)
}
