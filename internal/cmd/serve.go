package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Xueheng-Li/cc-log-page/internal/config"
	"github.com/Xueheng-Li/cc-log-page/internal/hub"
	"github.com/Xueheng-Li/cc-log-page/internal/ingest"
	"github.com/Xueheng-Li/cc-log-page/internal/projpath"
	"github.com/Xueheng-Li/cc-log-page/internal/search"
	"github.com/Xueheng-Li/cc-log-page/internal/server"
	"github.com/Xueheng-Li/cc-log-page/internal/store"
	"github.com/Xueheng-Li/cc-log-page/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session log API with live updates",
	Long: `Index every session log under the projects directory, then serve the
HTTP API and the WebSocket live stream. With the watcher enabled (default),
new log lines become visible within the debounce window.

Examples:
  cclog serve
  cclog serve --port 8080
  CCLOG_PROJECTS_DIR=/tmp/projects cclog serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "bind host")
	serveCmd.Flags().Int("port", 0, "bind port")
	serveCmd.Flags().String("projects-dir", "", "projects directory (default: ~/.claude/projects)")
	serveCmd.Flags().Bool("no-watch", false, "disable the filesystem watcher")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	bindServeFlags(cmd)

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	projectsDir := settings.ResolvedProjectsDir()
	if _, err := os.Stat(projectsDir); err != nil {
		return fmt.Errorf("projects directory not found: %s", projectsDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ncclog shutting down...")
		cancel()
	}()

	st := store.New()
	idx := search.New(settings.SnippetChars)
	h := hub.New(settings.HubQueueSize)
	defer h.Close()

	var (
		events       <-chan watcher.Event
		sessionFiles []string
	)
	if settings.WatchEnabled {
		w, err := watcher.New(projectsDir, settings.Debounce())
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		events = w.Events
		sessionFiles = w.Paths()
		go w.Start(ctx)
	} else {
		sessionFiles, err = doublestar.FilepathGlob(
			filepath.Join(projectsDir, "*", "*.jsonl"), doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("session scan failed: %w", err)
		}
	}

	ing := ingest.New(st, idx, h, projpath.New(projectsDir), events)
	ing.Bootstrap(projectDirNames(projectsDir), sessionFiles)
	go ing.Run(ctx)

	stats := st.Stats()
	log.Printf("indexed %d projects, %d sessions, %d records from %s",
		stats.TotalProjects, stats.TotalSessions, stats.TotalRecords, projectsDir)

	srv := server.New(st, idx, h, settings.SearchMaxResults, settings.WatchEnabled, ing.Malformed)
	log.Printf("listening on http://%s", settings.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(settings.Addr()) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// bindServeFlags overlays explicitly set flags onto the viper keys so the
// precedence stays flags > env > config file > defaults.
func bindServeFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("host") {
		_ = viper.BindPFlag("host", cmd.Flags().Lookup("host"))
	}
	if cmd.Flags().Changed("port") {
		_ = viper.BindPFlag("port", cmd.Flags().Lookup("port"))
	}
	if cmd.Flags().Changed("projects-dir") {
		_ = viper.BindPFlag("projects_dir", cmd.Flags().Lookup("projects-dir"))
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		viper.Set("watch_enabled", false)
	}
}

// projectDirNames lists the encoded project directory names under root.
func projectDirNames(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
