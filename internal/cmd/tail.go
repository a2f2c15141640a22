package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Xueheng-Li/cc-log-page/internal/config"
	"github.com/Xueheng-Li/cc-log-page/internal/output"
	"github.com/Xueheng-Li/cc-log-page/internal/parser"
	"github.com/Xueheng-Li/cc-log-page/internal/tailer"
	"github.com/Xueheng-Li/cc-log-page/internal/watcher"
)

var tailFromStart bool

var tailCmd = &cobra.Command{
	Use:   "tail [project-dir-name]",
	Short: "Stream parsed session records to the terminal",
	Long: `Watch the projects directory and print each new record as it is
written, colorized by kind. An optional argument restricts output to one
encoded project directory name.

Examples:
  cclog tail
  cclog tail -Users-alice-myapp
  cclog tail --output json | jq .text`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailFromStart, "from-start", false, "replay existing records before tailing")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	projectsDir := settings.ResolvedProjectsDir()
	if _, err := os.Stat(projectsDir); err != nil {
		return fmt.Errorf("projects directory not found: %s", projectsDir)
	}

	var projectFilter string
	if len(args) == 1 {
		projectFilter = args[0]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	w, err := watcher.New(projectsDir, settings.Debounce())
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	var renderer output.Renderer
	switch strings.ToLower(outputFmt) {
	case "json":
		renderer = output.NewJSONRenderer()
	default:
		renderer = output.NewTextRenderer()
	}

	tl := tailer.New()
	p := parser.New()

	render := func(path string) {
		if projectFilter != "" && filepath.Base(filepath.Dir(path)) != projectFilter {
			return
		}
		batch, err := tl.ReadNew(path)
		if err != nil {
			log.Printf("tail: cannot read %s: %v", path, err)
			return
		}
		sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
		for _, line := range batch.Lines {
			rec, err := p.Parse(line.Text, line.Ordinal)
			if err != nil {
				continue
			}
			if rec.SessionID == "" {
				rec.SessionID = sessionID
			}
			if err := renderer.Render(rec); err != nil {
				log.Printf("render error: %v", err)
			}
		}
	}

	// Existing content is either replayed or silently skipped past, so only
	// new records stream by default.
	for _, path := range w.Paths() {
		if tailFromStart {
			render(path)
		} else if _, err := tl.ReadNew(path); err != nil {
			log.Printf("tail: cannot read %s: %v", path, err)
		}
	}

	fmt.Fprintf(os.Stderr, "tailing %d session file(s) under %s\n", len(w.Paths()), projectsDir)
	go w.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.Events:
			switch ev.Op {
			case watcher.OpCreate, watcher.OpWrite:
				render(ev.Path)
			case watcher.OpRemove:
				tl.Forget(ev.Path)
			}
		}
	}
}
