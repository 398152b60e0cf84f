package gateway

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// TemplateRenderer parses the page templates once and re-parses them when a
// template file changes on disk, so page edits do not need a restart.
type TemplateRenderer struct {
	dir     string
	mu      sync.RWMutex
	tmpl    *template.Template
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewTemplateRenderer parses every .html file under dir and starts the
// reload watcher.
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	tmpl, err := template.ParseGlob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create template watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch template directory: %w", err)
	}

	tr := &TemplateRenderer{
		dir:     dir,
		tmpl:    tmpl,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go tr.watch()

	log.Info().Str("dir", dir).Msg("Template renderer initialized")
	return tr, nil
}

func (tr *TemplateRenderer) watch() {
	for {
		select {
		case event, ok := <-tr.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".html") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			tr.reload()
		case err, ok := <-tr.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Template watcher error")
		case <-tr.done:
			return
		}
	}
}

func (tr *TemplateRenderer) reload() {
	tmpl, err := template.ParseGlob(filepath.Join(tr.dir, "*.html"))
	if err != nil {
		log.Error().Err(err).Msg("Template reload failed, keeping previous set")
		return
	}

	tr.mu.Lock()
	tr.tmpl = tmpl
	tr.mu.Unlock()
	log.Info().Str("dir", tr.dir).Msg("Templates reloaded")
}

// Render executes a named template.
func (tr *TemplateRenderer) Render(w io.Writer, name string, data interface{}) error {
	tr.mu.RLock()
	tmpl := tr.tmpl
	tr.mu.RUnlock()
	return tmpl.ExecuteTemplate(w, name, data)
}

// Close stops the reload watcher.
func (tr *TemplateRenderer) Close() error {
	close(tr.done)
	return tr.watcher.Close()
}
