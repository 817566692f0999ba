package main

import (
	"bufio"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/sammck-go/comlink/comlink"
)

// reloadableOriginPolicy keeps a *comlink.OriginPolicy built from a static
// comma-separated list plus, optionally, a file of one-origin-per-line
// entries that is watched with fsnotify and reloaded on change.
type reloadableOriginPolicy struct {
	logger  comlink.Logger
	static  []string
	path    string
	current atomic.Value // *comlink.OriginPolicy
	watcher *fsnotify.Watcher
}

func newReloadableOriginPolicy(logger comlink.Logger, originsCSV, path string) (*reloadableOriginPolicy, error) {
	var static []string
	for _, o := range strings.Split(originsCSV, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			static = append(static, o)
		}
	}
	p := &reloadableOriginPolicy{logger: logger.Fork("origins"), static: static, path: path}
	if err := p.reload(); err != nil {
		return nil, err
	}
	if path != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		if err := w.Add(path); err != nil {
			w.Close()
			return nil, err
		}
		p.watcher = w
		go p.watchLoop()
	}
	return p, nil
}

func (p *reloadableOriginPolicy) watchLoop() {
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := p.reload(); err != nil {
					p.logger.WLogf("reloading %s: %s", p.path, err)
				} else {
					p.logger.ILogf("reloaded origin allow-list from %s", p.path)
				}
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.WLogf("watching %s: %s", p.path, err)
		}
	}
}

func (p *reloadableOriginPolicy) reload() error {
	entries := append([]string(nil), p.static...)
	if p.path != "" {
		fileEntries, err := readOriginsFile(p.path)
		if err != nil {
			return err
		}
		entries = append(entries, fileEntries...)
	}
	p.current.Store(comlink.NewOriginPolicy(entries...))
	return nil
}

func readOriginsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries, scanner.Err()
}

// Current returns the most recently loaded policy.
func (p *reloadableOriginPolicy) Current() *comlink.OriginPolicy {
	v, _ := p.current.Load().(*comlink.OriginPolicy)
	return v
}

func (p *reloadableOriginPolicy) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}
