package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchArtifact watches the model artifact path and reports when it changes
// on disk. The loaded pipeline is immutable for the process lifetime, so the
// watcher only logs that a restart is needed to pick up the new artifact.
// The containing directory is watched, the artifact itself may not exist yet.
func watchArtifact(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	done := make(chan bool)
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[INFO] stopping watcher for %s, %v", path, ctx.Err())
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					log.Printf("[WARN] model artifact %s changed on disk, restart to pick it up", path)
				}
			case e, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[WARN] watcher error: %v", e)
			}
		}
	}()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to add %s to watcher: %w", dir, err)
	}
	<-done
	return nil
}
