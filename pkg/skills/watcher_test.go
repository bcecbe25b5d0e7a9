// SPDX-License-Identifier: Apache-2.0
package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherDetectsManifestChange(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "files", validManifest)

	changed := make(chan struct{}, 1)
	w := NewWatcher(root, func(ctx context.Context) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithWatchInterval(10*time.Millisecond))
	w.Start(t.Context())
	defer w.Stop()

	// Push the manifest mod time forward so polling sees a change.
	path := filepath.Join(root, "files", manifestFile)
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report manifest change")
	}
}

func TestWatcherDetectsRemovedSkill(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "files", validManifest)

	changed := make(chan struct{}, 1)
	w := NewWatcher(root, func(ctx context.Context) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithWatchInterval(10*time.Millisecond))
	w.Start(t.Context())
	defer w.Stop()

	if err := os.RemoveAll(filepath.Join(root, "files")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report removed skill")
	}
}

func TestWatcherQuietWhenUnchanged(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "files", validManifest)

	changed := make(chan struct{}, 1)
	w := NewWatcher(root, func(ctx context.Context) {
		changed <- struct{}{}
	}, WithWatchInterval(10*time.Millisecond))
	w.Start(t.Context())
	defer w.Stop()

	select {
	case <-changed:
		t.Fatal("watcher reported a change with nothing modified")
	case <-time.After(100 * time.Millisecond):
	}
}
