// Package ingest turns files in a seed directory into block lineages: a new
// file becomes a create block, later saves of the same file become edits in
// that block's family. Files are matched to their lineage through checksum
// records kept in the ledger.
package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/othala/internal/blockstore"
	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/ledger"
)

const debounceInterval = 200 * time.Millisecond

// Ingester reconciles a seed directory against the ledger's ingest state.
type Ingester struct {
	ledger ledger.Ledger
	blocks *blockstore.Store
	root   string
	logger *slog.Logger
}

func NewIngester(led ledger.Ledger, blocks *blockstore.Store, root string, logger *slog.Logger) *Ingester {
	return &Ingester{ledger: led, blocks: blocks, root: root, logger: logger}
}

// Sync walks the seed directory once and brings the block store up to date:
// unseen files mint create blocks, changed files mint edits, unchanged and
// empty files are skipped. Removed files are left alone since blocks are
// never deleted.
func (in *Ingester) Sync() error {
	state, err := in.ledger.IngestState()
	if err != nil {
		return err
	}
	return filepath.WalkDir(in.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !eligible(path) {
			return nil
		}
		rel, relErr := filepath.Rel(in.root, path)
		if relErr != nil {
			return nil
		}
		if ingErr := in.ingestFile(rel, state[rel]); ingErr != nil {
			in.logger.Warn("ingest: file failed",
				slog.String("path", rel),
				slog.String("error", ingErr.Error()))
		}
		return nil
	})
}

// ingestFile mints a block for the file when its content changed since the
// last ingest record.
func (in *Ingester) ingestFile(rel string, prev ledger.IngestRecord) error {
	data, err := os.ReadFile(filepath.Join(in.root, rel))
	if err != nil {
		return err
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil
	}
	cs := checksum.Sum(data)
	if prev.Checksum == cs {
		return nil
	}

	var blockID string
	if prev.BlockID == "" {
		nb, err := in.blocks.Create(content)
		if err != nil {
			return err
		}
		blockID = nb.ID
		in.logger.Info("ingest: created block",
			slog.String("path", rel),
			slog.String("kbb_id", nb.ID))
	} else {
		nb, err := in.blocks.Edit(prev.BlockID, content)
		if err != nil {
			return err
		}
		blockID = nb.ID
		in.logger.Info("ingest: edited block",
			slog.String("path", rel),
			slog.String("kbb_id", nb.ID),
			slog.String("kbn_id", nb.FamilyID))
	}
	return in.ledger.SetIngestRecord(rel, ledger.IngestRecord{BlockID: blockID, Checksum: cs})
}

// Watch processes seed-directory events until ctx is cancelled. Event
// bursts are debounced into a single Sync pass; removals are ignored.
func (in *Ingester) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(in.root); err != nil {
		return err
	}
	in.logger.Info("ingest: watching", slog.String("root", in.root))

	var debounce *time.Timer
	var syncCh <-chan time.Time

	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(debounceInterval)
			syncCh = debounce.C
		} else {
			debounce.Reset(debounceInterval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			in.logger.Info("ingest: stopped")
			return nil

		case <-syncCh:
			if syncErr := in.Sync(); syncErr != nil {
				in.logger.Warn("ingest: sync failed", slog.String("error", syncErr.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !eligible(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("ingest: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func eligible(path string) bool {
	return strings.HasSuffix(path, ".txt") || strings.HasSuffix(path, ".md")
}
