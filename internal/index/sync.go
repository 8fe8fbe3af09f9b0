package index

import (
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/wikiport/internal/checksum"
	"github.com/starford/wikiport/internal/page"
	"github.com/starford/wikiport/internal/storage"
	"github.com/starford/wikiport/internal/syntax"
)

// SyncStats counts what one Sync pass changed.
type SyncStats struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// Sync walks the vault and brings the index up to date:
//   - new/changed pages are analysed and upserted
//   - pages removed from disk are deleted from the index
func Sync(db PageIndex, store storage.Provider, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats
	metas, err := store.List("")
	if err != nil {
		return stats, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			stats.Unchanged++
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			stats.Failed++
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data, m.UpdatedAt); err != nil {
			stats.Failed++
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeletePage(p); err != nil {
			stats.Failed++
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	return stats, nil
}

// IndexFile analyses an Obsidian page and upserts it. path is relative to
// the vault root and slash-separated.
func IndexFile(db PageIndex, relPath string, data []byte, modTime time.Time) error {
	text := strings.TrimPrefix(string(data), "\uFEFF")
	name := strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))
	views := page.Analyze(syntax.Obsidian{}, name, text)

	if modTime.IsZero() {
		modTime = time.Now()
	}
	row := PageRow{
		Path:      relPath,
		Name:      name,
		Checksum:  checksum.Sum(data),
		Headers:   views.Headers,
		Tags:      views.Tags,
		Aliases:   views.Aliases,
		UpdatedAt: modTime,
	}
	return db.UpsertPage(row, text, LinkTargets(views.Links))
}

// LinkTargets reduces raw link texts to the page names they point at:
// heading and block anchors are cut, folders and the .md extension
// dropped. Duplicates and empty targets are removed.
func LinkTargets(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if i := strings.IndexAny(l, "#^"); i >= 0 {
			l = l[:i]
		}
		l = strings.TrimSpace(l)
		if i := strings.LastIndexByte(l, '/'); i >= 0 {
			l = l[i+1:]
		}
		if strings.EqualFold(path.Ext(l), ".md") {
			l = l[:len(l)-3]
		}
		key := strings.ToLower(l)
		if l == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
