package index

import "github.com/starford/wikiport/internal/models"

// PageIndex is the read/write surface of the vault index. The page service
// and the watcher depend on it rather than on *DB.
type PageIndex interface {
	UpsertPage(p PageRow, body string, links []string) error
	DeletePage(path string) error
	GetChecksum(path string) (string, error)
	GetPage(path string) (*PageRow, error)
	GetPageByName(name string) (*PageRow, error)
	ListPages(limit, offset int, tag string) ([]PageRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Tags() ([]TagCount, error)
	Backlinks(target string) ([]string, error)
	Graph() ([]GraphNode, []models.Link, error)
	AllPaths() (map[string]struct{}, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ PageIndex = (*DB)(nil)
