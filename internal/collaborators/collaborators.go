// Package collaborators declares the narrow external-system interfaces the
// pipeline steps and recovery workers program against: indexer, downloader,
// delivery transport and library scan trigger. Concrete implementations live
// outside this module; tests supply hand-written fakes, in the teacher's
// StubHandler style (pipeline/handler.go).
package collaborators

import (
	"context"
	"time"
)

// IndexedRelease is one candidate a torrent indexer returned for a search.
type IndexedRelease struct {
	Title       string
	TorrentHash string
	Resolution  string
	Codec       string
	SizeBytes   int64
	Seeders     int
	PublishDate time.Time
}

// Indexer searches torrent indexers for releases matching a title/year/season.
type Indexer interface {
	Search(ctx context.Context, title string, year int, season int) ([]IndexedRelease, error)
}

// ExistingTorrent describes a torrent already present on the downloader,
// used by the search step's short-circuit path.
type ExistingTorrent struct {
	TorrentHash    string
	Title          string
	Year           int
	Season         int
	Resolution     string
	PercentDone    float64
	ContentPath    string
}

// TorrentFile is one file inside a torrent's content directory.
type TorrentFile struct {
	Path string
	Size int64
}

// Downloader adds torrents and reports on their completion state.
type Downloader interface {
	FindExisting(ctx context.Context, title string, year int, season int) (ExistingTorrent, bool, error)
	AddTorrent(ctx context.Context, torrentHash, title string) error
	Status(ctx context.Context, torrentHash string) (ExistingTorrent, bool, error)
	// ListFiles returns every file under the torrent's content directory.
	ListFiles(ctx context.Context, torrentHash string) ([]TorrentFile, error)
}

// DeliveryProgress reports bytes transferred so far, out of total.
type DeliveryProgress func(sent, total int64)

// Delivery transfers one encoded file to a destination server.
type Delivery interface {
	// Exists reports whether destPath already exists on serverID.
	Exists(ctx context.Context, serverID, destPath string) (bool, error)
	Transfer(ctx context.Context, serverID, sourcePath, destPath string, onProgress DeliveryProgress) error
	TriggerScan(ctx context.Context, serverID string) error
}
