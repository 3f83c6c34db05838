package catalog

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/services"
)

// unpackPrefix marks directories an unpacker is still writing into. They are
// never cleaned up or counted.
const unpackPrefix = "_UNPACK_"

// Inbox inspects and maintains the drop-in directory awaiting import.
type Inbox struct {
	root   string
	logger *slog.Logger
}

// NewInbox constructs an inbox inspector rooted at root.
func NewInbox(root string, logger *slog.Logger) *Inbox {
	return &Inbox{root: root, logger: logging.NewComponentLogger(logger, "inbox")}
}

// InboxStats summarizes what is waiting in the inbox.
type InboxStats struct {
	Folders     int       `json:"folders"`
	AudioFiles  int       `json:"audio_files"`
	OtherFiles  int       `json:"other_files"`
	TotalBytes  int64     `json:"total_bytes"`
	TotalSize   string    `json:"total_size"`
	OldestAdded time.Time `json:"oldest_added,omitempty"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Stats walks the inbox and summarizes it. Hidden and unpack-in-progress
// entries are excluded.
func (ib *Inbox) Stats() (*InboxStats, error) {
	stats := &InboxStats{ComputedAt: time.Now().UTC()}

	entries, err := os.ReadDir(ib.root)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "inbox", "read inbox", err.Error(), err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || skipName(entry.Name()) {
			continue
		}
		stats.Folders++
		if info, err := entry.Info(); err == nil {
			mod := info.ModTime()
			if stats.OldestAdded.IsZero() || mod.Before(stats.OldestAdded) {
				stats.OldestAdded = mod
			}
		}
	}

	err = filepath.WalkDir(ib.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != ib.root && skipName(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if skipName(d.Name()) {
			return nil
		}
		if fileutil.IsAudioPath(path) {
			stats.AudioFiles++
		} else {
			stats.OtherFiles++
		}
		if info, err := d.Info(); err == nil {
			stats.TotalBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "inbox", "walk inbox", err.Error(), err)
	}
	stats.TotalSize = humanize.Bytes(uint64(stats.TotalBytes))
	return stats, nil
}

// TreeNode is one artist folder with its album folders.
type TreeNode struct {
	Artist string   `json:"artist"`
	Albums []string `json:"albums"`
}

// Tree lists the inbox as artist folders and their album subfolders. Loose
// files at either level are ignored; the folder endpoint exposes them.
func (ib *Inbox) Tree() ([]TreeNode, error) {
	entries, err := os.ReadDir(ib.root)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "inbox", "read inbox", err.Error(), err)
	}
	tree := make([]TreeNode, 0, len(entries))
	for _, artist := range entries {
		if !artist.IsDir() || skipName(artist.Name()) {
			continue
		}
		node := TreeNode{Artist: artist.Name(), Albums: []string{}}
		albums, err := os.ReadDir(filepath.Join(ib.root, artist.Name()))
		if err == nil {
			for _, album := range albums {
				if album.IsDir() && !skipName(album.Name()) {
					node.Albums = append(node.Albums, album.Name())
				}
			}
		}
		sort.Strings(node.Albums)
		tree = append(tree, node)
	}
	sort.Slice(tree, func(i, j int) bool { return tree[i].Artist < tree[j].Artist })
	return tree, nil
}

// FolderFile is one file inside an inbox folder.
type FolderFile struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
	Size  string `json:"size"`
	Audio bool   `json:"audio"`
}

// Folder lists the files directly inside inbox/<artist>/<album>. Path
// components are rejected if they would escape the inbox root.
func (ib *Inbox) Folder(artist, album string) ([]FolderFile, error) {
	dir := filepath.Join(ib.root, artist, album)
	rootAbs, rootErr := filepath.Abs(ib.root)
	resolved, err := filepath.Abs(dir)
	if err != nil || rootErr != nil || !strings.HasPrefix(resolved, rootAbs+string(filepath.Separator)) {
		return nil, services.Wrap(services.ErrNotFound, "inbox", "folder", "path escapes inbox root", nil)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "inbox", "folder", dir+" not found", err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "inbox", "folder", err.Error(), err)
	}
	files := make([]FolderFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || skipName(entry.Name()) {
			continue
		}
		f := FolderFile{Name: entry.Name(), Audio: fileutil.IsAudioPath(entry.Name())}
		if info, err := entry.Info(); err == nil {
			f.Bytes = info.Size()
			f.Size = humanize.Bytes(uint64(f.Bytes))
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Cleanup removes top-level inbox directories containing no audio anywhere
// beneath them, then removes directories left empty. Unpack-in-progress and
// hidden entries are left alone. It returns the number of removed
// directories.
func (ib *Inbox) Cleanup() (int, error) {
	entries, err := os.ReadDir(ib.root)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "inbox", "read inbox", err.Error(), err)
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || skipName(entry.Name()) {
			continue
		}
		dir := filepath.Join(ib.root, entry.Name())
		hasAudio, err := containsAudio(dir)
		if err != nil {
			ib.logger.Warn("cleanup walk failed",
				logging.String(logging.FieldTarget, dir), logging.Error(err))
			continue
		}
		if hasAudio {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			ib.logger.Warn("cleanup remove failed",
				logging.String(logging.FieldTarget, dir), logging.Error(err))
			continue
		}
		removed++
		ib.logger.Info("removed audio-less inbox folder",
			logging.String(logging.FieldTarget, dir))
	}
	return removed, nil
}

func containsAudio(dir string) (bool, error) {
	found := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), unpackPrefix) {
				found = true
				return filepath.SkipAll
			}
			return nil
		}
		if fileutil.IsAudioPath(path) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found, err
}

func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, unpackPrefix)
}
