// Package cover resolves album cover art through a three-stage fallback
// chain: conventionally-named local images, artwork embedded in the audio
// tags, and finally the Cover Art Archive keyed by the MusicBrainz release
// id beets recorded. The first stage to produce an image wins.
package cover

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/services"
	"tonearm/internal/services/beets"
)

// OutputName is the file every stage writes into the album directory.
const OutputName = "cover.jpg"

// embeddedProbeLimit bounds how many audio files stage two opens.
const embeddedProbeLimit = 3

var probeBases = []string{"cover", "folder", "front"}
var probeExts = []string{".jpg", ".png"}

// archiveBase is the Cover Art Archive release endpoint.
const archiveBase = "https://coverartarchive.org/release/"

// ReleaseLookup resolves an album directory to beets metadata. Satisfied by
// *beets.Client.
type ReleaseLookup interface {
	AlbumInfo(ctx context.Context, timeout time.Duration, dir string) (*beets.AlbumInfo, error)
}

// Resolver fetches cover art for album directories.
type Resolver struct {
	lookup      ReleaseLookup
	httpc       *http.Client
	logger      *slog.Logger
	timeout     time.Duration
	archiveBase string
}

// New constructs a resolver. timeout bounds the beets lookup and each
// archive download.
func New(lookup ReleaseLookup, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		lookup:      lookup,
		httpc:       &http.Client{Timeout: timeout},
		logger:      logging.NewComponentLogger(logger, "cover"),
		timeout:     timeout,
		archiveBase: archiveBase,
	}
}

// Resolve ensures dir contains a cover image, running the fallback chain if
// needed. It returns the stage that produced the image: "existing",
// "local", "embedded", or "archive".
func (r *Resolver) Resolve(ctx context.Context, dir string) (string, error) {
	target := filepath.Join(dir, OutputName)
	if _, err := os.Stat(target); err == nil {
		return "existing", nil
	}

	if src, ok := r.probeLocal(dir); ok {
		if src == target {
			return "existing", nil
		}
		if err := fileutil.CopyFile(src, target); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "cover", "copy local image", err.Error(), err)
		}
		return "local", nil
	}

	if data, ok := r.probeEmbedded(dir); ok {
		if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "cover", "write embedded image", err.Error(), err)
		}
		return "embedded", nil
	}

	data, err := r.fetchArchive(ctx, dir)
	if err != nil {
		return "", err
	}
	if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "cover", "write archive image", err.Error(), err)
	}
	return "archive", nil
}

// probeLocal scans dir for conventionally named images, honoring base-name
// priority: any "cover" image beats any "folder" image beats any "front".
func (r *Resolver) probeLocal(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	present := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		for _, base := range probeBases {
			for _, ext := range probeExts {
				if name == base+ext {
					if _, seen := present[base+ext]; !seen {
						present[base+ext] = filepath.Join(dir, entry.Name())
					}
				}
			}
		}
	}
	for _, base := range probeBases {
		for _, ext := range probeExts {
			if path, ok := present[base+ext]; ok {
				return path, true
			}
		}
	}
	return "", false
}

// probeEmbedded opens the first few audio files in dir and returns the
// first embedded picture found.
func (r *Resolver) probeEmbedded(dir string) ([]byte, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && fileutil.IsAudioPath(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) > embeddedProbeLimit {
		names = names[:embeddedProbeLimit]
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		meta, err := tag.ReadFrom(f)
		f.Close()
		if err != nil || meta.Picture() == nil {
			continue
		}
		if pic := meta.Picture(); len(pic.Data) > 0 {
			return pic.Data, true
		}
	}
	return nil, false
}

// fetchArchive resolves dir to a MusicBrainz release id via beets and
// downloads art from the Cover Art Archive, preferring the 500px thumbnail.
func (r *Resolver) fetchArchive(ctx context.Context, dir string) ([]byte, error) {
	info, err := r.lookup.AlbumInfo(ctx, r.timeout, dir)
	if err != nil {
		return nil, err
	}
	if info.MBAlbumID == "" {
		return nil, services.Wrap(services.ErrNotFound, "cover", "archive lookup",
			"no release id for "+dir, nil)
	}

	var lastErr error
	for _, suffix := range []string{"front-500", "front"} {
		url := r.archiveBase + info.MBAlbumID + "/" + suffix
		data, err := r.download(ctx, url)
		if err == nil {
			r.logger.Info("fetched archive cover",
				logging.String(logging.FieldTarget, dir),
				logging.String("release", info.MBAlbumID))
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Resolver) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "cover", "build request", err.Error(), err)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "cover", "fetch "+url, err.Error(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, services.Wrap(services.ErrNotFound, "cover", "fetch "+url, "no image at archive", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrExternalTool, "cover", "fetch "+url,
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "cover", "read image", err.Error(), err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "cover", "read image", "empty response", nil)
	}
	return data, nil
}
