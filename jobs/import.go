package jobs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/internal/httpclient"
	"github.com/teranos/waypoint/internal/util"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
)

// Progress split between fetching the source and storing its points
const fetchShare = 0.1

const downloadTimeout = 10 * time.Minute

// ImportStore is the storage the import job needs
type ImportStore interface {
	EnsureImport(ctx context.Context, id, userID, filename, originalFilename string) (*location.Import, error)
	InsertPoints(ctx context.Context, points []location.Point) (int, error)
	FinishImport(ctx context.Context, id string, totalEntries int) error
}

// ImportOptions configures where imports are read from and kept
type ImportOptions struct {
	Directory       string                  // fetched files land here as <import_id>.json
	SourceDirectory string                  // local sources must resolve under it; empty disables them
	BatchSize       int                     // points per transaction
	HTTP            *httpclient.SaferClient // nil uses a client that refuses internal hosts
}

// ImportOptionsFrom builds options from the import config section
func ImportOptionsFrom(c am.ImportConfig) ImportOptions {
	return ImportOptions{
		Directory:       c.Directory,
		SourceDirectory: c.SourceDirectory,
		BatchSize:       c.BatchSize,
	}
}

// ImportJob fetches a location file (local path or URL) into the import
// directory, then stores its points in batches. Checkpoint: between entries;
// batches committed before a stop are kept and the import stays not done.
type ImportJob struct {
	store    ImportStore
	importID string
	source   string
	opts     ImportOptions
	logger   *zap.SugaredLogger
}

// NewImportJob creates the runner directly, bypassing the catalog
func NewImportJob(store ImportStore, importID, source string, opts ImportOptions, log *zap.SugaredLogger) *ImportJob {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ImportJob{store: store, importID: importID, source: source, opts: opts, logger: log}
}

// ValidateImportID accepts only canonical lowercase uuids, the form import
// records are created with. The id becomes a file name.
func ValidateImportID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return errors.WithHint(errors.NewInvalidRequestError("import_id %q is not a uuid", id),
			"import ids look like 0b6e4f6a-2c1d-4a8e-9f3b-5d7c1e2a9b40")
	}
	return nil
}

func (j *ImportJob) Run(ctx context.Context, job *async.Job) error {
	userID := job.UserID()
	log := logger.ChildLogger(j.logger,
		logger.FieldJobID, job.ID(),
		logger.FieldUserID, userID,
		logger.FieldImportID, j.importID)
	emitter := job.Emitter()

	if err := ValidateImportID(j.importID); err != nil {
		return err
	}

	dir := j.opts.Directory
	if dir == "" {
		dir = "imports"
	}
	if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "create import directory %s", dir)
	}
	dst := filepath.Join(dir, j.importID+".json")

	if _, err := j.store.EnsureImport(ctx, j.importID, userID, dst, originalName(j.source)); err != nil {
		return err
	}

	emitter.EmitStage("fetch", "Fetching "+j.source)
	if err := j.fetch(ctx, dst); err != nil {
		return err
	}
	job.SetProgress(fetchShare)

	f, err := os.Open(dst)
	if err != nil {
		return errors.Wrap(err, "open fetched import")
	}
	defer f.Close()
	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	batchSize := j.opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	stored := 0
	buffer := NewBatchBuffer(batchSize, func(ctx context.Context, batch []location.Point) error {
		n, err := j.store.InsertPoints(ctx, batch)
		if err != nil {
			return errors.Wrapf(err, "store import batch at entry %d", stored)
		}
		stored += n
		return nil
	})

	emitter.EmitStage("store", "Storing points")
	decoder := NewPointDecoder(f)
	for {
		if shouldStop(ctx, job) {
			if err := buffer.Flush(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			log.Infow("Import stopped", logger.FieldCount, stored)
			return stopped(ctx, job)
		}

		p, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "parse %s", j.source)
		}
		p.UserID = userID
		p.ImportID = j.importID
		if err := buffer.Add(ctx, p); err != nil {
			return err
		}
		if size > 0 {
			job.SetProgress(util.Lerp(fetchShare, 1, float64(decoder.Offset())/float64(size)))
		}
	}
	if err := buffer.Flush(ctx); err != nil {
		return err
	}

	if err := j.store.FinishImport(ctx, j.importID, stored); err != nil {
		return err
	}

	log.Infow("Import finished",
		logger.FieldCount, stored,
		"skipped", decoder.Skipped(),
		"batches", buffer.Flushes())
	emitter.EmitComplete(map[string]interface{}{
		"points":  stored,
		"skipped": decoder.Skipped(),
	})
	return nil
}

// fetch copies the source into dst. URLs go through the guarded HTTP client;
// anything else is a path under the source directory.
func (j *ImportJob) fetch(ctx context.Context, dst string) error {
	if strings.Contains(j.source, "://") {
		u, err := url.Parse(j.source)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.WithHint(errors.NewInvalidRequestError("unsupported import source %q", j.source),
				"source must be a file under import.source_directory or an http(s) URL")
		}
		return j.download(ctx, u.String(), dst)
	}

	src, err := j.localSource()
	if err != nil {
		return err
	}
	return copyFile(ctx, src, dst)
}

// localSource resolves the source path inside the source directory, following
// symlinks on both sides before comparing.
func (j *ImportJob) localSource() (string, error) {
	if j.opts.SourceDirectory == "" {
		return "", errors.WithHint(errors.NewInvalidRequestError("local import sources are disabled"),
			"set import.source_directory or import from an http(s) URL")
	}
	base, err := filepath.Abs(j.opts.SourceDirectory)
	if err != nil {
		return "", errors.Wrap(err, "resolve import source directory")
	}
	if base, err = filepath.EvalSymlinks(base); err != nil {
		return "", errors.Wrapf(err, "resolve import source directory %s", j.opts.SourceDirectory)
	}

	src := j.source
	if !filepath.IsAbs(src) {
		src = filepath.Join(base, src)
	}
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return "", errors.WithHint(errors.Wrapf(err, "fetch import source %s", j.source),
			"source must be a readable file under import.source_directory")
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil || !filepath.IsLocal(rel) {
		return "", errors.WithHint(errors.NewInvalidRequestError("import source %s is outside %s", j.source, j.opts.SourceDirectory),
			"place the file under import.source_directory")
	}
	return resolved, nil
}

// copyFile copies a local file with go-getter. Files are copied, never
// symlinked, so the import survives the source moving; .gz and other
// compressed exports are unpacked on the way.
func copyFile(ctx context.Context, src, dst string) error {
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
		Getters: map[string]getter.Getter{
			"file": &getter.FileGetter{Copy: true},
		},
		Decompressors: getter.Decompressors,
	}
	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "copy import source %s", src)
	}
	return nil
}

// download streams a URL into dst. A partial file is removed on failure.
func (j *ImportJob) download(ctx context.Context, rawURL, dst string) error {
	client := j.opts.HTTP
	if client == nil {
		client = httpclient.New(httpclient.Options{Timeout: downloadTimeout, BlockPrivateIP: true})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "build import request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.WithHint(errors.Wrapf(err, "fetch import source %s", rawURL),
			"URLs must point at a public http(s) host")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(&httpclient.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))},
			"fetch import source %s", rawURL)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, am.DefaultFilePermissions)
	if err != nil {
		return errors.Wrap(err, "create import file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return errors.Wrapf(err, "download import source %s", rawURL)
	}
	return errors.Wrap(f.Close(), "write import file")
}

// originalName is the last path element of a path or URL, without query
func originalName(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	if strings.Contains(src, "://") {
		return path.Base(src)
	}
	return filepath.Base(src)
}
