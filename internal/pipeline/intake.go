package pipeline

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
	"github.com/sachinfortude/RAMP-UP/internal/queue"
	"github.com/sachinfortude/RAMP-UP/internal/student"
)

// IntakeConfig holds the settings of the caller-facing side of the pipeline.
type IntakeConfig struct {
	UploadDir   string
	DownloadDir string
	Attempts    int
	Backoff     time.Duration
}

// Intake accepts uploads and filter requests and turns them into jobs. It
// is the only synchronous part of the pipeline.
type Intake struct {
	q   Enqueuer
	cfg IntakeConfig
	log zerolog.Logger
}

// NewIntake creates the intake. Attempts defaults to DefaultAttempts.
func NewIntake(q Enqueuer, cfg IntakeConfig, log zerolog.Logger) *Intake {
	if cfg.Attempts < 1 {
		cfg.Attempts = DefaultAttempts
	}
	return &Intake{q: q, cfg: cfg, log: log.With().Str("component", "intake").Logger()}
}

// SaveUpload stores src under the upload dir as file-<nanos>-<rand><ext>
// and returns the path.
func (in *Intake) SaveUpload(src io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext != ".xlsx" && ext != ".xlsm" {
		return "", apperrors.Validation("only .xlsx workbooks are accepted")
	}
	if err := os.MkdirAll(in.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := fmt.Sprintf("file-%d-%d%s", time.Now().UnixNano(), rand.Intn(1_000_000_000), ext)
	path := filepath.Join(in.cfg.UploadDir, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

// StartImport enqueues an import of filePath.
func (in *Intake) StartImport(ctx context.Context, filePath string) (queue.Handle, error) {
	if strings.TrimSpace(filePath) == "" {
		return queue.Handle{}, apperrors.Validation("filePath is required")
	}
	h, err := in.q.Enqueue(ctx, JobImport, ImportPayload{FilePath: filePath}, in.opts())
	if err != nil {
		return queue.Handle{}, err
	}
	in.log.Info().Str("jobId", h.ID).Str("file", filePath).Msg("import job queued")
	return h, nil
}

// StartFilter validates the age band and enqueues a filter job.
func (in *Intake) StartFilter(ctx context.Context, minAge, maxAge int) (queue.Handle, error) {
	if err := student.ValidateAgeRange(minAge, maxAge); err != nil {
		return queue.Handle{}, err
	}
	h, err := in.q.Enqueue(ctx, JobFilter, FilterPayload{MinAge: minAge, MaxAge: maxAge}, in.opts())
	if err != nil {
		return queue.Handle{}, err
	}
	in.log.Info().Str("jobId", h.ID).Int("minAge", minAge).Int("maxAge", maxAge).Msg("filter job queued")
	return h, nil
}

// DownloadPath resolves a path returned by a filter job. Anything outside
// the download dir, or not a regular file, is NotFound.
func (in *Intake) DownloadPath(filePath string) (string, error) {
	notFound := apperrors.NotFound("File not found")
	if strings.TrimSpace(filePath) == "" {
		return "", notFound
	}
	root, err := filepath.Abs(in.cfg.DownloadDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", notFound
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", notFound
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", notFound
	}
	return abs, nil
}

func (in *Intake) opts() queue.Options {
	return queue.Options{Attempts: in.cfg.Attempts, Backoff: in.cfg.Backoff}
}
