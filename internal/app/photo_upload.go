/**
 * @description
 * This file implements the photo upload job. Document images submitted with a
 * profile update are uploaded to object storage in the background and the stored
 * id and URL are written back onto the profile.
 *
 * @notes
 * - The job is keyed by profile id and idempotent: running it again overwrites
 *   the same fields with the same kind of values.
 * - One first try plus up to maxRetries retries with a fixed delay between
 *   them. Spooled temp files are removed after their upload and on terminal
 *   failure.
 */

package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/internal/store"
	"github.com/onegen/bank-api/pkg/rabbitmq"
	"github.com/onegen/bank-api/pkg/storageclient"
)

// ObjectStorage uploads one object and returns where it is stored.
type ObjectStorage interface {
	Upload(ctx context.Context, filename string, content io.Reader) (*storageclient.UploadResult, error)
}

// PhotoUploadWorker executes photo upload jobs.
type PhotoUploadWorker struct {
	repo        store.Repository
	storage     ObjectStorage
	maxRetries  int
	retryDelay  time.Duration
	onUploaded  func(ctx context.Context, profileID uuid.UUID)
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewPhotoUploadWorker(repo store.Repository, storage ObjectStorage, maxRetries int, retryDelay time.Duration) *PhotoUploadWorker {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PhotoUploadWorker{
		repo:        repo,
		storage:     storage,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		sleep:       sleepContext,
	}
}

// OnUploaded registers a callback run after a job stores all of its photos.
func (w *PhotoUploadWorker) OnUploaded(fn func(ctx context.Context, profileID uuid.UUID)) {
	w.onUploaded = fn
}

// Process runs job once and retries it up to maxRetries times. It returns the
// last error once every attempt has failed.
func (w *PhotoUploadWorker) Process(ctx context.Context, job domain.PhotoUploadJob) error {
	var lastErr error
	maxAttempts := 1 + w.maxRetries
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = w.uploadAll(ctx, job)
		if lastErr == nil {
			log.Printf("level=info component=photo_upload msg=\"photos uploaded\" profile_id=%s count=%d attempt=%d", job.ProfileID, len(job.Photos), attempt)
			if w.onUploaded != nil {
				w.onUploaded(ctx, job.ProfileID)
			}
			return nil
		}
		if errors.Is(lastErr, store.ErrProfileNotFound) {
			break
		}

		log.Printf("level=warn component=photo_upload msg=\"upload attempt failed\" profile_id=%s attempt=%d max_attempts=%d err=%v", job.ProfileID, attempt, maxAttempts, lastErr)
		if attempt < maxAttempts {
			if err := w.sleep(ctx, w.retryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	cleanupSpooledPhotos(job)
	log.Printf("level=error component=photo_upload msg=\"photo upload failed\" profile_id=%s err=%v", job.ProfileID, lastErr)
	return fmt.Errorf("photo upload for profile %s failed: %w", job.ProfileID, lastErr)
}

func (w *PhotoUploadWorker) uploadAll(ctx context.Context, job domain.PhotoUploadJob) error {
	if _, err := w.repo.FindProfileByID(ctx, job.ProfileID); err != nil {
		return err
	}

	fields := make([]string, 0, len(job.Photos))
	for field := range job.Photos {
		fields = append(fields, string(field))
	}
	sort.Strings(fields)

	for _, name := range fields {
		field := domain.PhotoField(name)
		src := job.Photos[field]

		content, err := openPhotoSource(src)
		if errors.Is(err, os.ErrNotExist) {
			// Already uploaded by an earlier attempt, which removed the temp file.
			log.Printf("level=warn component=photo_upload msg=\"spooled file not found; skipping\" profile_id=%s field=%s", job.ProfileID, field)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}

		result, err := w.storage.Upload(ctx, fmt.Sprintf("%s_%s", job.ProfileID, field), bytes.NewReader(content))
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if err := w.repo.UpdateProfilePhoto(ctx, job.ProfileID, field, result.PublicID, result.URL); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if src.Type == domain.PhotoSourceFile {
			removeSpooledFile(src.Data)
		}
	}
	return nil
}

func openPhotoSource(src domain.PhotoSource) ([]byte, error) {
	switch src.Type {
	case domain.PhotoSourceBase64:
		decoded, err := base64.StdEncoding.DecodeString(src.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 photo: %w", err)
		}
		return decoded, nil
	case domain.PhotoSourceFile:
		return os.ReadFile(src.Data)
	default:
		return nil, fmt.Errorf("unsupported photo source %q", src.Type)
	}
}

func cleanupSpooledPhotos(job domain.PhotoUploadJob) {
	for _, src := range job.Photos {
		if src.Type == domain.PhotoSourceFile {
			removeSpooledFile(src.Data)
		}
	}
}

func removeSpooledFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("level=warn component=photo_upload msg=\"temp file cleanup failed\" path=%s err=%v", path, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HandleMessage is the RabbitMQ handler for photo upload jobs. Retries happen
// inside Process, so every delivery is acknowledged.
func (w *PhotoUploadWorker) HandleMessage(ctx context.Context, body []byte) bool {
	var job domain.PhotoUploadJob
	if err := json.Unmarshal(body, &job); err != nil {
		log.Printf("level=error component=photo_upload msg=\"malformed job dropped\" err=%v", err)
		return true
	}
	_ = w.Process(ctx, job)
	return true
}

// QueuedPhotoJobs publishes jobs to RabbitMQ for the upload consumer.
type QueuedPhotoJobs struct {
	producer rabbitmq.Publisher
}

func NewQueuedPhotoJobs(producer rabbitmq.Publisher) *QueuedPhotoJobs {
	return &QueuedPhotoJobs{producer: producer}
}

func (q *QueuedPhotoJobs) Enqueue(ctx context.Context, job domain.PhotoUploadJob) error {
	return q.producer.Publish(ctx, domain.ProfileExchange, domain.PhotoUploadRoutingKey, job)
}

// InlinePhotoJobs runs jobs on a goroutine in this process. It is used when no
// message broker is available.
type InlinePhotoJobs struct {
	worker *PhotoUploadWorker
	base   context.Context
}

func NewInlinePhotoJobs(base context.Context, worker *PhotoUploadWorker) *InlinePhotoJobs {
	return &InlinePhotoJobs{worker: worker, base: base}
}

func (q *InlinePhotoJobs) Enqueue(_ context.Context, job domain.PhotoUploadJob) error {
	go func() {
		_ = q.worker.Process(q.base, job)
	}()
	return nil
}

// FailoverPhotoJobs hands jobs to primary until it fails over, then to fallback
// for the rest of the process lifetime.
type FailoverPhotoJobs struct {
	primary    PhotoJobQueue
	fallback   PhotoJobQueue
	failedOver atomic.Bool
}

func NewFailoverPhotoJobs(primary, fallback PhotoJobQueue) *FailoverPhotoJobs {
	return &FailoverPhotoJobs{primary: primary, fallback: fallback}
}

func (q *FailoverPhotoJobs) Enqueue(ctx context.Context, job domain.PhotoUploadJob) error {
	if q.failedOver.Load() {
		return q.fallback.Enqueue(ctx, job)
	}
	return q.primary.Enqueue(ctx, job)
}

// FailOver switches every later job to the fallback queue.
func (q *FailoverPhotoJobs) FailOver() {
	if q.failedOver.CompareAndSwap(false, true) {
		log.Println("level=warn component=photo_upload msg=\"photo upload consumer lost; running uploads in-process\"")
	}
}

// FailOverWhenClosed fails over once closed is closed, unless ctx ends first.
func (q *FailoverPhotoJobs) FailOverWhenClosed(ctx context.Context, closed <-chan struct{}) {
	go func() {
		select {
		case <-closed:
			q.FailOver()
		case <-ctx.Done():
		}
	}()
}

// SpoolUpload writes an uploaded file into dir and returns a file photo source
// pointing at it.
func SpoolUpload(dir string, field domain.PhotoField, content io.Reader) (domain.PhotoSource, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return domain.PhotoSource{}, fmt.Errorf("failed to create upload dir: %w", err)
	}
	f, err := os.CreateTemp(dir, string(field)+"-*.upload")
	if err != nil {
		return domain.PhotoSource{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return domain.PhotoSource{}, fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return domain.PhotoSource{}, fmt.Errorf("failed to spool upload: %w", err)
	}
	path, err := filepath.Abs(f.Name())
	if err != nil {
		path = f.Name()
	}
	return domain.PhotoSource{Type: domain.PhotoSourceFile, Data: path}, nil
}
