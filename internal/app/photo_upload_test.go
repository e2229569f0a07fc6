package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
	"github.com/onegen/bank-api/pkg/storageclient"
	"github.com/stretchr/testify/require"
)

type storageStub struct {
	mu       sync.Mutex
	failures int
	calls    int
	uploaded map[string][]byte
}

func (s *storageStub) Upload(ctx context.Context, filename string, content io.Reader) (*storageclient.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("storage unavailable")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	if s.uploaded == nil {
		s.uploaded = map[string][]byte{}
	}
	s.uploaded[filename] = data
	return &storageclient.UploadResult{PublicID: "pub/" + filename, URL: "https://cdn.example.com/" + filename}, nil
}

func newWorkerFixture(t *testing.T, storage *storageStub, maxRetries int) (*PhotoUploadWorker, *memoryRepo, *domain.Profile, *[]time.Duration) {
	t.Helper()
	repo := newMemoryRepo()
	profile, err := repo.CreateProfile(context.Background(), uuid.New())
	require.NoError(t, err)

	worker := NewPhotoUploadWorker(repo, storage, maxRetries, time.Minute)
	var slept []time.Duration
	worker.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return worker, repo, profile, &slept
}

func spool(t *testing.T, dir string, field domain.PhotoField, content string) domain.PhotoSource {
	t.Helper()
	src, err := SpoolUpload(dir, field, strings.NewReader(content))
	require.NoError(t, err)
	return src
}

func TestPhotoUploadWorker_StoresPhotosAndRemovesTempFiles(t *testing.T) {
	storage := &storageStub{}
	worker, repo, profile, _ := newWorkerFixture(t, storage, 3)
	dir := t.TempDir()

	var uploadedFor uuid.UUID
	worker.OnUploaded(func(ctx context.Context, profileID uuid.UUID) { uploadedFor = profileID })

	fileSrc := spool(t, dir, domain.PhotoFieldIDPhoto, "id-bytes")
	job := domain.PhotoUploadJob{
		ProfileID: profile.ID,
		Photos: map[domain.PhotoField]domain.PhotoSource{
			domain.PhotoFieldPhoto:   {Type: domain.PhotoSourceBase64, Data: "aGVsbG8="},
			domain.PhotoFieldIDPhoto: fileSrc,
		},
	}

	require.NoError(t, worker.Process(context.Background(), job))
	require.Equal(t, profile.ID, uploadedFor)

	got, err := repo.FindProfileByID(context.Background(), profile.ID)
	require.NoError(t, err)
	require.Equal(t, "pub/"+profile.ID.String()+"_photo", got.Photo)
	require.Equal(t, "https://cdn.example.com/"+profile.ID.String()+"_id_photo", got.IDPhotoURL)
	require.Empty(t, got.SignaturePhoto)
	require.Equal(t, []byte("hello"), storage.uploaded[profile.ID.String()+"_photo"])
	require.Equal(t, []byte("id-bytes"), storage.uploaded[profile.ID.String()+"_id_photo"])

	_, err = os.Stat(fileSrc.Data)
	require.True(t, errors.Is(err, os.ErrNotExist), "spooled file should be removed")
}

func TestPhotoUploadWorker_RetriesWithFixedDelay(t *testing.T) {
	storage := &storageStub{failures: 2}
	worker, repo, profile, slept := newWorkerFixture(t, storage, 3)

	job := domain.PhotoUploadJob{
		ProfileID: profile.ID,
		Photos: map[domain.PhotoField]domain.PhotoSource{
			domain.PhotoFieldSignaturePhoto: {Type: domain.PhotoSourceBase64, Data: "c2lnbg=="},
		},
	}
	require.NoError(t, worker.Process(context.Background(), job))
	require.Equal(t, []time.Duration{time.Minute, time.Minute}, *slept)

	got, _ := repo.FindProfileByID(context.Background(), profile.ID)
	require.NotEmpty(t, got.SignaturePhoto)
}

func TestPhotoUploadWorker_SucceedsOnLastRetry(t *testing.T) {
	storage := &storageStub{failures: 3}
	worker, repo, profile, slept := newWorkerFixture(t, storage, 3)
	dir := t.TempDir()
	src := spool(t, dir, domain.PhotoFieldPhoto, "face")

	err := worker.Process(context.Background(), domain.PhotoUploadJob{
		ProfileID: profile.ID,
		Photos:    map[domain.PhotoField]domain.PhotoSource{domain.PhotoFieldPhoto: src},
	})
	require.NoError(t, err)
	require.Equal(t, 4, storage.calls)
	require.Equal(t, []time.Duration{time.Minute, time.Minute, time.Minute}, *slept)

	got, _ := repo.FindProfileByID(context.Background(), profile.ID)
	require.NotEmpty(t, got.Photo)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPhotoUploadWorker_GivesUpAndCleansUp(t *testing.T) {
	storage := &storageStub{failures: 10}
	worker, repo, profile, slept := newWorkerFixture(t, storage, 3)
	dir := t.TempDir()
	src := spool(t, dir, domain.PhotoFieldPhoto, "face")

	called := false
	worker.OnUploaded(func(ctx context.Context, profileID uuid.UUID) { called = true })

	err := worker.Process(context.Background(), domain.PhotoUploadJob{
		ProfileID: profile.ID,
		Photos:    map[domain.PhotoField]domain.PhotoSource{domain.PhotoFieldPhoto: src},
	})
	require.Error(t, err)
	require.False(t, called)
	require.Equal(t, 4, storage.calls)
	require.Len(t, *slept, 3)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	got, _ := repo.FindProfileByID(context.Background(), profile.ID)
	require.Empty(t, got.Photo)
}

func TestPhotoUploadWorker_UnknownProfileStopsEarly(t *testing.T) {
	storage := &storageStub{}
	worker, _, _, slept := newWorkerFixture(t, storage, 3)

	err := worker.Process(context.Background(), domain.PhotoUploadJob{
		ProfileID: uuid.New(),
		Photos:    map[domain.PhotoField]domain.PhotoSource{domain.PhotoFieldPhoto: {Type: domain.PhotoSourceBase64, Data: "eA=="}},
	})
	require.Error(t, err)
	require.Zero(t, storage.calls)
	require.Empty(t, *slept)
}

func TestPhotoUploadWorker_HandleMessageAlwaysAcks(t *testing.T) {
	worker, _, profile, _ := newWorkerFixture(t, &storageStub{}, 0)

	require.True(t, worker.HandleMessage(context.Background(), []byte("{not json")))

	body := []byte(`{"profile_id":"` + profile.ID.String() + `","photos":{"photo":{"type":"base64","data":"eA=="}}}`)
	require.True(t, worker.HandleMessage(context.Background(), body))
}

func TestSpoolUpload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	src, err := SpoolUpload(dir, domain.PhotoFieldSignaturePhoto, bytes.NewReader([]byte("ink")))
	require.NoError(t, err)
	require.Equal(t, domain.PhotoSourceFile, src.Type)
	require.True(t, filepath.IsAbs(src.Data))
	require.True(t, strings.HasPrefix(filepath.Base(src.Data), "signature_photo-"))

	data, err := os.ReadFile(src.Data)
	require.NoError(t, err)
	require.Equal(t, "ink", string(data))
}

type publishRecorder struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (p *publishRecorder) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.exchange, p.routingKey, p.body = exchange, routingKey, body
	return nil
}

func (p *publishRecorder) Close() {}

func TestQueuedPhotoJobsPublishesToProfileExchange(t *testing.T) {
	rec := &publishRecorder{}
	job := domain.PhotoUploadJob{ProfileID: uuid.New()}

	require.NoError(t, NewQueuedPhotoJobs(rec).Enqueue(context.Background(), job))
	require.Equal(t, domain.ProfileExchange, rec.exchange)
	require.Equal(t, domain.PhotoUploadRoutingKey, rec.routingKey)
	require.Equal(t, job, rec.body)
}

func TestQueueMailerPublishesEmailCommand(t *testing.T) {
	rec := &publishRecorder{}
	mailer := NewQueueMailer(rec, "OneGen Bank")

	require.NoError(t, mailer.Send(context.Background(), " a@example.com ", domain.TemplateLoginOTP, map[string]any{"otp": "123456"}))
	require.Equal(t, domain.NotificationExchange, rec.exchange)
	require.Equal(t, "email.login_otp", rec.routingKey)

	cmd, ok := rec.body.(domain.EmailCommand)
	require.True(t, ok)
	require.Equal(t, "a@example.com", cmd.To)
	require.Equal(t, "123456", cmd.Context["otp"])
	require.Equal(t, "OneGen Bank", cmd.Context["site_name"])
}

func TestFailoverPhotoJobsSwitchesWhenConsumerCloses(t *testing.T) {
	primary := &recordingPhotoQueue{}
	fallback := &recordingPhotoQueue{}
	jobs := NewFailoverPhotoJobs(primary, fallback)

	closed := make(chan struct{})
	jobs.FailOverWhenClosed(context.Background(), closed)

	first := domain.PhotoUploadJob{ProfileID: uuid.New()}
	require.NoError(t, jobs.Enqueue(context.Background(), first))

	close(closed)
	require.Eventually(t, jobs.failedOver.Load, time.Second, 5*time.Millisecond)

	second := domain.PhotoUploadJob{ProfileID: uuid.New()}
	require.NoError(t, jobs.Enqueue(context.Background(), second))

	require.Equal(t, []domain.PhotoUploadJob{first}, primary.jobs)
	require.Equal(t, []domain.PhotoUploadJob{second}, fallback.jobs)
}

func TestFailoverPhotoJobsIgnoresClosureAfterShutdown(t *testing.T) {
	primary := &recordingPhotoQueue{}
	jobs := NewFailoverPhotoJobs(primary, &recordingPhotoQueue{})

	ctx, cancel := context.WithCancel(context.Background())
	closed := make(chan struct{})
	jobs.FailOverWhenClosed(ctx, closed)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(closed)
	time.Sleep(20 * time.Millisecond)

	require.False(t, jobs.failedOver.Load())
	require.NoError(t, jobs.Enqueue(context.Background(), domain.PhotoUploadJob{ProfileID: uuid.New()}))
	require.Len(t, primary.jobs, 1)
}
