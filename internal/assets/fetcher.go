package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sarida/backend/internal/config"
	"github.com/sarida/backend/internal/observability"
)

// ErrAssetUnavailable is returned when a file is missing locally and cannot
// be downloaded, either because no remote source is configured or because the
// download failed.
var ErrAssetUnavailable = errors.New("asset unavailable")

// Asset is an input file with its optional remote sources.
type Asset struct {
	Name      string
	LocalPath string
	URL       string
	Bucket    string
	Key       string
}

// ObjectGetter is the subset of the S3 client used for downloads.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher materialises missing input files from HTTP(S) or S3. It makes one
// attempt per call and never retries.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu        sync.Mutex
	s3        ObjectGetter
	newS3     func(ctx context.Context) (ObjectGetter, error)
	fetchLock sync.Mutex
}

// NewFetcher creates a fetcher using the AWS settings from cfg for S3 sources.
func NewFetcher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		metrics:    metrics,
		newS3: func(ctx context.Context) (ObjectGetter, error) {
			return newS3Client(ctx, cfg.AWSAccessKeyID, cfg.AWSSecretKey, cfg.AWSRegion)
		},
	}
}

// WithS3 replaces the S3 client, mainly for tests.
func (f *Fetcher) WithS3(client ObjectGetter) *Fetcher {
	f.mu.Lock()
	f.s3 = client
	f.mu.Unlock()
	return f
}

// Assets builds the dataset, reanalysis and probability assets from cfg.
func Assets(cfg *config.Config) (dataset, reanalysis, probability Asset) {
	dataset = Asset{Name: "dataset", LocalPath: cfg.DatasetPath, URL: cfg.DatasetURL, Bucket: cfg.S3Bucket, Key: cfg.DatasetKey}
	reanalysis = Asset{Name: "reanalysis", LocalPath: cfg.ReanalysisPath, URL: cfg.ReanalysisURL, Bucket: cfg.S3Bucket, Key: cfg.ReanalysisKey}
	probability = Asset{Name: "probability", LocalPath: cfg.ProbabilityPath, URL: cfg.ProbabilityURL, Bucket: cfg.S3Bucket, Key: cfg.ProbabilityKey}
	return dataset, reanalysis, probability
}

// Ensure makes sure a.LocalPath exists, downloading it from the configured
// URL, or else from S3. Without either source, or when the download fails, it
// returns ErrAssetUnavailable.
func (f *Fetcher) Ensure(ctx context.Context, a Asset) error {
	if _, err := os.Stat(a.LocalPath); err == nil {
		return nil
	}

	f.fetchLock.Lock()
	defer f.fetchLock.Unlock()
	if _, err := os.Stat(a.LocalPath); err == nil {
		return nil
	}

	switch {
	case a.URL != "":
		f.logger.Info("downloading asset", "asset", a.Name, "source", "http", "path", a.LocalPath)
		err := f.downloadHTTP(ctx, a)
		f.record("http", err)
		return unavailable(a, err)
	case a.Bucket != "" && a.Key != "":
		f.logger.Info("downloading asset", "asset", a.Name, "source", "s3", "bucket", a.Bucket, "key", a.Key)
		err := f.downloadS3(ctx, a)
		f.record("s3", err)
		return unavailable(a, err)
	default:
		return fmt.Errorf("assets: %s not found at %s and no URL or S3 source configured: %w",
			a.Name, a.LocalPath, ErrAssetUnavailable)
	}
}

// unavailable marks a failed download as ErrAssetUnavailable, keeping the cause.
func unavailable(a Asset, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("assets: %s: %w: %w", a.Name, ErrAssetUnavailable, err)
}

func (f *Fetcher) record(source string, err error) {
	if f.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	f.metrics.AssetFetches.WithLabelValues(source, outcome).Inc()
}

func (f *Fetcher) downloadHTTP(ctx context.Context, a Asset) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return fmt.Errorf("assets: failed to create request for %s: %w", a.Name, err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("assets: failed to download %s: %w", a.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("assets: download %s returned status %d", a.Name, resp.StatusCode)
	}
	return writeAtomic(a.LocalPath, resp.Body)
}

func (f *Fetcher) downloadS3(ctx context.Context, a Asset) error {
	client, err := f.s3Client(ctx)
	if err != nil {
		return err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(a.Key),
	})
	if err != nil {
		return fmt.Errorf("assets: failed to get s3://%s/%s: %w", a.Bucket, a.Key, err)
	}
	defer out.Body.Close()
	return writeAtomic(a.LocalPath, out.Body)
}

func (f *Fetcher) s3Client(ctx context.Context) (ObjectGetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s3 != nil {
		return f.s3, nil
	}
	client, err := f.newS3(ctx)
	if err != nil {
		return nil, err
	}
	f.s3 = client
	return client, nil
}

func newS3Client(ctx context.Context, accessKey, secretKey, region string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("assets: failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// writeAtomic copies r into path through a temporary file in the same directory.
func writeAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("assets: failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".part-*")
	if err != nil {
		return fmt.Errorf("assets: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("assets: failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("assets: failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("assets: failed to move %s into place: %w", path, err)
	}
	return nil
}
