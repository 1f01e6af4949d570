package reportstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/agentgov/governance-core/pkg/report"
)

// S3ArchiverConfig configures an S3Archiver, grounded on
// pkg/artifacts.S3StoreConfig.
type S3ArchiverConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string
}

// S3Archiver copies superseded report JSON to an S3-compatible bucket
// before a report is evicted from the live store, per spec.md §4.K
// DOMAIN STACK: archiveOlderThan archives to S3 then marks the live
// record archived.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver creates an S3-backed archiver.
func NewS3Archiver(ctx context.Context, cfg S3ArchiverConfig) (*S3Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("reportstore: load aws config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (a *S3Archiver) key(tenantID, reportID string, version int) string {
	return fmt.Sprintf("%s%s/%s/v%d.json", a.prefix, tenantID, reportID, version)
}

// Archive uploads r as JSON to S3 under a tenant/report/version
// key, idempotently (a HeadObject check skips re-upload).
func (a *S3Archiver) Archive(ctx context.Context, tenantID string, r report.Report, version int) error {
	key := a.key(tenantID, r.ID, version)

	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err == nil {
		return nil // already archived
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("reportstore: marshal report for archive: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("reportstore: s3 put: %w", err)
	}
	return nil
}

// Fetch retrieves a previously archived report by tenant/report/version.
func (a *S3Archiver) Fetch(ctx context.Context, tenantID, reportID string, version int) (report.Report, error) {
	key := a.key(tenantID, reportID, version)
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return report.Report{}, fmt.Errorf("reportstore: s3 get: %w", err)
	}
	defer result.Body.Close()

	var r report.Report
	if err := json.NewDecoder(result.Body).Decode(&r); err != nil {
		return report.Report{}, fmt.Errorf("reportstore: decode archived report: %w", err)
	}
	return r, nil
}

// ArchivingStore decorates a Store so ArchiveOlderThan copies each
// affected report to S3 before marking it archived in the live store.
type ArchivingStore struct {
	Store
	archiver *S3Archiver
}

// NewArchivingStore wraps store with S3 archival.
func NewArchivingStore(store Store, archiver *S3Archiver) *ArchivingStore {
	return &ArchivingStore{Store: store, archiver: archiver}
}

func (s *ArchivingStore) ArchiveOlderThan(ctx context.Context, tenantID string, cutoff time.Time, excludeStatuses []report.ReportStatus) (int, error) {
	candidates, err := s.Store.List(ctx, tenantID, ListOptions{CreatedBefore: &cutoff, Limit: maxListLimit})
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, meta := range candidates {
		if statusIn(meta.Status, excludeStatuses) {
			continue
		}
		r, err := s.Store.Get(ctx, tenantID, meta.ID)
		if err != nil {
			continue
		}
		if err := s.archiver.Archive(ctx, tenantID, r, meta.CurrentVersion); err != nil {
			return archived, fmt.Errorf("reportstore: archive %s to s3: %w", meta.ID, err)
		}
		archived++
	}

	if _, err := s.Store.ArchiveOlderThan(ctx, tenantID, cutoff, excludeStatuses); err != nil {
		return archived, err
	}
	return archived, nil
}

var _ Store = (*ArchivingStore)(nil)
