package datalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"cipherlog/internal/domain"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint selects an S3-compatible service (MinIO, localstack) and
	// switches to path-style addressing.
	Endpoint string
	Prefix   string
}

// S3 stores every record as one object and every registry entry as another.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds an S3 client from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *S3) join(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// slotPrefix is the key prefix of every object in one publisher slot.
func (s *S3) slotPrefix(schema domain.SchemaID, publisher domain.Address) string {
	return s.join("log", schema.String(), publisher.Normalize().String()) + "/"
}

func (s *S3) recordKey(schema domain.SchemaID, publisher domain.Address, id domain.RecordID) string {
	return s.slotPrefix(schema, publisher) + id.String()
}

func (s *S3) registryKey(address domain.Address) string {
	return s.join("registry", address.Normalize().String())
}

// recordIDFromKey extracts the record id from an object key under prefix.
func recordIDFromKey(prefix, key string) (domain.RecordID, error) {
	name, ok := strings.CutPrefix(key, prefix)
	if !ok || strings.Contains(name, "/") {
		return domain.RecordID{}, fmt.Errorf("object %q is not in slot %q", key, prefix)
	}
	return domain.ParseRecordID(name)
}

func (s *S3) Publish(ctx context.Context, publisher domain.Address, records []domain.Record) (domain.Tx, error) {
	p, err := validatePublish(publisher, records)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.recordKey(r.SchemaID, p, r.ID)),
			Body:        bytes.NewReader(r.Data),
			ContentType: aws.String("application/cbor"),
		})
		if err != nil {
			return nil, fmt.Errorf("s3 publish %s: %w", r.ID, err)
		}
	}
	return newTx(), nil
}

func (s *S3) ReadAllByPublisher(ctx context.Context, schema domain.SchemaID, publisher domain.Address) ([]domain.Row, error) {
	prefix := s.slotPrefix(schema, publisher)
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var rows []domain.Row
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			id, err := recordIDFromKey(prefix, key)
			if err != nil {
				continue
			}
			data, err := s.get(ctx, key)
			if err != nil {
				return nil, err
			}
			rows = append(rows, domain.Row{
				ID:        id,
				SchemaID:  schema,
				Publisher: publisher.Normalize(),
				Data:      data,
			})
		}
	}
	return rows, nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3) Register(ctx context.Context, address domain.Address, publicKey domain.X25519Public) (domain.Tx, error) {
	a, err := domain.ParseAddress(address.String())
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.registryKey(a)),
		Body:        strings.NewReader(publicKey.Hex()),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 register: %w", err)
	}
	return newTx(), nil
}

func (s *S3) Fetch(ctx context.Context, address domain.Address) (domain.X25519Public, bool, error) {
	body, err := s.get(ctx, s.registryKey(address))
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return domain.X25519Public{}, false, nil
	}
	if err != nil {
		return domain.X25519Public{}, false, fmt.Errorf("s3 fetch: %w", err)
	}
	pub, err := domain.ParseX25519Public(strings.TrimSpace(string(body)))
	if err != nil {
		return domain.X25519Public{}, false, fmt.Errorf("s3 fetch %s: %w", address, err)
	}
	return pub, true, nil
}

func (s *S3) Close() error { return nil }

var _ domain.Backend = (*S3)(nil)
