package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"visiond/pkg/types"
)

// DefaultPresignExpiry bounds the lifetime of presigned download URLs.
const DefaultPresignExpiry = 120 * time.Second

// Presigner is the subset of s3.PresignClient used here.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Source lists {bucket}/{key}/*.zip and hands out presigned GET URLs.
type S3Source struct {
	lister  s3.ListObjectsV2APIClient
	presign Presigner
	bucket  string
	keys    []string
	expiry  time.Duration
	log     zerolog.Logger
}

// NewS3Source builds a source on top of a configured client.
func NewS3Source(client *s3.Client, bucket string, keys []string, log zerolog.Logger) (*S3Source, error) {
	return NewS3SourceWith(client, s3.NewPresignClient(client), bucket, keys, log)
}

// NewS3SourceWith accepts the listing and presigning halves separately.
func NewS3SourceWith(lister s3.ListObjectsV2APIClient, presign Presigner, bucket string, keys []string, log zerolog.Logger) (*S3Source, error) {
	if bucket == "" {
		return nil, fmt.Errorf("registry s3 bucket is not set")
	}
	return &S3Source{
		lister:  lister,
		presign: presign,
		bucket:  bucket,
		keys:    keysOrDefault(keys),
		expiry:  DefaultPresignExpiry,
		log:     log.With().Str("component", "registry").Logger(),
	}, nil
}

func (s *S3Source) Resolve(ctx context.Context) (map[string]types.RemoteModelInfo, error) {
	out := make(map[string]types.RemoteModelInfo, len(s.keys))
	for _, key := range s.keys {
		objKey, etag, err := s.latest(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", key, err)
		}
		if objKey == "" {
			continue
		}
		req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
		}, s3.WithPresignExpires(s.expiry))
		if err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("presign archive")
			continue
		}
		out[key] = types.RemoteModelInfo{
			DownloadURL: req.URL,
			ModelName:   modelName(objKey),
			ETag:        etag,
		}
	}
	return out, nil
}

// latest returns the most recently modified .zip under key/.
func (s *S3Source) latest(ctx context.Context, key string) (string, string, error) {
	p := s3.NewListObjectsV2Paginator(s.lister, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key + "/"),
	})
	var (
		bestKey, bestETag string
		bestTime          time.Time
	)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", "", err
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if !strings.HasSuffix(k, ".zip") {
				continue
			}
			mod := aws.ToTime(obj.LastModified)
			if bestKey == "" || mod.After(bestTime) {
				bestKey, bestTime = k, mod
				bestETag = strings.Trim(aws.ToString(obj.ETag), `"`)
			}
		}
	}
	return bestKey, bestETag, nil
}

// modelName is the path segment after the model key.
func modelName(objKey string) string {
	parts := strings.SplitN(objKey, "/", 3)
	if len(parts) < 2 {
		return objKey
	}
	return parts[1]
}
