package modelcache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// fakeS3 is an in-memory bucket that pages ListObjectsV2 two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Store_CacheRoundTrip(t *testing.T) {
	ctx := testCtx(t)
	fake := newFakeS3()
	st, err := NewS3Store(fake, S3Config{Bucket: "models", Prefix: "/cache/"})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	c := NewCache(st, zerolog.Nop())
	for _, k := range []string{"depth", "tts", "vocoder"} {
		putValidModel(t, c, k, "e")
	}
	if _, ok := fake.objects["cache/models/depth/manifest.json"]; !ok {
		t.Fatalf("expected prefixed key, have %v", fake.objects)
	}
	if ct := fake.types["cache/models/depth/config.json"]; !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type: %q", ct)
	}
	if NewValidator(c).Status(ctx, "depth") != StatusValid {
		t.Fatalf("expected valid model on s3")
	}
	if _, err := st.Get(ctx, "/models/none/manifest.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	paths, err := st.List(ctx, Root)
	if err != nil || len(paths) != 6 {
		t.Fatalf("paged list: %v %v", paths, err)
	}
	if err := c.DeleteModel(ctx, "tts"); err != nil {
		t.Fatalf("DeleteModel: %v", err)
	}
	if err := c.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Fatalf("expected empty bucket, have %v", fake.objects)
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(newFakeS3(), S3Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestS3Store_PutFileFromStreamsBody(t *testing.T) {
	ctx := testCtx(t)
	fake := newFakeS3()
	st, err := NewS3Store(fake, S3Config{Bucket: "models"})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	c := NewCache(st, zerolog.Nop())
	body := []byte(`{"id2label":{"0":"cat"}}`)
	if err := c.PutFileFrom(ctx, "detection", "config.json", bytes.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("PutFileFrom: %v", err)
	}
	got := fake.objects["models/detection/config.json"]
	if !bytes.Equal(got, body) {
		t.Fatalf("body after sniffing: %q", got)
	}
	if ct := fake.types["models/detection/config.json"]; !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type: %q", ct)
	}
}
