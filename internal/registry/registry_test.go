package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"lukechampine.com/blake3"
)

func writeArchive(t *testing.T, dir, key, name, body string, mod time.Time) string {
	t.Helper()
	p := filepath.Join(dir, key, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(p, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return p
}

func TestDirSource_PicksLatestZip(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1_700_000_000, 0)
	writeArchive(t, dir, "depth", "v1.zip", "old", base)
	writeArchive(t, dir, "depth", "v2.zip", "new", base.Add(time.Hour))
	writeArchive(t, dir, "depth", "notes.txt", "x", base.Add(2*time.Hour))
	writeArchive(t, dir, "tts", "a.zip", "tts", base)

	src, err := NewDirSource(dir, "http://localhost:8080/", []string{"depth", "tts", "vocoder"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := src.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected depth and tts, got %v", got)
	}
	if _, ok := got["vocoder"]; ok {
		t.Fatalf("vocoder has no archive and must be absent")
	}
	d := got["depth"]
	if d.ModelName != "v2.zip" || d.DownloadURL != "http://localhost:8080/registry/archives/depth/v2.zip" {
		t.Fatalf("depth: %+v", d)
	}
	sum := blake3.Sum256([]byte("new"))
	if d.ETag != hex.EncodeToString(sum[:]) {
		t.Fatalf("etag: %s", d.ETag)
	}
}

func TestDirSource_ETagFollowsContent(t *testing.T) {
	dir := t.TempDir()
	mod := time.Unix(1_700_000_000, 0)
	p := writeArchive(t, dir, "depth", "m.zip", "one", mod)
	src, _ := NewDirSource(dir, "", []string{"depth"}, zerolog.Nop())
	first, _ := src.Resolve(context.Background())
	again, _ := src.Resolve(context.Background())
	if first["depth"].ETag != again["depth"].ETag {
		t.Fatalf("etag should be stable")
	}
	if err := os.WriteFile(p, []byte("two!"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = os.Chtimes(p, mod.Add(time.Minute), mod.Add(time.Minute))
	changed, _ := src.Resolve(context.Background())
	if changed["depth"].ETag == first["depth"].ETag {
		t.Fatalf("etag should change with content")
	}
}

func TestDirSource_ArchivePath(t *testing.T) {
	dir := t.TempDir()
	src, _ := NewDirSource(dir, "", nil, zerolog.Nop())
	p, err := src.ArchivePath("depth", "m.zip")
	if err != nil || p != filepath.Join(src.root, "depth", "m.zip") {
		t.Fatalf("got %q err=%v", p, err)
	}
	for _, tc := range [][2]string{{"chat", "m.zip"}, {"depth", "m.txt"}, {"depth", "../x.zip"}, {"depth", `a\b.zip`}} {
		if _, err := src.ArchivePath(tc[0], tc[1]); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%v: expected not exist, got %v", tc, err)
		}
	}
}

type fakeLister struct {
	objects []s3types.Object
	prefix  []string
}

func (f *fakeLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.prefix = append(f.prefix, aws.ToString(in.Prefix))
	var out []s3types.Object
	for _, o := range f.objects {
		if strings.HasPrefix(aws.ToString(o.Key), aws.ToString(in.Prefix)) {
			out = append(out, o)
		}
	}
	return &s3.ListObjectsV2Output{Contents: out, IsTruncated: aws.Bool(false)}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc"}, nil
}

func object(key, etag string, mod time.Time) s3types.Object {
	return s3types.Object{Key: aws.String(key), ETag: aws.String(etag), LastModified: aws.Time(mod)}
}

func TestS3Source_LatestZipWithPresignedURL(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	lister := &fakeLister{objects: []s3types.Object{
		object("depth/v1.zip", `"aaa"`, base),
		object("depth/v2.zip", `"bbb"`, base.Add(time.Hour)),
		object("depth/readme.md", `"ccc"`, base.Add(2*time.Hour)),
		object("object-detection/yolo.zip", `"ddd"`, base),
	}}
	pre := &fakePresigner{}
	src, err := NewS3SourceWith(lister, pre, "models", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := src.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two keys, got %v", got)
	}
	d := got["depth"]
	if d.ETag != "bbb" || d.ModelName != "v2.zip" || !strings.HasPrefix(d.DownloadURL, "https://bucket.example/depth/v2.zip") {
		t.Fatalf("depth: %+v", d)
	}
	if got["object-detection"].ETag != "ddd" {
		t.Fatalf("detection: %+v", got["object-detection"])
	}
	if pre.expires != DefaultPresignExpiry {
		t.Fatalf("expiry: %s", pre.expires)
	}
	if len(lister.prefix) != len(DefaultKeys) || lister.prefix[0] != "depth/" {
		t.Fatalf("prefixes: %v", lister.prefix)
	}
}

func TestNewS3SourceWith_RequiresBucket(t *testing.T) {
	if _, err := NewS3SourceWith(&fakeLister{}, &fakePresigner{}, "", nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}
