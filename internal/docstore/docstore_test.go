package docstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "docs", "uploads/missing.txt")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "docs", "uploads/b.txt", []byte("second"), ContentTypeText))
	require.NoError(t, s.Put(ctx, "docs", "uploads/a.txt", []byte("first"), ContentTypeText))
	require.NoError(t, s.Put(ctx, "docs", "summaries/a_summary.json", []byte("{}"), ContentTypeJSON))
	require.NoError(t, s.Put(ctx, "other", "uploads/c.txt", []byte("elsewhere"), ContentTypeText))

	body, err := s.Get(ctx, "docs", "uploads/a.txt")
	require.NoError(t, err)
	require.Equal(t, "first", string(body))

	keys, err := s.List(ctx, "docs", "uploads/")
	require.NoError(t, err)
	require.Equal(t, []string{"uploads/a.txt", "uploads/b.txt"}, keys)

	require.NoError(t, s.Put(ctx, "docs", "uploads/a.txt", []byte("replaced"), ContentTypeText))
	body, err = s.Get(ctx, "docs", "uploads/a.txt")
	require.NoError(t, err)
	require.Equal(t, "replaced", string(body))

	keys, err = s.List(ctx, "empty", "uploads/")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestMemStore(t *testing.T) {
	m := NewMemStore()
	exerciseStore(t, m)

	require.Equal(t, 2, m.PutCount("docs", "uploads/a.txt"))
	obj, ok := m.Object("docs", "summaries/a_summary.json")
	require.True(t, ok)
	require.Equal(t, ContentTypeJSON, obj.ContentType)

	m.Seed("docs", "uploads/seeded.txt", []byte("x"))
	require.Equal(t, 0, m.PutCount("docs", "uploads/seeded.txt"))
}

func TestMemStoreCopiesBodies(t *testing.T) {
	m := NewMemStore()
	body := []byte("original")
	require.NoError(t, m.Put(context.Background(), "b", "k.txt", body, ContentTypeText))
	body[0] = 'X'

	got, err := m.Get(context.Background(), "b", "k.txt")
	require.NoError(t, err)
	require.Equal(t, "original", string(got))
}

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	exerciseStore(t, NewDirStore(root))

	_, err := os.Stat(filepath.Join(root, "docs", "uploads", "a.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "docs", "uploads", "a.txt.tmp"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDirStoreRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	d := NewDirStore(t.TempDir())
	require.NoError(t, d.Put(ctx, "other", "secret.txt", []byte("s"), ContentTypeText))

	err := d.Put(ctx, "docs", "../../etc/passwd", []byte("x"), ContentTypeText)
	require.ErrorContains(t, err, "escapes")

	_, err = d.Get(ctx, "docs", "../other/secret.txt")
	require.ErrorContains(t, err, "escapes bucket")

	_, err = d.Get(ctx, "..", "secret.txt")
	require.ErrorContains(t, err, "escapes store root")

	_, err = d.List(ctx, "", "")
	require.ErrorContains(t, err, "escapes store root")

	keys, err := d.List(ctx, "other", "")
	require.NoError(t, err)
	require.Equal(t, []string{"secret.txt"}, keys)
}

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	pages   int
	getErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	body, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

// ListObjectsV2 returns one key per page to exercise pagination.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.pages++
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == aws.ToString(in.ContinuationToken) {
				start = i
			}
		}
	}
	out := &s3.ListObjectsV2Output{}
	if start < len(keys) {
		out.Contents = []s3types.Object{{Key: aws.String(keys[start])}}
	}
	if start+1 < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[start+1])
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{
		"uploads/doc1.txt": []byte("one"),
		"uploads/doc2.pdf": []byte("two"),
		"uploads/doc3.txt": []byte("three"),
		"summaries/x.json": []byte("{}"),
	}}
	s := NewS3Store(api)
	ctx := context.Background()

	body, err := s.Get(ctx, "docs", "uploads/doc1.txt")
	require.NoError(t, err)
	require.Equal(t, "one", string(body))

	_, err = s.Get(ctx, "docs", "uploads/missing.txt")
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(ctx, "docs", "uploads/")
	require.NoError(t, err)
	require.Equal(t, []string{"uploads/doc1.txt", "uploads/doc2.pdf", "uploads/doc3.txt"}, keys)
	require.Equal(t, 3, api.pages)

	require.NoError(t, s.Put(ctx, "docs", "summaries/doc1_summary.json", []byte(`{"a":1}`), ContentTypeJSON))
	require.Len(t, api.puts, 1)
	require.Equal(t, ContentTypeJSON, aws.ToString(api.puts[0].ContentType))
	require.Equal(t, projectTag, aws.ToString(api.puts[0].Tagging))
}

func TestS3StoreErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{"no such key", &s3types.NoSuchKey{}, true},
		{"not found", &s3types.NotFound{}, true},
		{"no such bucket code", &smithy.GenericAPIError{Code: "NoSuchBucket"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"network", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3Store(&fakeS3{getErr: tt.err}).Get(context.Background(), "b", "k")
			require.Error(t, err)
			require.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))
		})
	}
}
