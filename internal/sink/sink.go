// Package sink opens export destinations (local files and S3, GCS or Azure
// Blob objects) and writes Arrow IPC streams to them.
package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Scheme names a destination kind.
type Scheme string

const (
	SchemeFile  Scheme = "file"
	SchemeS3    Scheme = "s3"
	SchemeGCS   Scheme = "gs"
	SchemeAzure Scheme = "az"
)

// Credentials carries the cloud settings needed by remote destinations.
// Fields for schemes that are not used may be left empty.
type Credentials struct {
	S3Endpoint string // host[:port] without scheme; empty uses AWS
	S3Region   string
	S3KeyID    string
	S3Secret   string
	S3URLStyle string // "path" (default) or "vhost"

	GCSKeyFile string // service account JSON; empty uses default credentials

	AzureAccountName string
	AzureAccountKey  string
}

// Target is a parsed destination URI.
type Target struct {
	Scheme Scheme
	Bucket string // bucket or container, empty for files
	Key    string // object key, or the local path for files
}

func (t Target) String() string {
	if t.Scheme == SchemeFile {
		return t.Key
	}
	return fmt.Sprintf("%s://%s/%s", t.Scheme, t.Bucket, t.Key)
}

// ParseURI parses a destination. Bare paths and file:// URIs are local;
// s3://, gs:// and az:// URIs name an object. Azure also accepts
// abfss://container@account.dfs.core.windows.net/key and
// https://account.blob.core.windows.net/container/key.
func ParseURI(uri string) (Target, error) {
	if strings.TrimSpace(uri) == "" {
		return Target{}, fmt.Errorf("destination is required")
	}
	if !strings.Contains(uri, "://") {
		return Target{Scheme: SchemeFile, Key: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Target{}, fmt.Errorf("parse destination %q: %w", uri, err)
	}

	t := Target{Key: strings.TrimPrefix(u.Path, "/")}
	switch u.Scheme {
	case "file":
		return Target{Scheme: SchemeFile, Key: u.Path}, nil
	case "s3":
		t.Scheme, t.Bucket = SchemeS3, u.Host
	case "gs":
		t.Scheme, t.Bucket = SchemeGCS, u.Host
	case "az":
		t.Scheme, t.Bucket = SchemeAzure, u.Host
	case "abfss":
		if u.User == nil {
			return Target{}, fmt.Errorf("abfss destination %q missing container@account component", uri)
		}
		t.Scheme, t.Bucket = SchemeAzure, u.User.Username()
	case "https":
		if !strings.Contains(u.Host, ".blob.core.windows.net") {
			return Target{}, fmt.Errorf("unrecognized HTTPS host %q in %q", u.Host, uri)
		}
		parts := strings.SplitN(t.Key, "/", 2)
		t.Scheme, t.Bucket, t.Key = SchemeAzure, parts[0], ""
		if len(parts) > 1 {
			t.Key = parts[1]
		}
	default:
		return Target{}, fmt.Errorf("unsupported destination scheme %q in %q", u.Scheme, uri)
	}

	if t.Bucket == "" {
		return Target{}, fmt.Errorf("empty bucket in destination %q", uri)
	}
	if t.Key == "" || strings.HasSuffix(t.Key, "/") {
		return Target{}, fmt.Errorf("empty object key in destination %q", uri)
	}
	return t, nil
}

// Open parses uri and returns a writer for it. Remote objects are spooled
// to a temporary file or streamed by the SDK; the object exists only after
// Close returns nil.
func Open(ctx context.Context, uri string, creds Credentials) (io.WriteCloser, error) {
	t, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	switch t.Scheme {
	case SchemeS3:
		return openS3(ctx, t, creds)
	case SchemeGCS:
		return openGCS(ctx, t, creds)
	case SchemeAzure:
		return openAzure(ctx, t, creds)
	}
	return openFile(t.Key)
}

func openFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", path, err)
	}
	return f, nil
}

// spool buffers writes in a temporary file and hands it to upload on
// Close. The file is removed whatever upload returns.
type spool struct {
	f      *os.File
	upload func(f *os.File, size int64) error
	closed bool
}

func newSpool(upload func(f *os.File, size int64) error) (*spool, error) {
	f, err := os.CreateTemp("", "vectab-export-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	return &spool{f: f, upload: upload}, nil
}

func (s *spool) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *spool) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer func() {
		_ = s.f.Close()
		_ = os.Remove(s.f.Name())
	}()

	size, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("size spool file: %w", err)
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool file: %w", err)
	}
	return s.upload(s.f, size)
}
