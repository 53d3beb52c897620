package sink

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// gcsWriter closes the object writer, then the client that owns it.
type gcsWriter struct {
	*storage.Writer
	client *storage.Client
	target Target
}

func (w *gcsWriter) Close() error {
	err := w.Writer.Close()
	if cerr := w.client.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write object %s: %w", w.target, err)
	}
	return nil
}

func openGCS(ctx context.Context, t Target, creds Credentials) (io.WriteCloser, error) {
	var opts []option.ClientOption
	if creds.GCSKeyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, creds.GCSKeyFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	w := client.Bucket(t.Bucket).Object(t.Key).NewWriter(ctx)
	w.ContentType = ContentType
	return &gcsWriter{Writer: w, client: client, target: t}, nil
}
