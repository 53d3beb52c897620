package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Only shared-key authentication is supported.
func newAzureClient(creds Credentials) (*azblob.Client, error) {
	if creds.AzureAccountName == "" || creds.AzureAccountKey == "" {
		return nil, fmt.Errorf("Azure account name and key are required")
	}
	cred, err := azblob.NewSharedKeyCredential(creds.AzureAccountName, creds.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", creds.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return client, nil
}

func openAzure(ctx context.Context, t Target, creds Credentials) (io.WriteCloser, error) {
	client, err := newAzureClient(creds)
	if err != nil {
		return nil, err
	}
	return newSpool(func(f *os.File, _ int64) error {
		if _, err := client.UploadFile(ctx, t.Bucket, t.Key, f, nil); err != nil {
			return fmt.Errorf("upload blob %s: %w", t, err)
		}
		return nil
	})
}
