package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutClient struct {
	key         string
	contentType string
	body        string
	err         error
}

func (f *fakePutClient) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = aws.ToString(params.Key)
	f.contentType = aws.ToString(params.ContentType)
	raw, _ := io.ReadAll(params.Body)
	f.body = string(raw)
	return &s3.PutObjectOutput{}, nil
}

func staticAWSConfig() aws.Config {
	return aws.Config{
		Region: "us-east-1",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
		}),
	}
}

func testBlobConfig() *BlobConfig {
	cfg := DefaultBlobConfig()
	cfg.Bucket = "field-exports"
	return cfg
}

func TestObjectStorePutObject(t *testing.T) {
	client := &fakePutClient{}
	store := NewS3ObjectStore(client, nil, testBlobConfig())

	err := store.PutObject(context.Background(), "tenants/acme/exports/f1/j1.csv", "text/csv", strings.NewReader("a,b\n"), 4)
	require.NoError(t, err)
	assert.Equal(t, "tenants/acme/exports/f1/j1.csv", client.key)
	assert.Equal(t, "text/csv", client.contentType)
	assert.Equal(t, "a,b\n", client.body)

	client.err = errors.New("access denied")
	err = store.PutObject(context.Background(), "k", "text/csv", strings.NewReader(""), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put object k")
}

func TestObjectStoreAgainstS3Endpoint(t *testing.T) {
	var mu sync.Mutex
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotMethod, gotPath = r.Method, r.URL.Path
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newS3Client(staticAWSConfig(), srv.URL)
	store := NewS3ObjectStore(client, s3.NewPresignClient(client), testBlobConfig())
	store.now = func() time.Time { return time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC) }

	body := "ResponseID,UserName\n"
	require.NoError(t, store.PutObject(context.Background(), "tenants/acme/exports/f1/j1.csv", "text/csv", strings.NewReader(body), int64(len(body))))

	mu.Lock()
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/field-exports/tenants/acme/exports/f1/j1.csv", gotPath)
	mu.Unlock()

	link, expiresAt, err := store.PresignDownload(context.Background(), "tenants/acme/exports/f1/j1.csv", "form-f1.csv")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 13, 14, 15, 0, 0, time.UTC), expiresAt)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/field-exports/tenants/acme/exports/f1/j1.csv", u.Path)
	assert.Contains(t, u.Query().Get("response-content-disposition"), `filename="form-f1.csv"`)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
