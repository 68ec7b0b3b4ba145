package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source is the interface for reading a dataset payload from some
// location.
type Source interface {
	// Read returns a reader for the payload.
	Read(ctx context.Context) (io.ReadCloser, error)
}

// S3Config locates an object in S3 or an S3-compatible store.
type S3Config struct {
	Bucket          string
	Key             string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// SourceConfig selects exactly one dataset location.
type SourceConfig struct {
	Path       string
	URL        string
	URLHeaders map[string]string
	S3         *S3Config
	Inline     []byte
}

// NewSource creates a Source from the config. Exactly one location
// must be set; Path wins over the others.
func NewSource(cfg SourceConfig) (Source, error) {
	switch {
	case cfg.Path != "":
		return NewLocalFileSource(cfg.Path), nil
	case cfg.S3 != nil:
		return NewS3Source(cfg.S3), nil
	case cfg.URL != "":
		return NewURLSource(cfg.URL, cfg.URLHeaders), nil
	case cfg.Inline != nil:
		return NewInlineSource(cfg.Inline), nil
	default:
		return nil, fmt.Errorf("no dataset source specified")
	}
}

// LocalFileSource reads the payload from the local filesystem.
type LocalFileSource struct {
	path string
}

// NewLocalFileSource creates a new local file source.
func NewLocalFileSource(path string) *LocalFileSource {
	return &LocalFileSource{path: path}
}

// Read opens the file and returns a reader.
func (l *LocalFileSource) Read(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(l.path)
}

// InlineSource provides the payload directly from memory.
type InlineSource struct {
	data []byte
}

// NewInlineSource creates a new inline source.
func NewInlineSource(data []byte) *InlineSource {
	return &InlineSource{data: data}
}

// Read returns a reader for the inline data.
func (i *InlineSource) Read(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(i.data)), nil
}

// URLSource reads the payload from an HTTP(S) URL.
type URLSource struct {
	url     string
	headers map[string]string
}

// NewURLSource creates a new URL source.
func NewURLSource(url string, headers map[string]string) *URLSource {
	return &URLSource{
		url:     url,
		headers: headers,
	}
}

// Read fetches the URL and returns the response body.
func (u *URLSource) Read(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range u.headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// S3Source reads the payload from Amazon S3 or an S3-compatible store.
type S3Source struct {
	cfg *S3Config
}

// NewS3Source creates a new S3 source.
func NewS3Source(cfg *S3Config) *S3Source {
	return &S3Source{cfg: cfg}
}

// Read fetches the object from S3 and returns its body.
func (s *S3Source) Read(ctx context.Context) (io.ReadCloser, error) {
	client, err := s.createClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}

	return result.Body, nil
}

func (s *S3Source) createClient(ctx context.Context) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
			o.UsePathStyle = true // Required for most S3-compatible stores
		})
	}

	return s3.NewFromConfig(cfg, s3Opts...), nil
}

// Load reads the payload from src and parses it in the given format.
func Load(ctx context.Context, src Source, format Format) ([]ConversationRecord, error) {
	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	r, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	defer r.Close()

	return parser.Parse(r)
}
