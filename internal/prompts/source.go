package prompts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("prompts: prompt not found")

// Source fetches the prompt text for an assistant.
type Source interface {
	Fetch(ctx context.Context, assistant string) (string, error)
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads assistants/<name>.md from a bucket.
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Source(client S3API, bucket string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: "assistants/"}
}

func (s *S3Source) Key(assistant string) string { return s.prefix + assistant + ".md" }

func (s *S3Source) Fetch(ctx context.Context, assistant string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(assistant)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.Key(assistant))
		}
		return "", fmt.Errorf("prompts: get s3://%s/%s: %w", s.bucket, s.Key(assistant), err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("prompts: read s3 body: %w", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return "", fmt.Errorf("%w: empty object %s", ErrNotFound, s.Key(assistant))
	}
	return string(b), nil
}

// Catalog is the YAML prompt file layout:
//
//	assistants:
//	  esther: |
//	    You are Esther...
type Catalog struct {
	Assistants map[string]string `yaml:"assistants"`
}

// FileSource serves prompts from a YAML catalog loaded once.
type FileSource struct {
	catalog Catalog
}

func LoadFileSource(path string) (*FileSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: read catalog: %w", err)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (*FileSource, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("prompts: parse catalog: %w", err)
	}
	return &FileSource{catalog: c}, nil
}

func (f *FileSource) Fetch(_ context.Context, assistant string) (string, error) {
	text, ok := f.catalog.Assistants[assistant]
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, assistant)
	}
	return text, nil
}
