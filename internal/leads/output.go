package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// WriteJSONLines writes one lead per line.
func WriteJSONLines(w io.Writer, leads []Lead) error {
	enc := json.NewEncoder(w)
	for _, l := range leads {
		if err := enc.Encode(l); err != nil {
			return fmt.Errorf("leads: encode lead: %w", err)
		}
	}
	return nil
}

func WriteSummary(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("leads: encode summary: %w", err)
	}
	return nil
}

// S3API is the subset of the S3 client used for exports.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SplitS3URI splits "s3://bucket/key" into its parts.
func SplitS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, key, bucket != "" && key != ""
}

// ReadS3 fetches an export object.
func ReadS3(ctx context.Context, api S3API, bucket, key string) ([]byte, error) {
	out, err := api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("leads: get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("leads: read s3://%s/%s: %w", bucket, key, err)
	}
	return b, nil
}

// Keys returns the object keys a run stamped ts is published under.
func Keys(ts string) (leadsKey, summaryKey string) {
	return "processed/" + ts + "/leads.json", "summary/" + ts + "/processing_summary.json"
}

// PublishS3 uploads the leads as JSON lines and the summary under keys stamped with the
// summary's timestamp.
func PublishS3(ctx context.Context, api S3API, bucket string, leads []Lead, sum Summary) error {
	leadsKey, summaryKey := Keys(sum.Timestamp)

	var body bytes.Buffer
	if err := WriteJSONLines(&body, leads); err != nil {
		return err
	}
	if err := put(ctx, api, bucket, leadsKey, "application/x-ndjson", body.Bytes()); err != nil {
		return err
	}

	body.Reset()
	if err := WriteSummary(&body, sum); err != nil {
		return err
	}
	return put(ctx, api, bucket, summaryKey, "application/json", body.Bytes())
}

func put(ctx context.Context, api S3API, bucket, key, contentType string, b []byte) error {
	_, err := api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(b),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("leads: put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
