package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"esther-voice/internal/leads"
)

const sample = `Jane Doe
Phone:
(555) 123-4567
Unread By Owner:
False
No Phone
Company:
Nowhere
Unread By Owner:
False`

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestParseCmd_FilesAndSummary(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "leads.txt")
	if err := os.WriteFile(in, []byte(sample), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	outPath := filepath.Join(dir, "leads.jsonl")
	sumPath := filepath.Join(dir, "summary.json")

	_, stderr, err := run(t, "", "parse", in, "--out", outPath, "--summary", sumPath)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !strings.Contains(stderr, "parsed 1 of 2 records, 1 errors") {
		t.Errorf("unexpected report: %s", stderr)
	}

	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read out: %v", err)
	}
	if !strings.Contains(string(b), `"phone":"+1 (555) 123-4567"`) {
		t.Errorf("unexpected leads: %s", b)
	}

	var sum leads.Summary
	raw, err := os.ReadFile(sumPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if err := json.Unmarshal(raw, &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.TotalRecords != 2 || sum.FailedRecords != 1 || len(sum.Errors) != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestParseCmd_StdinToStdout(t *testing.T) {
	stdout, _, err := run(t, sample, "parse", "-")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if n := strings.Count(strings.TrimSpace(stdout), "\n") + 1; n != 1 {
		t.Errorf("expected one lead line, got %d: %s", n, stdout)
	}
}

func TestParseCmd_MissingInput(t *testing.T) {
	if _, _, err := run(t, "", "parse", filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing input")
	}
	if _, _, err := run(t, "", "parse"); err == nil {
		t.Fatal("expected error without input argument")
	}
}

type memS3 map[string][]byte

func (m memS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(m[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]))}, nil
}

func (m memS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func TestParseCmd_S3(t *testing.T) {
	store := memS3{"src/exports/leads.txt": []byte(sample)}
	origS3, origNow := newS3, now
	newS3 = func(context.Context, string) (leads.S3API, error) { return store, nil }
	now = func() time.Time { return time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC) }
	defer func() { newS3, now = origS3, origNow }()

	_, stderr, err := run(t, "", "parse", "s3://src/exports/leads.txt", "--output-bucket", "dst")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, ok := store["dst/processed/20250601_083000/leads.json"]; !ok {
		t.Errorf("leads not published: %v", stderr)
	}
	if _, ok := store["dst/summary/20250601_083000/processing_summary.json"]; !ok {
		t.Errorf("summary not published: %v", stderr)
	}
}
