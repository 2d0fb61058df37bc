package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"esther-voice/internal/leads"
)

type parseOptions struct {
	out          string
	summary      string
	outputBucket string
	region       string
}

// newS3 is replaced in tests.
var newS3 = func(ctx context.Context, region string) (leads.S3API, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

var now = time.Now

func newParseCmd() *cobra.Command {
	var opts parseOptions

	cmd := &cobra.Command{
		Use:   "parse <input>",
		Short: "Parse a lead export",
		Long: "Parses a lead export read from a file, from s3://bucket/key, or from stdin when input is \"-\".\n" +
			"Leads are written as JSON lines and a processing summary is written as JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write leads as JSON lines to this file (default stdout)")
	cmd.Flags().StringVar(&opts.summary, "summary", "", "write the processing summary to this file")
	cmd.Flags().StringVar(&opts.outputBucket, "output-bucket", "", "also publish leads and summary to this S3 bucket")
	cmd.Flags().StringVar(&opts.region, "region", envOr("AWS_REGION", "us-east-1"), "AWS region for S3 access")
	return cmd
}

func runParse(cmd *cobra.Command, input string, opts parseOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var api leads.S3API
	s3Client := func() (leads.S3API, error) {
		if api != nil {
			return api, nil
		}
		var err error
		api, err = newS3(ctx, opts.region)
		return api, err
	}

	raw, err := readInput(ctx, cmd.InOrStdin(), input, s3Client)
	if err != nil {
		return err
	}

	res := leads.Parse(string(raw), now())
	sum := res.Summary(now())

	if err := writeTo(opts.out, cmd.OutOrStdout(), func(w io.Writer) error {
		return leads.WriteJSONLines(w, res.Leads)
	}); err != nil {
		return err
	}
	if opts.summary != "" {
		if err := writeTo(opts.summary, nil, func(w io.Writer) error {
			return leads.WriteSummary(w, sum)
		}); err != nil {
			return err
		}
	}
	if opts.outputBucket != "" {
		c, err := s3Client()
		if err != nil {
			return err
		}
		if err := leads.PublishS3(ctx, c, opts.outputBucket, res.Leads, sum); err != nil {
			return err
		}
		leadsKey, summaryKey := leads.Keys(sum.Timestamp)
		fmt.Fprintf(cmd.ErrOrStderr(), "published s3://%s/%s and s3://%s/%s\n", opts.outputBucket, leadsKey, opts.outputBucket, summaryKey)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "parsed %d of %d records, %d errors, %d unique phones, %d duplicates removed\n",
		sum.SuccessfulRecords, sum.TotalRecords, sum.FailedRecords, sum.UniquePhoneNumbers, sum.DuplicatePhonesRemoved)
	return nil
}

func readInput(ctx context.Context, stdin io.Reader, input string, s3Client func() (leads.S3API, error)) ([]byte, error) {
	if input == "-" {
		return io.ReadAll(stdin)
	}
	if bucket, key, ok := leads.SplitS3URI(input); ok {
		c, err := s3Client()
		if err != nil {
			return nil, err
		}
		return leads.ReadS3(ctx, c, bucket, key)
	}
	b, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", input, err)
	}
	return b, nil
}

// writeTo writes to path, or to fallback when path is empty.
func writeTo(path string, fallback io.Writer, write func(io.Writer) error) error {
	if path == "" {
		return write(fallback)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
