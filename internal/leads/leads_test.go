package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

const export = `Jane Doe
Company:
Acme Corp
Phone:
(555) 123-4567
Website:
acme.example
State/Province:
CA
Lead Source:

Email:
jane@acme.example
Lead Status:

Created Date:
3/4/2024 9:15 AM
Owner Alias:

Unread By Owner:
False
John Roe
Company:
Roe LLC
Website:
https://roe.example
Unread By Owner:
False
Jane Again
Phone:
555.123.4567
Unread By Owner:
False
Intl Lead
Phone:
+44 20 7946 0958
Created Date:
2024-02-29
Unread By Owner:
False`

func TestParseBlock_Fields(t *testing.T) {
	lead := ParseBlock(SplitBlocks(export)[0], fixedNow)

	assert.Equal(t, "Jane Doe", lead.Name)
	assert.Equal(t, "Acme Corp", lead.Company)
	assert.Equal(t, "+1 (555) 123-4567", lead.Phone)
	assert.Equal(t, "http://acme.example", lead.Website)
	assert.Equal(t, "CA", lead.StateProvince)
	assert.Equal(t, DefaultLeadSource, lead.LeadSource)
	assert.Equal(t, "jane@acme.example", lead.Email)
	assert.Equal(t, DefaultLeadStatus, lead.LeadStatus)
	require.NotNil(t, lead.CreatedDate)
	assert.Equal(t, "2024-03-04T09:15:00Z", *lead.CreatedDate)
	assert.Equal(t, DefaultOwnerAlias, lead.OwnerAlias)
	assert.False(t, lead.UnreadByOwner)
	assert.Equal(t, "not_called", lead.CallStatus)
	assert.Empty(t, lead.CallTranscript)
}

func TestParseBlock_AbsentLabelsKeepDefaults(t *testing.T) {
	lead := ParseBlock("Company:\nNameless Inc\nPhone:\n5551112222\nUnread By Owner:\nTRUE", fixedNow)
	assert.Empty(t, lead.Name)
	assert.Equal(t, "Nameless Inc", lead.Company)
	assert.Equal(t, "+1 (555) 111-2222", lead.Phone)
	assert.Empty(t, lead.LeadSource)
	assert.Nil(t, lead.CreatedDate)
	assert.True(t, lead.UnreadByOwner)
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"3/4/2024 9:15 PM", "2024-03-04T21:15:00Z"},
		{"12/31/2023 11:59:30 PM", "2023-12-31T23:59:30Z"},
		{"2024-01-02 15:04:05", "2024-01-02T15:04:05Z"},
		{"07/04/2024", "2024-07-04T00:00:00Z"},
		{"2024-02-29", "2024-02-29T00:00:00Z"},
		{"3/4/2024 9:15 pm", "2024-03-04T21:15:00Z"},
		{"3/4/2024 9:15:07 am", "2024-03-04T09:15:07Z"},
		{"2024-1-5", "2024-01-05T00:00:00Z"},
		{"2024-1-5 7:08:09", "2024-01-05T07:08:09Z"},
		{"yesterday", "2025-06-01T08:30:00.000000Z"},
	}
	for _, tc := range cases {
		got := ParseDate(tc.in, fixedNow)
		require.NotNil(t, got, tc.in)
		assert.Equal(t, tc.want, *got, tc.in)
	}
	assert.Nil(t, ParseDate("", fixedNow))
}

func TestSplitBlocks(t *testing.T) {
	blocks := SplitBlocks(export)
	require.Len(t, blocks, 4)
	assert.True(t, strings.HasPrefix(blocks[1], "John Roe"))
	assert.True(t, strings.HasSuffix(blocks[3], "False"))

	// A "False" followed by a label does not end the block.
	assert.Len(t, SplitBlocks("A\nUnread By Owner:\nFalse\nPhone:\n5551112222"), 1)
}

func TestParse_ErrorsAndDedup(t *testing.T) {
	res := Parse(export, fixedNow)

	assert.Equal(t, 4, res.Blocks)
	assert.Equal(t, 3, res.Parsed)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, res.Leads, 2)
	assert.Equal(t, "Jane Doe", res.Leads[0].Name)
	assert.Equal(t, "+442079460958", res.Leads[1].Phone)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, "Missing phone number", res.Errors[0].Error)
	assert.True(t, strings.HasPrefix(res.Errors[0].Block, "John Roe"))

	sum := res.Summary(fixedNow)
	assert.Equal(t, Summary{
		Timestamp:              "20250601_083000",
		TotalRecords:           4,
		SuccessfulRecords:      3,
		FailedRecords:          1,
		UniquePhoneNumbers:     2,
		DuplicatePhonesRemoved: 1,
		Errors:                 res.Errors,
	}, sum)
}

func TestParse_LongBlockExcerptAndErrorCap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString("No Phone\nCompany:\n" + strings.Repeat("x", 300) + "\nUnread By Owner:\nFalse\n")
	}
	res := Parse(b.String(), fixedNow)
	require.Len(t, res.Errors, 120)
	assert.Len(t, []rune(res.Errors[0].Block), errorExcerptLen)

	sum := res.Summary(fixedNow)
	assert.Equal(t, 120, sum.FailedRecords)
	assert.Len(t, sum.Errors, maxReportedErrors)
}

func TestWriteJSONLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONLines(&buf, Parse(export, fixedNow).Leads))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, "+442079460958", got["phone"])
	assert.Equal(t, "2024-02-29T00:00:00Z", got["created_date"])
	assert.Equal(t, "not_called", got["call_status"])
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3RoundTrip(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"in/exports/leads.txt": []byte(export)}}
	ctx := context.Background()

	bucket, key, ok := SplitS3URI("s3://in/exports/leads.txt")
	require.True(t, ok)
	raw, err := ReadS3(ctx, api, bucket, key)
	require.NoError(t, err)

	res := Parse(string(raw), fixedNow)
	require.NoError(t, PublishS3(ctx, api, "out", res.Leads, res.Summary(fixedNow)))

	assert.Contains(t, api.objects, "out/processed/20250601_083000/leads.json")
	var sum Summary
	require.NoError(t, json.Unmarshal(api.objects["out/summary/20250601_083000/processing_summary.json"], &sum))
	assert.Equal(t, 2, sum.UniquePhoneNumbers)

	_, _, ok = SplitS3URI("/tmp/leads.txt")
	assert.False(t, ok)
}
