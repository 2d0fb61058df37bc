package prompts

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	calls   int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Source_FetchesAssistantMarkdown(t *testing.T) {
	src := NewS3Source(&fakeS3{objects: map[string]string{"assistants/esther.md": "Be Esther."}}, "nova-sonic-prompts")

	text, err := src.Fetch(context.Background(), "esther")
	require.NoError(t, err)
	assert.Equal(t, "Be Esther.", text)

	_, err = src.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_CachesWithinTTL(t *testing.T) {
	s3c := &fakeS3{objects: map[string]string{"assistants/sales.md": "Sell."}}
	svc := NewService(NewS3Source(s3c, "b"), time.Minute, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	assert.Equal(t, "Sell.", svc.Get(context.Background(), "sales"))
	assert.Equal(t, "Sell.", svc.Get(context.Background(), "sales"))
	assert.Equal(t, 1, s3c.calls)

	svc.clock = func() time.Time { return now.Add(2 * time.Minute) }
	svc.Get(context.Background(), "sales")
	assert.Equal(t, 2, s3c.calls)
}

func TestService_FallbackChain(t *testing.T) {
	ctx := context.Background()

	withDefault := NewService(NewS3Source(&fakeS3{objects: map[string]string{"assistants/default.md": "Default."}}, "b"), 0, nil)
	assert.Equal(t, "Default.", withDefault.Get(ctx, "unknown"))

	empty := NewService(NewS3Source(&fakeS3{objects: map[string]string{}}, "b"), 0, nil)
	assert.Equal(t, DefaultPrompt, empty.Get(ctx, "unknown"))
	assert.Equal(t, DefaultPrompt, empty.Get(ctx, "esther"))

	none := NewService(nil, 0, nil)
	assert.Equal(t, DefaultPrompt, none.Get(ctx, "anything"))
}

func TestService_ClearCacheAndStats(t *testing.T) {
	src, err := ParseCatalog([]byte("assistants:\n  a: Alpha\n  b: Beta\n"))
	require.NoError(t, err)
	svc := NewService(src, time.Minute, nil)
	svc.Preload(context.Background(), []string{"a", "b"})

	st := svc.Stats()
	require.Equal(t, 2, st.Size)
	assert.Equal(t, "a", st.Entries[0].Name)
	assert.True(t, st.Entries[0].ExpiresIn > 0)

	assert.Equal(t, 1, svc.ClearCache("a"))
	assert.Equal(t, 1, svc.ClearCache())
	assert.Equal(t, 0, svc.Stats().Size)
}

func TestFileSource_MissingAssistant(t *testing.T) {
	src, err := ParseCatalog([]byte("assistants:\n  a: Alpha\n"))
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), "z")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = ParseCatalog([]byte("assistants: [unclosed"))
	assert.Error(t, err)
}
