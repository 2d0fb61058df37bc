package sonic_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esther-voice/internal/sonic"
	"esther-voice/internal/sonic/sonictest"
)

func startSession(t *testing.T, prompt string) (*sonic.Session, *sonictest.Stream) {
	t.Helper()
	tr := sonictest.NewTransport()
	s := sonic.NewSession("call-1", tr, sonic.Config{SystemPrompt: prompt}, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, sonic.StateAudioReady, s.State())
	return s, tr.Last()
}

func indexOf(kinds []sonic.Kind, k sonic.Kind, from int) int {
	for i := from; i < len(kinds); i++ {
		if kinds[i] == k {
			return i
		}
	}
	return -1
}

func TestSession_StartSendsSetupInOrder(t *testing.T) {
	s, stream := startSession(t, "P")
	defer s.End(context.Background())

	assert.Equal(t, []sonic.Kind{
		sonic.KindSessionStart,
		sonic.KindPromptStart,
		sonic.KindContentStart,
		sonic.KindTextInput,
		sonic.KindContentEnd,
		sonic.KindContentStart,
	}, stream.Kinds())

	sent := stream.Sent()

	var sys sonic.ContentStart
	require.NoError(t, json.Unmarshal(sent[2].Fields, &sys))
	assert.Equal(t, sonic.ContentText, sys.Type)
	assert.Equal(t, sonic.RoleSystem, sys.Role)

	var text sonic.ContentInput
	require.NoError(t, json.Unmarshal(sent[3].Fields, &text))
	assert.Equal(t, "P", text.Content)
	assert.Equal(t, sys.ContentName, text.ContentName)

	var audio sonic.ContentStart
	require.NoError(t, json.Unmarshal(sent[5].Fields, &audio))
	assert.Equal(t, sonic.ContentAudio, audio.Type)
	assert.Equal(t, sonic.RoleUser, audio.Role)
	require.NotNil(t, audio.AudioInputConfiguration)
	assert.Equal(t, 16000, audio.AudioInputConfiguration.SampleRateHertz)
	assert.NotEqual(t, sys.ContentName, audio.ContentName)
}

func TestSession_AudioNeverPrecedesAudioContentStart(t *testing.T) {
	s, stream := startSession(t, "P")

	require.NoError(t, s.SendAudio(context.Background(), make([]byte, 320)))
	require.NoError(t, s.End(context.Background()))

	kinds := stream.Kinds()
	audioStart := -1
	for i, e := range stream.Sent() {
		if e.Kind != sonic.KindContentStart {
			continue
		}
		var cs sonic.ContentStart
		require.NoError(t, json.Unmarshal(e.Fields, &cs))
		if cs.Type == sonic.ContentAudio {
			audioStart = i
		}
	}
	require.GreaterOrEqual(t, audioStart, 0)
	assert.Greater(t, indexOf(kinds, sonic.KindAudioInput, 0), audioStart)

	audio := stream.AudioSent()
	require.Len(t, audio, 1)
	assert.Len(t, audio[0], 320)
}

func TestSession_EndIsIdempotent(t *testing.T) {
	s, stream := startSession(t, "P")

	require.NoError(t, s.End(context.Background()))
	require.NoError(t, s.End(context.Background()))

	kinds := stream.Kinds()
	assert.Equal(t, []sonic.Kind{sonic.KindContentEnd, sonic.KindPromptEnd, sonic.KindSessionEnd}, kinds[len(kinds)-3:])
	assert.Equal(t, 1, stream.Count(sonic.KindPromptEnd))
	assert.Equal(t, 1, stream.Count(sonic.KindSessionEnd))
	assert.True(t, stream.Closed())
	assert.Equal(t, sonic.StateEnded, s.State())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("reader still running after End")
	}
}

func TestSession_RejectsAudioAfterEnd(t *testing.T) {
	s, stream := startSession(t, "P")
	require.NoError(t, s.End(context.Background()))

	err := s.SendAudio(context.Background(), []byte{1, 2})
	assert.ErrorIs(t, err, sonic.ErrSessionNotActive)
	assert.Equal(t, 0, stream.Count(sonic.KindAudioInput))
}

func TestSession_RejectsAudioBeforeStart(t *testing.T) {
	s := sonic.NewSession("c", sonictest.NewTransport(), sonic.Config{}, nil)
	assert.ErrorIs(t, s.SendAudio(context.Background(), []byte{1, 2}), sonic.ErrSessionNotActive)
}

func TestSession_StartFailsWhenTransportUnavailable(t *testing.T) {
	tr := sonictest.NewTransport()
	tr.OpenErr = errors.New("no route")
	s := sonic.NewSession("c", tr, sonic.Config{}, nil)

	err := s.Start(context.Background())
	require.ErrorIs(t, err, sonic.ErrTransportUnavailable)
	assert.Equal(t, sonic.StateEnded, s.State())
	assert.NoError(t, s.End(context.Background()))
}

func TestSession_AssistantHelloScenario(t *testing.T) {
	s, stream := startSession(t, "P")
	defer s.End(context.Background())

	require.NoError(t, s.SendAudio(context.Background(), make([]byte, 640)))
	stream.EmitText(sonic.RoleAssistant, "Hello")

	require.Eventually(t, func() bool { return len(s.Transcript()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Assistant: Hello"}, s.Transcript())
}

func TestSession_TranscriptKeepsArrivalOrderAcrossRoles(t *testing.T) {
	s, stream := startSession(t, "P")
	defer s.End(context.Background())

	stream.EmitText(sonic.RoleUser, "hi there")
	stream.EmitText(sonic.RoleAssistant, "Hello, this is Esther.")
	stream.EmitText(sonic.RoleUser, "who is calling?")

	require.Eventually(t, func() bool { return len(s.Transcript()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"User: hi there",
		"Assistant: Hello, this is Esther.",
		"User: who is calling?",
	}, s.Transcript())
}

func TestSession_SkipsFinalStageAssistantText(t *testing.T) {
	s, stream := startSession(t, "P")
	defer s.End(context.Background())

	stream.Emit(sonic.KindContentStart, sonic.ContentStart{
		Role: sonic.RoleAssistant, AdditionalModelFields: `{"generationStage":"SPECULATIVE"}`,
	})
	stream.Emit(sonic.KindTextOutput, sonic.TextOutput{Content: "Hello"})
	stream.Emit(sonic.KindContentEnd, sonic.ContentEnd{})
	stream.Emit(sonic.KindContentStart, sonic.ContentStart{
		Role: sonic.RoleAssistant, AdditionalModelFields: `{"generationStage":"FINAL"}`,
	})
	stream.Emit(sonic.KindTextOutput, sonic.TextOutput{Content: "Hello"})
	stream.Emit(sonic.KindContentEnd, sonic.ContentEnd{})
	stream.EmitText(sonic.RoleUser, "bye")

	require.Eventually(t, func() bool { return len(s.Transcript()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Assistant: Hello", "User: bye"}, s.Transcript())
}

func TestSession_QueuesDecodedAudioAndSurvivesBadEvents(t *testing.T) {
	s, stream := startSession(t, "P")
	defer s.End(context.Background())

	stream.EmitRaw([]byte(`not json`))
	stream.Emit(sonic.KindError, sonic.ErrorEvent{Message: "throttled"})
	stream.Emit(sonic.KindAudioOutput, sonic.AudioOutput{Content: "%%%"})
	stream.EmitAudio([]byte{1, 2, 3, 4})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := s.NextAudio(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
	assert.True(t, s.Active())
}

func TestSession_BargeInClearsPendingAudio(t *testing.T) {
	s, stream := startSession(t, "P")
	defer s.End(context.Background())

	stream.EmitAudio([]byte{1, 1})
	stream.EmitAudio([]byte{2, 2})
	require.Eventually(t, func() bool { return s.PendingAudio() == 2 }, time.Second, 5*time.Millisecond)

	stream.Emit(sonic.KindContentStart, sonic.ContentStart{Role: sonic.RoleAssistant})
	stream.Emit(sonic.KindTextOutput, sonic.TextOutput{Content: `{ "interrupted" : true }`})

	require.Eventually(t, func() bool { return s.PendingAudio() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Transcript())
}

func TestSession_ReaderFailureStopsAudio(t *testing.T) {
	s, stream := startSession(t, "P")

	stream.FailRecv(errors.New("connection reset"))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
	assert.Error(t, s.Err())
	assert.False(t, s.Active())
	assert.ErrorIs(t, s.SendAudio(context.Background(), []byte{1, 2}), sonic.ErrSessionNotActive)

	_, err := s.NextAudio(context.Background())
	assert.ErrorIs(t, err, sonic.ErrQueueClosed)

	assert.NoError(t, s.End(context.Background()))
	assert.Equal(t, sonic.StateEnded, s.State())
}

func TestSession_SendTextWrapsUserBlock(t *testing.T) {
	s, stream := startSession(t, "P")
	defer s.End(context.Background())

	require.NoError(t, s.SendText(context.Background(), "call me back"))
	kinds := stream.Kinds()
	assert.Equal(t, []sonic.Kind{sonic.KindContentStart, sonic.KindTextInput, sonic.KindContentEnd}, kinds[len(kinds)-3:])
}

func TestSession_InferenceConfigIsSent(t *testing.T) {
	tr := sonictest.NewTransport()
	s := sonic.NewSession("c", tr, sonic.Config{
		SystemPrompt: "P",
		Inference:    sonic.InferenceConfig{MaxTokens: 256, TopP: 0.5, Temperature: 0.2},
		VoiceID:      "tiffany",
	}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.End(context.Background())

	sent := tr.Last().Sent()
	var ss sonic.SessionStart
	require.NoError(t, json.Unmarshal(sent[0].Fields, &ss))
	assert.Equal(t, 256, ss.InferenceConfiguration.MaxTokens)

	var ps sonic.PromptStart
	require.NoError(t, json.Unmarshal(sent[1].Fields, &ps))
	assert.Equal(t, "tiffany", ps.AudioOutputConfiguration.VoiceID)
	assert.Equal(t, 24000, ps.AudioOutputConfiguration.SampleRateHertz)
	assert.Equal(t, s.PromptName(), ps.PromptName)
}

// deafStream accepts every event but its Recv ignores both ctx and Close.
type deafStream struct {
	release chan struct{}
}

func (d *deafStream) Send(context.Context, []byte) error { return nil }

func (d *deafStream) Recv(context.Context) ([]byte, error) {
	<-d.release
	return nil, errors.New("released")
}

func (d *deafStream) Close() error { return nil }

type deafTransport struct{ stream *deafStream }

func (d deafTransport) Open(context.Context) (sonic.Stream, error) { return d.stream, nil }

func TestSession_EndHonoursDeadlineWhenReaderIsStuck(t *testing.T) {
	stream := &deafStream{release: make(chan struct{})}
	t.Cleanup(func() { close(stream.release) })

	s := sonic.NewSession("call-stuck", deafTransport{stream: stream}, sonic.Config{SystemPrompt: "P"}, nil)
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.End(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("End blocked past its deadline")
	}
	assert.Equal(t, sonic.StateEnded, s.State())

	_, err := s.NextAudio(context.Background())
	assert.ErrorIs(t, err, sonic.ErrQueueClosed)
}
