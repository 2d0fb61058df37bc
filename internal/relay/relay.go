// Package relay pumps audio between a telephony websocket and a model session.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"esther-voice/internal/audio"
	"esther-voice/internal/sonic"
)

// Conn is the subset of *websocket.Conn used by the relay.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is the model side of a call.
type Session interface {
	SendAudio(ctx context.Context, pcm []byte) error
	NextAudio(ctx context.Context) ([]byte, error)
	End(ctx context.Context) error
}

// Options tune one relay. Zero values take the defaults used for Vonage L16 websockets.
type Options struct {
	// DrainTimeout bounds how long teardown waits for the session to finish.
	DrainTimeout time.Duration
	WriteTimeout time.Duration
	// FrameSize is the outbound binary frame size in bytes.
	FrameSize  int
	InputRate  int
	OutputRate int
}

func (o Options) withDefaults() Options {
	out := o
	if out.DrainTimeout <= 0 {
		out.DrainTimeout = 5 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 5 * time.Second
	}
	if out.FrameSize <= 0 {
		out.FrameSize = 640
	}
	if out.InputRate <= 0 {
		out.InputRate = sonic.InputSampleRate
	}
	if out.OutputRate <= 0 {
		out.OutputRate = sonic.OutputSampleRate
	}
	return out
}

// Relay couples one websocket to one session.
type Relay struct {
	conn Conn
	sess Session
	opts Options
	log  *slog.Logger

	chunker   *audio.Chunker
	resampler *audio.Resampler

	teardownOnce sync.Once
	teardownErr  error

	framesIn  int
	framesOut int
}

func New(conn Conn, sess Session, opts Options, log *slog.Logger) *Relay {
	opts = opts.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		conn:      conn,
		sess:      sess,
		opts:      opts,
		log:       log,
		chunker:   audio.NewChunker(),
		resampler: audio.NewResampler(opts.OutputRate, opts.InputRate),
	}
}

// Run blocks until either direction stops, then tears the call down exactly once.
// A normal hangup from either side returns nil.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return r.pumpInbound(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return r.pumpOutbound(gctx)
	})
	// ReadMessage does not observe ctx; closing the conn unblocks it.
	g.Go(func() error {
		<-gctx.Done()
		r.teardown(context.WithoutCancel(ctx))
		return nil
	})

	err := g.Wait()
	r.teardown(context.WithoutCancel(ctx))
	r.log.Info("relay finished", "frames_in", r.framesIn, "frames_out", r.framesOut)
	if err != nil && !isNormalStop(err) {
		return err
	}
	return r.teardownErr
}

func (r *Relay) pumpInbound(ctx context.Context) error {
	for {
		mt, data, err := r.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.log.Warn("caller websocket read failed", "err", err)
			}
			return nil
		}

		switch mt {
		case websocket.BinaryMessage:
			r.framesIn++
			chunk := r.chunker.Add(data)
			if chunk == nil {
				continue
			}
			if err := r.sess.SendAudio(ctx, chunk); err != nil {
				if errors.Is(err, sonic.ErrSessionNotActive) || ctx.Err() != nil {
					return nil
				}
				return err
			}
		case websocket.TextMessage:
			r.log.Debug("caller websocket text frame", "payload", string(data))
		}
	}
}

func (r *Relay) pumpOutbound(ctx context.Context) error {
	for {
		pcm, err := r.sess.NextAudio(ctx)
		if err != nil {
			if errors.Is(err, sonic.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		out := r.resampler.Write(pcm)
		for _, frame := range audio.Frames(out, r.opts.FrameSize) {
			_ = r.conn.SetWriteDeadline(time.Now().Add(r.opts.WriteTimeout))
			if err := r.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			r.framesOut++
		}
	}
}

func (r *Relay) teardown(ctx context.Context) {
	r.teardownOnce.Do(func() {
		endCtx, cancel := context.WithTimeout(ctx, r.opts.DrainTimeout)
		defer cancel()
		if err := r.sess.End(endCtx); err != nil {
			r.log.Warn("session teardown failed", "err", err)
			r.teardownErr = err
		}

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended")
		_ = r.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = r.conn.Close()
	})
}

func isNormalStop(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, sonic.ErrQueueClosed)
}
