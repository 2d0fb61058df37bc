package sonic

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// DefaultModelID is the Nova Sonic speech-to-speech model.
const DefaultModelID = "amazon.nova-sonic-v1:0"

// BedrockTransport opens Nova Sonic streams through Bedrock Runtime.
type BedrockTransport struct {
	client  *bedrockruntime.Client
	modelID string
}

func NewBedrockTransport(awsCfg aws.Config, modelID string) *BedrockTransport {
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &BedrockTransport{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
	}
}

func (t *BedrockTransport) Open(ctx context.Context) (Stream, error) {
	out, err := t.client.InvokeModelWithBidirectionalStream(ctx, &bedrockruntime.InvokeModelWithBidirectionalStreamInput{
		ModelId: aws.String(t.modelID),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", t.modelID, err)
	}
	return &bedrockStream{es: out.GetStream()}, nil
}

type bedrockStream struct {
	es *bedrockruntime.InvokeModelWithBidirectionalStreamEventStream
}

func (s *bedrockStream) Send(ctx context.Context, payload []byte) error {
	return s.es.Send(ctx, &types.InvokeModelWithBidirectionalStreamInputMemberChunk{
		Value: types.BidirectionalInputPayloadPart{Bytes: payload},
	})
}

func (s *bedrockStream) Recv(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-s.es.Events():
			if !ok {
				if err := s.es.Err(); err != nil {
					return nil, err
				}
				return nil, io.EOF
			}
			chunk, isChunk := ev.(*types.InvokeModelWithBidirectionalStreamOutputMemberChunk)
			if !isChunk {
				continue
			}
			return chunk.Value.Bytes, nil
		}
	}
}

func (s *bedrockStream) Close() error {
	err := s.es.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
