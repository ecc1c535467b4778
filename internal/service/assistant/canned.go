package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"localchat/internal/models"
)

// ReplyDelay is how long the simulated assistant "thinks" before answering.
const ReplyDelay = time.Second

// CannedReply is the only thing the simulated assistant ever says.
const CannedReply = "Thanks for your message! This is a simulated reply; no assistant backend is connected yet."

// CannedModel is a chat model that answers every prompt with the same text.
type CannedModel struct {
	reply string
}

var _ model.BaseChatModel = (*CannedModel)(nil)

func NewCannedModel() *CannedModel {
	return &CannedModel{reply: CannedReply}
}

func (m *CannedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *CannedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(m.reply, nil)}), nil
}

// Service turns chat history into an assistant reply.
type Service struct {
	chatModel model.BaseChatModel
}

func NewService(chatModel model.BaseChatModel) *Service {
	if chatModel == nil {
		chatModel = NewCannedModel()
	}
	return &Service{chatModel: chatModel}
}

// StreamReply feeds reply chunks to callback and returns the full text.
func (s *Service) StreamReply(ctx context.Context, history []models.Message, callback func(string) error) (string, error) {
	reader, err := s.chatModel.Stream(ctx, toSchema(history))
	if err != nil {
		return "", fmt.Errorf("stream reply failed: %w", err)
	}
	defer reader.Close()

	var sb strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("receive chunk: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		sb.WriteString(chunk.Content)
		if callback != nil {
			if err := callback(chunk.Content); err != nil {
				return "", err
			}
		}
	}
	return sb.String(), nil
}

func toSchema(history []models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Sender {
		case models.SenderUser:
			out = append(out, schema.UserMessage(m.Text))
		case models.SenderBot:
			out = append(out, schema.AssistantMessage(m.Text, nil))
		}
	}
	return out
}
