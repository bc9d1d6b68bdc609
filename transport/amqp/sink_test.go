package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func reply(text string) core.Activity {
	in := core.NewMessageActivity("hi")
	in.ChannelID = "web"
	in.Conversation = core.ConversationAddress{"id": "conv-7"}
	out := in.CreateReply(text)
	out.Timestamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return out
}

func TestSink_PublishHeaders(t *testing.T) {
	ch := &mockChannel{}
	a := reply("hello")

	ch.On("PublishWithContext", mock.Anything, "dialog.out", "activity.web.message", false, false,
		mock.MatchedBy(func(p amqp.Publishing) bool {
			var decoded core.Activity
			if err := json.Unmarshal(p.Body, &decoded); err != nil {
				return false
			}
			return p.ContentType == "application/json" &&
				p.DeliveryMode == amqp.Persistent &&
				p.MessageId == a.ID &&
				p.CorrelationId == "conv-7" &&
				p.Type == core.ActivityTypeMessage &&
				p.AppId == "dialogmesh" &&
				p.Timestamp.Equal(a.Timestamp) &&
				decoded.Text == "hello"
		})).Return(nil).Once()

	require.NoError(t, NewSink(ch, "dialog.out").Send(context.Background(), []core.Activity{a}))
	ch.AssertExpectations(t)
}

func TestSink_StopsAtFirstFailure(t *testing.T) {
	ch := &mockChannel{}
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(errors.New("channel closed")).Once()

	s := NewSink(ch, "x", func(o *Options) {
		o.RoutingKey = func(core.Activity) string { return "fixed" }
	})
	err := s.Send(context.Background(), []core.Activity{reply("a"), reply("b")})
	assert.ErrorContains(t, err, "channel closed")
	ch.AssertNumberOfCalls(t, "PublishWithContext", 1)
	assert.NoError(t, s.Close())
}
