package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeOnce sync.Once
}

func (g *stubConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if g.consumeFn != nil {
		return g.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (g *stubConsumerGroup) Errors() <-chan error { return g.errorsCh }

func (g *stubConsumerGroup) Close() error {
	g.closeOnce.Do(func() { close(g.errorsCh) })
	return nil
}

func (g *stubConsumerGroup) Pause(map[string][]int32)  {}
func (g *stubConsumerGroup) Resume(map[string][]int32) {}
func (g *stubConsumerGroup) PauseAll()                 {}
func (g *stubConsumerGroup) ResumeAll()                {}

type stubSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (s *stubSession) Claims() map[string][]int32               { return nil }
func (s *stubSession) MemberID() string                         { return "member" }
func (s *stubSession) GenerationID() int32                      { return 1 }
func (s *stubSession) MarkOffset(string, int32, int64, string)  {}
func (s *stubSession) Commit()                                  {}
func (s *stubSession) ResetOffset(string, int32, int64, string) {}
func (s *stubSession) Context() context.Context                 { return s.ctx }
func (s *stubSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg)
}

type stubClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *stubClaim) Topic() string                            { return TopicNotificationDLQ }
func (c *stubClaim) Partition() int32                         { return 0 }
func (c *stubClaim) InitialOffset() int64                     { return 0 }
func (c *stubClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *stubClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newTestReader(group sarama.ConsumerGroup, commit bool, handler MessageHandler) *DLQReader {
	return &DLQReader{
		group:   group,
		topic:   TopicNotificationDLQ,
		handler: handler,
		commit:  commit,
		logger:  log.WithField("test", "dlq-reader"),
	}
}

func TestConsumeClaimMarksOnlyHandledMessages(t *testing.T) {
	ok := &sarama.ConsumerMessage{Offset: 1, Value: []byte("ok")}
	bad := &sarama.ConsumerMessage{Offset: 2, Value: []byte("bad")}

	claim := &stubClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- ok
	claim.messages <- bad
	close(claim.messages)

	reader := newTestReader(nil, true, func(_ context.Context, msg *sarama.ConsumerMessage) error {
		if string(msg.Value) == "bad" {
			return errors.New("cannot decode")
		}
		return nil
	})

	session := &stubSession{ctx: context.Background()}
	require.NoError(t, reader.ConsumeClaim(session, claim))
	assert.Equal(t, []*sarama.ConsumerMessage{ok}, session.marked)
}

func TestConsumeClaimDryRunDoesNotMark(t *testing.T) {
	claim := &stubClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 7}
	close(claim.messages)

	handled := 0
	reader := newTestReader(nil, false, func(context.Context, *sarama.ConsumerMessage) error {
		handled++
		return nil
	})

	session := &stubSession{ctx: context.Background()}
	require.NoError(t, reader.ConsumeClaim(session, claim))
	assert.Equal(t, 1, handled)
	assert.Empty(t, session.marked)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	group := &stubConsumerGroup{
		errorsCh: make(chan error, 1),
		consumeFn: func(context.Context, []string, sarama.ConsumerGroupHandler) error {
			cancel()
			return nil
		},
	}
	group.errorsCh <- errors.New("broker hiccup")

	reader := newTestReader(group, true, func(context.Context, *sarama.ConsumerMessage) error { return nil })

	done := make(chan struct{})
	go func() {
		defer close(done)
		reader.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
	require.NoError(t, reader.Close())
}

func TestNewDLQReaderRequiresHandler(t *testing.T) {
	_, err := NewDLQReader([]string{"localhost:9092"}, "group", "", false, nil)
	require.Error(t, err)
}
