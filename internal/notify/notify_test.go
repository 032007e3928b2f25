package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/student-portal/internal/model"
)

func TestCompose(t *testing.T) {
	t.Parallel()
	u := model.User{Email: "ali@x.com", FullNameAr: "علي"}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.FixedZone("x", 3*3600))

	for _, k := range []Kind{KindLogin, KindSignup, KindLogout} {
		m := Compose(k, u, now)
		require.Equal(t, k, m.Kind)
		require.Equal(t, "ali@x.com", m.To)
		require.NotEmpty(t, m.ID)
		require.NotEmpty(t, m.Subject)
		require.True(t, strings.HasPrefix(m.Body, "مرحباً علي,"), m.Body)
		require.True(t, strings.HasSuffix(m.Body, "مع تحيات فريق منصة الطلبة اليمنيين"))
		require.Equal(t, time.UTC, m.CreatedAt.Location())
	}
	require.Equal(t, "مرحباً بك في منصة الطلبة اليمنيين", Compose(KindSignup, u, now).Subject)
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), Compose(KindLogin, model.User{Email: "a@x"}, time.Now())))
	require.Error(t, n.Notify(context.Background(), Message{}))

	entries := logs.FilterMessage("email notification").All()
	require.Len(t, entries, 1)
	require.Equal(t, "a@x", entries[0].ContextMap()["to"])
}

type recorder struct {
	got []Message
	err error
}

func (r *recorder) Notify(_ context.Context, m Message) error {
	r.got = append(r.got, m)
	return r.err
}

func TestMulti(t *testing.T) {
	t.Parallel()
	a, b := &recorder{}, &recorder{err: errors.New("down")}
	err := Multi{a, b}.Notify(context.Background(), Message{To: "x"})
	require.Error(t, err)
	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
}

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

type fakeConn struct{ ch *fakeChannel }

func (c *fakeConn) Channel() (amqpChannel, error) { return c.ch, nil }
func (c *fakeConn) Close() error                  { return nil }

func TestPublisher_PublishesPersistentJSON(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{}
	dials := 0
	p := NewPublisher("amqp://test", "", zaptest.NewLogger(t))
	p.dial = func(string) (amqpConn, error) { dials++; return &fakeConn{ch: ch}, nil }

	m := Compose(KindSignup, model.User{Email: "a@x", FullNameAr: "A"}, time.Now())
	require.NoError(t, p.Notify(context.Background(), m))
	require.NoError(t, p.Notify(context.Background(), m))
	require.Equal(t, 1, dials)
	require.Equal(t, []string{DefaultQueue}, ch.declared)
	require.Len(t, ch.published, 2)

	pub := ch.published[0]
	require.Equal(t, amqp.Persistent, pub.DeliveryMode)
	require.Equal(t, "application/json", pub.ContentType)
	require.Equal(t, m.ID, pub.MessageId)
	var back Message
	require.NoError(t, json.Unmarshal(pub.Body, &back))
	require.Equal(t, m.Subject, back.Subject)
}

func TestPublisher_RedialsAfterFailure(t *testing.T) {
	t.Parallel()
	bad := &fakeChannel{publishErr: errors.New("channel closed")}
	good := &fakeChannel{}
	chans := []*fakeChannel{bad, good}
	p := NewPublisher("amqp://test", "q", zaptest.NewLogger(t))
	p.dial = func(string) (amqpConn, error) {
		c := chans[0]
		chans = chans[1:]
		return &fakeConn{ch: c}, nil
	}

	require.Error(t, p.Notify(context.Background(), Message{To: "a"}))
	require.True(t, bad.closed)
	require.NoError(t, p.Notify(context.Background(), Message{To: "a"}))
	require.Len(t, good.published, 1)
}

func TestPublisher_DialError(t *testing.T) {
	t.Parallel()
	p := NewPublisher("amqp://test", "q", nil)
	p.dial = func(string) (amqpConn, error) { return nil, errors.New("refused") }
	require.ErrorContains(t, p.Notify(context.Background(), Message{}), "refused")
}

type fakeAck struct {
	acks, nacks int
	requeued    bool
}

func (a *fakeAck) Ack(uint64, bool) error { a.acks++; return nil }
func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeued = a.requeued || requeue
	return nil
}
func (a *fakeAck) Reject(uint64, bool) error { return nil }

func TestConsumer_Handle(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	c := &Consumer{Deliver: rec, Log: zaptest.NewLogger(t)}
	ctx := context.Background()

	body, err := json.Marshal(Message{ID: "1", To: "a@x", Kind: KindLogout})
	require.NoError(t, err)
	ack := &fakeAck{}
	c.handle(ctx, amqp.Delivery{Acknowledger: ack, Body: body})
	require.Equal(t, 1, ack.acks)
	require.Len(t, rec.got, 1)
	require.Equal(t, KindLogout, rec.got[0].Kind)

	ack = &fakeAck{}
	c.handle(ctx, amqp.Delivery{Acknowledger: ack, Body: []byte("{")})
	require.Equal(t, 1, ack.nacks)
	require.False(t, ack.requeued)

	rec.err = errors.New("smtp down")
	ack = &fakeAck{}
	c.handle(ctx, amqp.Delivery{Acknowledger: ack, Body: body})
	require.Equal(t, 1, ack.nacks)
	require.Zero(t, ack.acks)
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	d := minBackoff
	for i := 0; i < 10; i++ {
		d = nextBackoff(d)
	}
	require.Equal(t, maxBackoff, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, sleep(ctx, time.Hour))
}
