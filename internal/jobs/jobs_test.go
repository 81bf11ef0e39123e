package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/googlepaypasses/internal/adapters/crdb"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/robertarktes/googlepaypasses/internal/webhook"
)

type fakeSync struct {
	mu       sync.Mutex
	classes  []uuid.UUID
	objects  []uuid.UUID
	shredded []uuid.UUID
	err      error
}

func (f *fakeSync) RefreshClass(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes = append(f.classes, id)
	return true, f.err
}

func (f *fakeSync) RefreshObject(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, id)
	return true, f.err
}

func (f *fakeSync) Shred(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shredded = append(f.shredded, id)
	return f.err
}

// fakeUnsealer accepts envelopes whose signedMessage is plain Message JSON.
type fakeUnsealer struct {
	err error
}

func (f fakeUnsealer) Unseal(_ context.Context, env *webhook.Envelope, _ string) (*webhook.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	var msg webhook.Message
	if err := json.Unmarshal([]byte(env.SignedMessage), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type markerIndex map[string]uuid.UUID

func (m markerIndex) FindPositionByWalletObjectID(_ context.Context, objectID string) (uuid.UUID, bool, error) {
	id, ok := m[objectID]
	return id, ok, nil
}

type memGuard map[string]bool

func (g memGuard) First(_ context.Context, scope, nonce string) (bool, error) {
	if g[scope+nonce] {
		return false, nil
	}
	g[scope+nonce] = true
	return true, nil
}

func (g memGuard) Forget(_ context.Context, scope, nonce string) error {
	delete(g, scope+nonce)
	return nil
}

type recordingEnqueuer struct {
	mu     sync.Mutex
	jobs   []Job
	delays []time.Duration
	err    error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, job Job, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	e.delays = append(e.delays, delay)
	return nil
}

func webhookJob(t *testing.T, eventType, objectID, nonce string) Job {
	t.Helper()
	msg, _ := json.Marshal(webhook.Message{ObjectID: objectID, EventType: eventType, Nonce: nonce})
	body, _ := json.Marshal(webhook.Envelope{
		Signature:       "sig",
		ProtocolVersion: webhook.ProtocolVersion,
		SignedMessage:   string(msg),
		IntermediateSigningKey: webhook.IntermediateSigningKey{
			SignedKey:  "{}",
			Signatures: []string{"root-sig"},
		},
	})
	return Webhook("org", body)
}

type processorFixture struct {
	proc     *Processor
	sync     *fakeSync
	enqueuer *recordingEnqueuer
	position uuid.UUID
}

func newProcessorFixture(unsealErr error) *processorFixture {
	pos := uuid.New()
	f := &processorFixture{sync: &fakeSync{}, enqueuer: &recordingEnqueuer{}, position: pos}
	f.proc = NewProcessor(f.sync, fakeUnsealer{err: unsealErr}, markerIndex{"ISSUER.known": pos}, memGuard{}, f.enqueuer, "ISSUER", observability.NopLogger())
	return f
}

func TestProcessor_DispatchesSyncJobs(t *testing.T) {
	f := newProcessorFixture(nil)
	ctx := context.Background()
	eventID, positionID := uuid.New(), uuid.New()

	for _, job := range []Job{ClassRefresh(eventID), ObjectRefresh(positionID), Shred(positionID)} {
		if err := f.proc.Handle(ctx, job); err != nil {
			t.Fatalf("%s: %v", job.Kind, err)
		}
	}
	if len(f.sync.classes) != 1 || f.sync.classes[0] != eventID {
		t.Errorf("unexpected class refreshes %v", f.sync.classes)
	}
	if len(f.sync.objects) != 1 || len(f.sync.shredded) != 1 {
		t.Errorf("unexpected object calls refresh=%v shred=%v", f.sync.objects, f.sync.shredded)
	}

	if err := f.proc.Handle(ctx, Job{ID: uuid.New(), Kind: "wallet.bogus"}); err == nil {
		t.Error("unknown job kind must fail")
	}
}

func TestProcessor_SyncErrorsPropagate(t *testing.T) {
	f := newProcessorFixture(nil)
	f.sync.err = errors.New("api down")

	if err := f.proc.Handle(context.Background(), Shred(uuid.New())); err == nil {
		t.Error("expected the synchronizer error to propagate")
	}
}

func TestProcessor_WebhookDeleteKnownObject(t *testing.T) {
	f := newProcessorFixture(nil)

	if err := f.proc.Handle(context.Background(), webhookJob(t, webhook.EventDelete, "ISSUER.known", "n1")); err != nil {
		t.Fatal(err)
	}
	if len(f.enqueuer.jobs) != 1 {
		t.Fatalf("expected exactly one shred job, got %d", len(f.enqueuer.jobs))
	}
	job := f.enqueuer.jobs[0]
	if job.Kind != KindObjectShred || job.PositionID != f.position {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestProcessor_WebhookDeleteUnknownObject(t *testing.T) {
	f := newProcessorFixture(nil)

	// A prefix of a known id must not match.
	if err := f.proc.Handle(context.Background(), webhookJob(t, webhook.EventDelete, "ISSUER.know", "n1")); err != nil {
		t.Fatal(err)
	}
	if len(f.enqueuer.jobs) != 0 {
		t.Errorf("expected no shred jobs, got %d", len(f.enqueuer.jobs))
	}
}

func TestProcessor_WebhookSaveIsInformational(t *testing.T) {
	f := newProcessorFixture(nil)

	if err := f.proc.Handle(context.Background(), webhookJob(t, webhook.EventSave, "ISSUER.known", "n1")); err != nil {
		t.Fatal(err)
	}
	if len(f.enqueuer.jobs) != 0 || len(f.sync.shredded) != 0 {
		t.Error("save callbacks must not cause side effects")
	}
}

func TestProcessor_WebhookReplayIsIgnored(t *testing.T) {
	f := newProcessorFixture(nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.proc.Handle(ctx, webhookJob(t, webhook.EventDelete, "ISSUER.known", "same-nonce")); err != nil {
			t.Fatal(err)
		}
	}
	if len(f.enqueuer.jobs) != 1 {
		t.Errorf("expected one shred job for a replayed callback, got %d", len(f.enqueuer.jobs))
	}
}

func TestProcessor_WebhookEnqueueFailureReleasesNonce(t *testing.T) {
	f := newProcessorFixture(nil)
	ctx := context.Background()
	f.enqueuer.err = errors.New("db down")

	if err := f.proc.Handle(ctx, webhookJob(t, webhook.EventDelete, "ISSUER.known", "n1")); err == nil {
		t.Fatal("expected enqueue failure")
	}
	f.enqueuer.err = nil
	if err := f.proc.Handle(ctx, webhookJob(t, webhook.EventDelete, "ISSUER.known", "n1")); err != nil {
		t.Fatal(err)
	}
	if len(f.enqueuer.jobs) != 1 {
		t.Errorf("redelivery after a failure must be processed, got %d jobs", len(f.enqueuer.jobs))
	}
}

func TestProcessor_WebhookRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("signature failure", func(t *testing.T) {
		f := newProcessorFixture(errors.Mark(errors.New("bad"), webhook.ErrSignature))
		err := f.proc.Handle(ctx, webhookJob(t, webhook.EventDelete, "ISSUER.known", "n1"))
		if !errors.Is(err, webhook.ErrSignature) {
			t.Errorf("expected ErrSignature, got %v", err)
		}
		if len(f.enqueuer.jobs) != 0 {
			t.Error("nothing may be enqueued")
		}
	})

	t.Run("unknown event type", func(t *testing.T) {
		f := newProcessorFixture(nil)
		err := f.proc.Handle(ctx, webhookJob(t, "wat", "ISSUER.known", "n1"))
		if !errors.Is(err, webhook.ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})

	t.Run("not an envelope", func(t *testing.T) {
		f := newProcessorFixture(nil)
		err := f.proc.Handle(ctx, Webhook("org", []byte(`{"hello":"world"}`)))
		if !errors.Is(err, webhook.ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})
}

type memOutbox struct {
	records []crdb.OutboxRecord
}

func (m *memOutbox) InsertOutbox(_ context.Context, rec crdb.OutboxRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func TestOutboxEnqueuer(t *testing.T) {
	out := &memOutbox{}
	e := NewOutboxEnqueuer(out)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	eventID, positionID := uuid.New(), uuid.New()
	ctx := context.Background()

	if err := e.Enqueue(ctx, ClassRefresh(eventID), 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := e.Enqueue(ctx, Shred(positionID), 0); err != nil {
		t.Fatal(err)
	}

	refresh, shred := out.records[0], out.records[1]
	if refresh.EventType != string(KindClassRefresh) || refresh.DedupeKey != "wallet.class.refresh:"+eventID.String() {
		t.Errorf("unexpected refresh record %+v", refresh)
	}
	if !refresh.AvailableAt.Equal(now.Add(5 * time.Second)) {
		t.Errorf("expected delayed availability, got %v", refresh.AvailableAt)
	}
	if shred.DedupeKey != "" || !shred.AvailableAt.Equal(now) {
		t.Errorf("shred jobs are never collapsed or delayed, got %+v", shred)
	}

	var decoded Job
	if err := json.Unmarshal(shred.Payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.PositionID != positionID || decoded.Kind != KindObjectShred {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

type fakeAck struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *fakeAck) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAck) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		panic("deliveries must not be requeued")
	}
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type recordingHooks struct {
	mu   sync.Mutex
	keys []string
}

func (h *recordingHooks) Handle(_ context.Context, routingKey string, _ []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, routingKey)
	if routingKey == "order.broken" {
		return errors.New("cannot handle")
	}
	return nil
}

func TestWorker_AcksAndNacks(t *testing.T) {
	f := newProcessorFixture(nil)
	hooks := &recordingHooks{}
	ack := &fakeAck{}
	w := NewWorker(f.proc, hooks, 3, observability.NopLogger())

	shred, _ := json.Marshal(Shred(uuid.New()))
	deliveries := make(chan amqp.Delivery, 4)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: string(KindObjectShred), Body: shred}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, RoutingKey: "position.changed", Body: []byte(`{}`)}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, RoutingKey: string(KindObjectShred), Body: []byte(`not json`)}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, RoutingKey: "order.broken", Body: []byte(`{}`)}
	close(deliveries)

	if err := w.Run(context.Background(), deliveries); err != nil {
		t.Fatal(err)
	}

	if len(ack.acked) != 2 || len(ack.nacked) != 2 {
		t.Errorf("expected 2 acks and 2 nacks, got acked=%v nacked=%v", ack.acked, ack.nacked)
	}
	if len(f.sync.shredded) != 1 {
		t.Errorf("expected one shred, got %d", len(f.sync.shredded))
	}
	if len(hooks.keys) != 2 {
		t.Errorf("expected host events to reach the hooks handler, got %v", hooks.keys)
	}
}
