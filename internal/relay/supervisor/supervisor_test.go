package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bombsimon/tweetrelay/internal/core/domain"
	"github.com/bombsimon/tweetrelay/internal/relay/filter"
	"github.com/bombsimon/tweetrelay/internal/relay/format"
	"github.com/bombsimon/tweetrelay/internal/relay/metrics"
)

// =============================================================================
// Fakes
// =============================================================================

type step struct {
	frame Frame
	err   error
}

// fakeStream replays steps, then blocks until ctx is done.
type fakeStream struct {
	steps  []step
	before func() // called before every Next
	pos    int
}

func (s *fakeStream) Next(ctx context.Context) (Frame, error) {
	if s.before != nil {
		s.before()
	}
	if s.pos < len(s.steps) {
		st := s.steps[s.pos]
		s.pos++
		return st.frame, st.err
	}
	<-ctx.Done()
	return Frame{}, ctx.Err()
}

func (s *fakeStream) Close() error { return nil }

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	connect func(call int) (Stream, error)
}

func (f *fakeSource) Connect(ctx context.Context, handle string) (Stream, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.connect == nil {
		return &fakeStream{}, nil
	}
	return f.connect(call)
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []*domain.OutboundMessage
	sent chan *domain.OutboundMessage
	send func(ctx context.Context, msg *domain.OutboundMessage) error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(chan *domain.OutboundMessage, 100)}
}

func (r *recordingSender) Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.Ack, error) {
	if r.send != nil {
		if err := r.send(ctx, msg); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	r.sent <- msg

	return &domain.Ack{MessageID: "m-" + msg.ItemID, ChannelID: msg.ChannelID, Attempts: 1}, nil
}

func (r *recordingSender) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		texts[i] = m.Text
	}
	return texts
}

func (r *recordingSender) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.sent:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
}

func testConfig() Config {
	return Config{
		Handle:         "bombsimon",
		BackoffFloor:   time.Second,
		BackoffCeiling: 10 * time.Second,
		ResetAfter:     time.Minute,
		Workers:        1,
		QueueSize:      8,
		ShutdownGrace:  time.Second,
		DedupWindow:    16,
	}
}

func newTestSupervisor(cfg Config, source Source, sender Sender) *Supervisor {
	return New(
		cfg,
		source,
		filter.NewPolicy(cfg.Handle, true),
		format.New("chan", 0, false, format.Labels{}),
		sender,
	)
}

func itemFrame(item *domain.RawItem) step {
	return step{frame: Frame{Item: item}}
}

func permalink(author, id string) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", author, id)
}

var (
	scenarioA = &domain.RawItem{
		ID:        "1353423037480263682",
		Author:    "bombsimon",
		Body:      "This is just a regular plaintext tweet!",
		Permalink: permalink("bombsimon", "1353423037480263682"),
	}
	scenarioB = &domain.RawItem{
		ID:        "2",
		Author:    "bombsimon",
		Body:      "RT @rustlang: Read this thread...",
		Permalink: permalink("bombsimon", "2"),
		RepostOf: &domain.ItemRef{ID: "1", Item: &domain.RawItem{
			ID: "1", Author: "rustlang", Body: "Read this thread...",
		}},
	}
	scenarioC = &domain.RawItem{
		ID:              "3",
		Author:          "bombsimon",
		Body:            "@surjohan This is a reply!",
		InReplyToAuthor: "surjohan",
		InReplyToID:     "99",
		Permalink:       permalink("bombsimon", "3"),
	}
)

func runAsync(ctx context.Context, s *Supervisor) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx)
	}()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(within):
		t.Fatalf("Run did not return within %v", within)
		return nil
	}
}

// =============================================================================
// Backoff Tests
// =============================================================================

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Floor: time.Second, Ceiling: 300 * time.Second}

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{8, 256 * time.Second},
		{9, 300 * time.Second},
		{1000, 300 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.failures); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestRun_ConnectFailureBackoffSequence(t *testing.T) {
	source := &fakeSource{connect: func(int) (Stream, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	s := newTestSupervisor(testConfig(), source, newRecordingSender())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 6 {
			cancel()
		}
		return ctx.Err()
	}

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestRun_LongStreamResetsFailures(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     []time.Duration
	}{
		{"short sessions keep growing", 10 * time.Second, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}},
		{"long sessions reset", 2 * time.Minute, []time.Duration{time.Second, time.Second, time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := time.Unix(1700000000, 0)

			source := &fakeSource{connect: func(int) (Stream, error) {
				first := true
				return &fakeStream{
					steps: []step{{err: io.EOF}},
					before: func() {
						if first {
							clock = clock.Add(tt.duration)
							first = false
						}
					},
				}, nil
			}}
			s := newTestSupervisor(testConfig(), source, newRecordingSender())
			s.now = func() time.Time { return clock }

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var delays []time.Duration
			s.sleep = func(ctx context.Context, d time.Duration) error {
				delays = append(delays, d)
				if len(delays) == len(tt.want) {
					cancel()
				}
				return ctx.Err()
			}

			if err := s.Run(ctx); err != nil {
				t.Fatalf("Run returned error: %v", err)
			}

			for i := range tt.want {
				if i >= len(delays) || delays[i] != tt.want[i] {
					t.Fatalf("delays = %v, want %v", delays, tt.want)
				}
			}
		})
	}
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestRun_AuthenticationFailureIsPermanent(t *testing.T) {
	source := &fakeSource{connect: func(int) (Stream, error) {
		return nil, fmt.Errorf("handshake returned 401: %w", domain.ErrAuthentication)
	}}
	s := newTestSupervisor(testConfig(), source, newRecordingSender())

	var transitions []domain.Transition
	s.SetStateChangeCallback(func(tr domain.Transition) {
		transitions = append(transitions, tr)
	})
	s.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("auth failure must not back off")
		return nil
	}

	err := s.Run(context.Background())
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if source.Calls() != 1 {
		t.Errorf("expected a single connect, got %d", source.Calls())
	}

	wantStates := []domain.ConnectionState{domain.StateConnecting, domain.StateShuttingDown}
	if len(transitions) != len(wantStates) {
		t.Fatalf("transitions = %+v", transitions)
	}
	for i, st := range wantStates {
		if transitions[i].To != st {
			t.Errorf("transition %d to %v, want %v", i, transitions[i].To, st)
		}
	}
}

func TestRun_TransitionsAreValid(t *testing.T) {
	source := &fakeSource{connect: func(call int) (Stream, error) {
		if call == 1 {
			return nil, errors.New("connection refused")
		}
		if call == 2 {
			return &fakeStream{steps: []step{{err: io.EOF}}}, nil
		}
		return &fakeStream{}, nil
	}}
	s := newTestSupervisor(testConfig(), source, newRecordingSender())
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var transitions []domain.Transition
	s.SetStateChangeCallback(func(tr domain.Transition) {
		transitions = append(transitions, tr)
		if tr.To == domain.StateStreaming && source.Calls() == 3 {
			cancel()
		}
	})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []domain.ConnectionState{
		domain.StateConnecting, domain.StateBackoff,
		domain.StateConnecting, domain.StateStreaming, domain.StateBackoff,
		domain.StateConnecting, domain.StateStreaming,
		domain.StateShuttingDown,
	}
	if len(transitions) != len(want) {
		t.Fatalf("got %d transitions, want %d: %+v", len(transitions), len(want), transitions)
	}
	for i, tr := range transitions {
		if tr.To != want[i] {
			t.Errorf("transition %d to %v, want %v", i, tr.To, want[i])
		}
		if !domain.CanTransition(tr.From, tr.To) {
			t.Errorf("invalid transition %v -> %v", tr.From, tr.To)
		}
	}
	if transitions[4].Reason != "upstream_closed" {
		t.Errorf("expected upstream_closed, got %q", transitions[4].Reason)
	}
}

func TestRun_HeartbeatTimeout(t *testing.T) {
	source := &fakeSource{}
	cfg := testConfig()
	cfg.HeartbeatTimeout = 20 * time.Millisecond
	s := newTestSupervisor(cfg, source, newRecordingSender())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reasons []string
	s.SetStateChangeCallback(func(tr domain.Transition) {
		if tr.To == domain.StateBackoff {
			reasons = append(reasons, tr.Reason)
		}
	})
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := waitRun(t, runAsync(ctx, s), 2*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(reasons) != 1 || reasons[0] != "heartbeat_timeout" {
		t.Errorf("expected a heartbeat_timeout backoff, got %v", reasons)
	}
}

func TestRun_KeepAlivesHoldConnection(t *testing.T) {
	steps := make([]step, 0, 9)
	for i := 0; i < 8; i++ {
		steps = append(steps, step{frame: Frame{KeepAlive: true}})
	}
	steps = append(steps, itemFrame(scenarioA))

	source := &fakeSource{connect: func(int) (Stream, error) {
		return &fakeStream{steps: steps, before: func() { time.Sleep(20 * time.Millisecond) }}, nil
	}}
	sender := newRecordingSender()
	cfg := testConfig()
	cfg.HeartbeatTimeout = 100 * time.Millisecond
	s := newTestSupervisor(cfg, source, sender)

	var backoffs []string
	s.SetStateChangeCallback(func(tr domain.Transition) {
		if tr.To == domain.StateBackoff {
			backoffs = append(backoffs, tr.Reason)
		}
	})
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	// Eight keep-alives span well over one heartbeat window.
	sender.waitFor(t, 1)
	cancel()

	if err := waitRun(t, errCh, 2*time.Second); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(backoffs) != 0 {
		t.Errorf("keep-alives should hold the connection, got backoffs %v", backoffs)
	}
	if source.Calls() != 1 {
		t.Errorf("expected a single connect, got %d", source.Calls())
	}
}

func TestRun_CancelDuringLongBackoff(t *testing.T) {
	source := &fakeSource{connect: func(int) (Stream, error) {
		return nil, errors.New("connection refused")
	}}
	cfg := testConfig()
	cfg.BackoffFloor = 300 * time.Second
	cfg.BackoffCeiling = 300 * time.Second
	s := newTestSupervisor(cfg, source, newRecordingSender())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inBackoff := make(chan time.Duration, 1)
	var last domain.ConnectionState
	s.SetStateChangeCallback(func(tr domain.Transition) {
		last = tr.To
		if tr.To == domain.StateBackoff {
			inBackoff <- tr.Backoff
		}
	})

	errCh := runAsync(ctx, s)

	select {
	case d := <-inBackoff:
		if d != 300*time.Second {
			t.Fatalf("expected 300s backoff, got %v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never entered backoff")
	}

	start := time.Now()
	cancel()

	if err := waitRun(t, errCh, 2*time.Second); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
	if last != domain.StateShuttingDown {
		t.Errorf("final state = %v, want shutting_down", last)
	}
}

// =============================================================================
// Pipeline Tests
// =============================================================================

func TestRun_EndToEndScenarios(t *testing.T) {
	source := &fakeSource{connect: func(int) (Stream, error) {
		return &fakeStream{steps: []step{
			itemFrame(scenarioA),
			{frame: Frame{KeepAlive: true}},
			itemFrame(scenarioB),
			itemFrame(scenarioC),
		}}, nil
	}}
	sender := newRecordingSender()
	s := newTestSupervisor(testConfig(), source, sender)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	sender.waitFor(t, 3)
	cancel()

	if err := waitRun(t, errCh, 2*time.Second); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	texts := sender.Texts()
	want := []string{
		"bombsimon: This is just a regular plaintext tweet! (https://twitter.com/bombsimon/status/1353423037480263682)",
		"bombsimon: RT @rustlang: Read this thread... (https://twitter.com/bombsimon/status/2)",
		"bombsimon: @surjohan This is a reply! (https://twitter.com/bombsimon/status/3)",
	}
	if len(texts) != len(want) {
		t.Fatalf("texts = %q", texts)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, texts[i], want[i])
		}
	}
	if s.LastFrame().IsZero() {
		t.Error("expected LastFrame to be recorded")
	}
}

func TestRun_DropsMalformedAndUntracked(t *testing.T) {
	source := &fakeSource{connect: func(int) (Stream, error) {
		return &fakeStream{steps: []step{
			{err: fmt.Errorf("decode frame: %w", domain.ErrMalformedItem)},
			itemFrame(&domain.RawItem{ID: "7", Author: "bombsimon"}), // no body
			itemFrame(&domain.RawItem{ID: "8", Author: "someoneelse", Body: "unrelated"}),
			itemFrame(scenarioA),
		}}, nil
	}}
	sender := newRecordingSender()
	s := newTestSupervisor(testConfig(), source, sender)

	malformed := metrics.ItemsDropped.WithLabelValues("malformed")
	filtered := metrics.ItemsDropped.WithLabelValues("filtered")
	malformedBefore := testutil.ToFloat64(malformed)
	filteredBefore := testutil.ToFloat64(filtered)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	sender.waitFor(t, 1)
	cancel()

	if err := waitRun(t, errCh, 2*time.Second); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if source.Calls() != 1 {
		t.Errorf("malformed frame must not reconnect, got %d connects", source.Calls())
	}
	if texts := sender.Texts(); len(texts) != 1 {
		t.Errorf("expected only scenario A forwarded, got %q", texts)
	}
	if got := testutil.ToFloat64(malformed) - malformedBefore; got != 2 {
		t.Errorf("malformed drops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(filtered) - filteredBefore; got != 1 {
		t.Errorf("filtered drops = %v, want 1", got)
	}
}

func TestRun_DuplicateSuppression(t *testing.T) {
	tests := []struct {
		name             string
		acrossReconnects bool
		wantIDs          []string
	}{
		{"per epoch", false, []string{scenarioA.ID, scenarioA.ID, scenarioB.ID}},
		{"across reconnects", true, []string{scenarioA.ID, scenarioB.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{connect: func(call int) (Stream, error) {
				if call == 1 {
					return &fakeStream{steps: []step{
						itemFrame(scenarioA),
						itemFrame(scenarioA),
						{err: io.EOF},
					}}, nil
				}
				return &fakeStream{steps: []step{
					itemFrame(scenarioA),
					itemFrame(scenarioB),
				}}, nil
			}}
			cfg := testConfig()
			cfg.DedupAcrossReconnects = tt.acrossReconnects
			sender := newRecordingSender()
			s := newTestSupervisor(cfg, source, sender)
			s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

			ctx, cancel := context.WithCancel(context.Background())
			errCh := runAsync(ctx, s)

			sender.waitFor(t, len(tt.wantIDs))
			cancel()

			if err := waitRun(t, errCh, 2*time.Second); err != nil {
				t.Fatalf("Run returned error: %v", err)
			}

			sender.mu.Lock()
			defer sender.mu.Unlock()
			if len(sender.msgs) != len(tt.wantIDs) {
				t.Fatalf("got %d messages, want %d", len(sender.msgs), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if sender.msgs[i].ItemID != id {
					t.Errorf("message %d id = %s, want %s", i, sender.msgs[i].ItemID, id)
				}
			}
		})
	}
}

func TestRun_GraceLetsInFlightDeliveryFinish(t *testing.T) {
	source := &fakeSource{connect: func(int) (Stream, error) {
		return &fakeStream{steps: []step{itemFrame(scenarioA)}}, nil
	}}
	started := make(chan struct{})
	sender := newRecordingSender()
	sender.send = func(ctx context.Context, msg *domain.OutboundMessage) error {
		close(started)
		select {
		case <-time.After(50 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s := newTestSupervisor(testConfig(), source, sender)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	<-started
	cancel()

	if err := waitRun(t, errCh, 2*time.Second); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if texts := sender.Texts(); len(texts) != 1 {
		t.Errorf("in-flight delivery should complete within grace, got %q", texts)
	}
}

func TestRun_GraceExpiryAbandonsDelivery(t *testing.T) {
	source := &fakeSource{connect: func(int) (Stream, error) {
		return &fakeStream{steps: []step{itemFrame(scenarioA)}}, nil
	}}
	started := make(chan struct{})
	abandoned := make(chan error, 1)
	sender := newRecordingSender()
	sender.send = func(ctx context.Context, msg *domain.OutboundMessage) error {
		close(started)
		<-ctx.Done()
		abandoned <- ctx.Err()
		return ctx.Err()
	}
	cfg := testConfig()
	cfg.ShutdownGrace = 30 * time.Millisecond
	s := newTestSupervisor(cfg, source, sender)

	var logs bytes.Buffer
	s.log = slog.New(slog.NewTextHandler(&logs, nil))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	<-started
	cancel()

	if err := waitRun(t, errCh, 2*time.Second); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	select {
	case err := <-abandoned:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected delivery context to be cancelled, got %v", err)
		}
	default:
		t.Error("delivery was not abandoned")
	}

	var line string
	for _, l := range strings.Split(logs.String(), "\n") {
		if strings.Contains(l, "Abandoned in-flight delivery") {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("expected an abandoned delivery log line, got:\n%s", logs.String())
	}
	if !strings.Contains(line, "level=ERROR") || !strings.Contains(line, scenarioA.Permalink) {
		t.Errorf("abandoned delivery should be logged at error with its permalink, got %q", line)
	}
}

func TestRun_QueueBackpressure(t *testing.T) {
	const items = 10

	var steps []step
	for i := 0; i < items; i++ {
		id := fmt.Sprintf("%d", i)
		steps = append(steps, itemFrame(&domain.RawItem{
			ID:        id,
			Author:    "bombsimon",
			Body:      "post " + id,
			Permalink: permalink("bombsimon", id),
		}))
	}

	var reads atomic.Int32
	source := &fakeSource{connect: func(int) (Stream, error) {
		return &fakeStream{steps: steps, before: func() { reads.Add(1) }}, nil
	}}

	started := make(chan struct{}, items)
	release := make(chan struct{})
	sender := newRecordingSender()
	sender.send = func(ctx context.Context, msg *domain.OutboundMessage) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cfg := testConfig()
	cfg.QueueSize = 2
	cfg.Workers = 1
	s := newTestSupervisor(cfg, source, sender)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first delivery never started")
	}

	// One item in flight, QueueSize queued, one blocked in dispatch.
	want := int32(1 + cfg.QueueSize + 1)
	deadline := time.Now().Add(2 * time.Second)
	for reads.Load() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := reads.Load(); got != want {
		t.Fatalf("frames read while delivery blocked = %d, want %d", got, want)
	}

	close(release)
	sender.waitFor(t, items)
	cancel()

	if err := waitRun(t, errCh, 2*time.Second); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, msg := range sender.msgs {
		if want := fmt.Sprintf("%d", i); msg.ItemID != want {
			t.Errorf("message %d id = %s, want %s", i, msg.ItemID, want)
		}
	}
}

func TestRecentIDs_Eviction(t *testing.T) {
	r := newRecentIDs(2)

	if !r.Add("a") || !r.Add("b") {
		t.Fatal("fresh ids should be added")
	}
	if r.Add("a") {
		t.Error("duplicate id should be rejected")
	}
	if !r.Add("c") {
		t.Fatal("c should be added")
	}
	if len(r.ids) != 2 {
		t.Errorf("window size = %d, want 2", len(r.ids))
	}
	if !r.Add("a") {
		t.Error("a should have been evicted")
	}

	r.Reset()
	if len(r.ids) != 0 || !r.Add("c") {
		t.Error("reset should clear the window")
	}
}
