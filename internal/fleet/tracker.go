package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/logging"
	"github.com/vantagesign/signdeck/internal/mqtt"
)

// Publisher is the broker surface the tracker needs. *mqtt.Session
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
}

// Recorder persists finished commands. *store.CommandLog satisfies it.
type Recorder interface {
	Record(ctx context.Context, cmd Command) error
}

// commandMessage is the wire format published on a cmd topic.
type commandMessage struct {
	ID       string      `json:"id"`
	Type     CommandType `json:"type"`
	IssuedAt time.Time   `json:"issued_at"`
}

// statusReport is the wire format devices publish on their status topic.
// Reports without a command ID are presence traffic (online/heartbeat).
type statusReport struct {
	ID       string `json:"id,omitempty"`
	Event    string `json:"event"`
	Detail   string `json:"detail,omitempty"`
	Firmware string `json:"firmware,omitempty"`
}

// Event is pushed to tracker subscribers (the WebSocket hub, the CLI
// watch command) whenever a command or device changes.
type Event struct {
	Kind    string   `json:"kind"` // "command" or "device"
	Command *Command `json:"command,omitempty"`
	Device  *Device  `json:"device,omitempty"`
}

type commandKey struct {
	id     string
	device string
}

// Options tunes a Tracker.
type Options struct {
	CommandTimeout time.Duration
	OfflineAfter   time.Duration
	// Clock is swapped in tests.
	Clock func() time.Time
}

// Tracker owns the command lifecycle and the device registry.
type Tracker struct {
	pub      Publisher
	topics   mqtt.Topics
	recorder Recorder
	log      logging.Logger

	timeout time.Duration
	clock   func() time.Time

	mu       sync.RWMutex
	commands map[commandKey]*Command
	registry *registry

	watchMu   sync.Mutex
	watchers  map[int]chan Event
	nextWatch int
}

// NewTracker builds a tracker. recorder may be nil when history is
// disabled.
func NewTracker(pub Publisher, topics mqtt.Topics, recorder Recorder, log logging.Logger, opts Options) *Tracker {
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.OfflineAfter == 0 {
		opts.OfflineAfter = 90 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Tracker{
		pub:      pub,
		topics:   topics,
		recorder: recorder,
		log:      log.WithComponent("fleet"),
		timeout:  opts.CommandTimeout,
		clock:    opts.Clock,
		commands: make(map[commandKey]*Command),
		registry: newRegistry(opts.OfflineAfter),
		watchers: make(map[int]chan Event),
	}
}

// Attach subscribes the tracker to the fleet's status traffic. Call once
// after the broker session is up; the session re-registers the
// subscription across reconnects.
func (t *Tracker) Attach() error {
	return t.pub.Subscribe(t.topics.StatusWildcard(), t.HandleStatus)
}

// Dispatch publishes a command. Targeting mqtt.BroadcastDevice publishes
// once on the broadcast topic and opens one tracked command per online
// device, all sharing the command ID.
func (t *Tracker) Dispatch(ctx context.Context, deviceID string, cmdType CommandType) ([]*Command, error) {
	if !mqtt.ValidDeviceID(deviceID) {
		return nil, errors.NewValidation("bad_device_id",
			fmt.Sprintf("device id %q must be a single topic level without wildcards", deviceID))
	}

	now := t.clock()
	id := uuid.NewString()

	targets := []string{deviceID}
	topic := t.topics.Command(deviceID)
	if deviceID == mqtt.BroadcastDevice {
		t.mu.RLock()
		targets = t.registry.online(now)
		t.mu.RUnlock()
		if len(targets) == 0 {
			return nil, fmt.Errorf("broadcast %s: %w", cmdType, errors.ErrOffline)
		}
		topic = t.topics.Broadcast()
	}

	payload, err := json.Marshal(commandMessage{ID: id, Type: cmdType, IssuedAt: now})
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	cmds := make([]*Command, 0, len(targets))
	t.mu.Lock()
	for _, target := range targets {
		cmd := &Command{
			ID:        id,
			Device:    target,
			Type:      cmdType,
			State:     StatePending,
			CreatedAt: now,
			UpdatedAt: now,
			Deadline:  now.Add(t.timeout),
		}
		t.commands[commandKey{id: id, device: target}] = cmd
		cmds = append(cmds, cmd)
	}
	t.mu.Unlock()

	if err := t.pub.Publish(ctx, topic, payload); err != nil {
		t.moveAll(ctx, cmds, StateFailed, err.Error())
		return cmds, fmt.Errorf("dispatch %s to %s: %w", cmdType, deviceID, err)
	}

	t.moveAll(ctx, cmds, StateSent, "")
	t.log.Info(ctx, "command dispatched",
		"command", string(cmdType), "id", id, "targets", len(cmds))
	return cmds, nil
}

// HandleStatus consumes one message from a device status topic. Presence
// reports update the registry; reports carrying a command ID advance the
// matching command. Unknown or out-of-order reports are logged and
// dropped.
func (t *Tracker) HandleStatus(topic string, payload []byte) {
	ctx := context.Background()
	device := t.topics.DeviceFromStatusTopic(topic)
	if device == "" {
		t.log.Warn(ctx, nil, "status on unexpected topic", "topic", topic)
		return
	}

	var report statusReport
	if err := json.Unmarshal(payload, &report); err != nil {
		t.log.Warn(ctx, err, "undecodable status report", "device", device)
		return
	}

	now := t.clock()

	t.mu.Lock()
	seen := *t.registry.touch(device, report.Event, report.Firmware, now)
	t.mu.Unlock()
	t.emit(Event{Kind: "device", Device: &seen})

	if report.ID == "" {
		return
	}

	to, ok := stateForEvent(report.Event)
	if !ok {
		t.log.Warn(ctx, nil, "unknown status event",
			"device", device, "event", report.Event, "id", report.ID)
		return
	}

	t.mu.Lock()
	cmd, ok := t.commands[commandKey{id: report.ID, device: device}]
	if !ok {
		t.mu.Unlock()
		t.log.Warn(ctx, nil, "status for unknown command", "device", device, "id", report.ID)
		return
	}
	err := cmd.transition(to, report.Detail, now)
	snapshot := *cmd
	t.mu.Unlock()

	if err != nil {
		// Duplicate acks and late reports after a terminal state land
		// here.
		t.log.Warn(ctx, err, "status report dropped", "device", device, "id", report.ID)
		return
	}

	t.finish(ctx, snapshot)
	t.emit(Event{Kind: "command", Command: &snapshot})
}

func stateForEvent(event string) (State, bool) {
	switch event {
	case "ack":
		return StateAcked, true
	case "completed", "done":
		return StateCompleted, true
	case "error":
		return StateFailed, true
	}
	return "", false
}

// Run sweeps for expired commands and stale devices until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

// maxFinished bounds how many terminal commands stay queryable in
// memory. Older ones are dropped by the sweeper; the full audit trail
// lives in the command log.
const maxFinished = 256

func (t *Tracker) sweep(ctx context.Context) {
	now := t.clock()

	var expired []Command
	t.mu.Lock()
	for _, cmd := range t.commands {
		if !cmd.State.IsTerminal() && now.After(cmd.Deadline) {
			if err := cmd.transition(StateTimeout, "deadline exceeded", now); err == nil {
				expired = append(expired, *cmd)
			}
		}
	}
	offline := t.registry.refreshOnline(now)
	t.pruneFinishedLocked()
	t.mu.Unlock()

	for i := range expired {
		t.log.Warn(ctx, nil, "command timed out",
			"id", expired[i].ID, "device", expired[i].Device, "command", string(expired[i].Type))
		t.finish(ctx, expired[i])
		t.emit(Event{Kind: "command", Command: &expired[i]})
	}
	for i := range offline {
		t.emit(Event{Kind: "device", Device: &offline[i]})
	}
}

// pruneFinishedLocked drops the oldest terminal commands beyond the
// in-memory cap. Callers hold t.mu.
func (t *Tracker) pruneFinishedLocked() {
	var finished []*Command
	for _, cmd := range t.commands {
		if cmd.State.IsTerminal() {
			finished = append(finished, cmd)
		}
	}
	if len(finished) <= maxFinished {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].UpdatedAt.Before(finished[j].UpdatedAt)
	})
	for _, cmd := range finished[:len(finished)-maxFinished] {
		delete(t.commands, commandKey{id: cmd.ID, device: cmd.Device})
	}
}

// moveAll transitions a batch of fresh commands, emitting and recording
// as needed.
func (t *Tracker) moveAll(ctx context.Context, cmds []*Command, to State, detail string) {
	now := t.clock()
	for _, cmd := range cmds {
		t.mu.Lock()
		err := cmd.transition(to, detail, now)
		snapshot := *cmd
		t.mu.Unlock()
		if err != nil {
			continue
		}
		t.finish(ctx, snapshot)
		t.emit(Event{Kind: "command", Command: &snapshot})
	}
}

// finish records a command once it reaches a terminal state.
func (t *Tracker) finish(ctx context.Context, cmd Command) {
	if !cmd.State.IsTerminal() || t.recorder == nil {
		return
	}
	if err := t.recorder.Record(ctx, cmd); err != nil {
		t.log.Error(ctx, err, "record command history", "id", cmd.ID)
	}
}

// Subscribe returns a channel of tracker events and a cancel function.
// Slow subscribers drop events rather than blocking dispatch.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	t.watchMu.Lock()
	id := t.nextWatch
	t.nextWatch++
	t.watchers[id] = ch
	t.watchMu.Unlock()

	cancel := func() {
		t.watchMu.Lock()
		if _, ok := t.watchers[id]; ok {
			delete(t.watchers, id)
			close(ch)
		}
		t.watchMu.Unlock()
	}
	return ch, cancel
}

func (t *Tracker) emit(event Event) {
	t.watchMu.Lock()
	defer t.watchMu.Unlock()
	for _, ch := range t.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Devices returns the registry snapshot.
func (t *Tracker) Devices() []Device {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.registry.snapshot()
}

// Commands returns every tracked command, newest first.
func (t *Tracker) Commands() []Command {
	t.mu.RLock()
	out := make([]Command, 0, len(t.commands))
	for _, cmd := range t.commands {
		out = append(out, *cmd)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Device < out[j].Device
	})
	return out
}
