package messaging

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/flow"
	"github.com/BTreeMap/VisitDesk/internal/metrics"
	"github.com/BTreeMap/VisitDesk/internal/models"
)

// Menu button labels. Transports without buttons show them in the menu text.
const (
	LabelAddPatient    = "➕ Add patient"
	LabelTodayPatients = "📅 Today's patients"
	LabelWeekStats     = "📊 Weekly stats"
)

// MainMenuText is what a ReplyMainMenu renders to on text-only transports.
var MainMenuText = strings.Join([]string{
	"Choose an action:",
	"1. " + LabelAddPatient + " (/add_patient)",
	"2. " + LabelTodayPatients + " (/today_patients)",
	"3. " + LabelWeekStats + " (/week_stats)",
}, "\n")

const (
	// DefaultQueueSize bounds the pending messages per session.
	DefaultQueueSize = 16
	// DefaultWorkerIdle is how long a session worker waits before exiting.
	DefaultWorkerIdle = time.Minute
)

var commands = map[string]flow.EventKind{
	"/start":                            flow.EventStart,
	"/menu":                             flow.EventStart,
	"/add_patient":                      flow.EventAddPatient,
	"/today_patients":                   flow.EventTodayPatients,
	"/week_stats":                       flow.EventWeekStats,
	strings.ToLower(LabelAddPatient):    flow.EventAddPatient,
	strings.ToLower(LabelTodayPatients): flow.EventTodayPatients,
	strings.ToLower(LabelWeekStats):     flow.EventWeekStats,
}

var menuShortcuts = map[string]flow.EventKind{
	"1": flow.EventAddPatient,
	"2": flow.EventTodayPatients,
	"3": flow.EventWeekStats,
}

// Route maps inbound text to an event. Commands and button labels always
// win; the numeric menu shortcuts apply only while idle so they never
// shadow answers to an intake prompt.
func Route(state flow.State, text string) flow.Event {
	trimmed := strings.TrimSpace(text)
	if kind, ok := commands[strings.ToLower(trimmed)]; ok {
		return flow.Event{Kind: kind}
	}
	if state == flow.StateIdle || state == "" {
		if kind, ok := menuShortcuts[trimmed]; ok {
			return flow.Event{Kind: kind}
		}
	}
	return flow.Event{Kind: flow.EventText, Text: text}
}

// RenderReply converts a reply to message text.
func RenderReply(r flow.Reply) string {
	if r.Kind == flow.ReplyMainMenu {
		return MainMenuText
	}
	return r.Text
}

// Conversations is the part of flow.Manager the router needs.
type Conversations interface {
	Dispatch(ctx context.Context, key string, ownerID int64, ev flow.Event) []flow.Reply
	State(key string) (flow.State, bool)
}

// RouterOpts configures a Router.
type RouterOpts struct {
	Backend    string
	QueueSize  int
	WorkerIdle time.Duration
	Logger     *zap.Logger
}

// Router feeds inbound messages to conversations and sends the replies back.
// Messages from one sender are processed in arrival order by a dedicated
// worker; different senders proceed in parallel.
type Router struct {
	svc        Service
	convs      Conversations
	backend    string
	queueSize  int
	workerIdle time.Duration
	logger     *zap.Logger

	mu     sync.Mutex
	queues map[string]chan models.Response
	wg     sync.WaitGroup
}

// NewRouter creates a Router between svc and convs.
func NewRouter(svc Service, convs Conversations, opts RouterOpts) *Router {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WorkerIdle <= 0 {
		opts.WorkerIdle = DefaultWorkerIdle
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Backend == "" {
		opts.Backend = "unknown"
	}
	return &Router{
		svc:        svc,
		convs:      convs,
		backend:    opts.Backend,
		queueSize:  opts.QueueSize,
		workerIdle: opts.WorkerIdle,
		logger:     opts.Logger.Named("router"),
		queues:     make(map[string]chan models.Response),
	}
}

// Run consumes the service channels until ctx is cancelled or the service
// closes them, then waits for in-flight messages to finish.
func (r *Router) Run(ctx context.Context) error {
	responses := r.svc.Responses()
	receipts := r.svc.Receipts()
	defer r.wg.Wait()
	for responses != nil || receipts != nil {
		select {
		case <-ctx.Done():
			return nil
		case resp, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			r.enqueue(ctx, resp)
		case rc, ok := <-receipts:
			if !ok {
				receipts = nil
				continue
			}
			metrics.Receipts.WithLabelValues(string(rc.Status)).Inc()
			r.logger.Debug("Router receipt", zap.String("to", rc.To), zap.String("status", string(rc.Status)))
		}
	}
	return nil
}

func (r *Router) enqueue(ctx context.Context, resp models.Response) {
	key, err := r.svc.ValidateAndCanonicalizeRecipient(resp.From)
	if err != nil {
		r.logger.Warn("Router dropping message from invalid sender", zap.String("from", resp.From), zap.Error(err))
		metrics.DroppedMessages.Inc()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[key]
	if !ok {
		q = make(chan models.Response, r.queueSize)
		r.queues[key] = q
		r.wg.Add(1)
		go r.worker(ctx, key, q)
	}
	select {
	case q <- resp:
	default:
		metrics.DroppedMessages.Inc()
		r.logger.Warn("Router session queue full, dropping message", zap.String("session", key))
	}
}

func (r *Router) worker(ctx context.Context, key string, q chan models.Response) {
	defer r.wg.Done()
	idle := time.NewTimer(r.workerIdle)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-q:
			if err := r.HandleResponse(ctx, resp); err != nil {
				r.logger.Error("Router HandleResponse failed", zap.String("session", key), zap.Error(err))
			}
			idle.Reset(r.workerIdle)
		case <-idle.C:
			// enqueue sends while holding r.mu, so an empty queue here stays empty.
			r.mu.Lock()
			if len(q) == 0 {
				delete(r.queues, key)
				r.mu.Unlock()
				return
			}
			r.mu.Unlock()
			idle.Reset(r.workerIdle)
		}
	}
}

// HandleResponse processes one inbound message synchronously. A panic while
// handling is recovered and returned as an error so one bad message cannot
// take down the process.
func (r *Router) HandleResponse(ctx context.Context, resp models.Response) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic handling message from %s: %v", resp.From, rec)
		}
	}()

	key, err := r.svc.ValidateAndCanonicalizeRecipient(resp.From)
	if err != nil {
		return errors.Wrap(err, "invalid sender")
	}
	ownerID, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "sender %s is not a numeric owner id", key)
	}

	state, _ := r.convs.State(key)
	ev := Route(state, resp.Body)
	r.logger.Debug("Router dispatch", zap.String("session", key), zap.String("event", string(ev.Kind)), zap.String("state", string(state)))

	var firstErr error
	for _, reply := range r.convs.Dispatch(ctx, key, ownerID, ev) {
		if sendErr := r.svc.SendMessage(ctx, key, RenderReply(reply)); sendErr != nil {
			metrics.OutboundMessages.WithLabelValues(r.backend, "error").Inc()
			if firstErr == nil {
				firstErr = errors.Wrapf(sendErr, "send reply to %s", key)
			}
			continue
		}
		metrics.OutboundMessages.WithLabelValues(r.backend, "ok").Inc()
	}
	return firstErr
}

// ActiveWorkers returns the number of live session workers.
func (r *Router) ActiveWorkers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}
