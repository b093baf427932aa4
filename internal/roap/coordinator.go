package roap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kuuji/roapmedia/pkg/roapmsg"
)

// asyncStage tags which step of a creation pipeline an asynchronous
// PeerConnection/Munger call result belongs to.
type asyncStage int

const (
	stageCreateOffer asyncStage = iota
	stageSetLocalOffer
	stageMungeOffer
	stageCreateAnswer
	stageSetLocalAnswer
	stageMungeAnswer
	stageSetRemoteOffer
	stageSetRemoteAnswer
)

type cmdKind int

const (
	cmdInitiateOffer cmdKind = iota
	cmdMessageReceived
	cmdAsyncResult
)

// command is the single unit of work the coordinator's run loop drains.
// Every externally visible call (InitiateOffer, RoapMessageReceived) posts
// one of these and waits on done; asynchronous PeerConnection/Munger
// results re-enter the loop the same way, tagged with the epoch they were
// issued under.
type command struct {
	kind cmdKind
	msg  roapmsg.Message
	done chan error

	epoch uint64
	stage asyncStage
	sdp   string
	err   error
}

// Config configures a Coordinator.
type Config struct {
	// PeerConnection is required.
	PeerConnection PeerConnection
	// Munger defaults to PassthroughMunger when nil.
	Munger Munger
	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger
	// OnMessageToSend is called synchronously, from the coordinator's own
	// goroutine, whenever a ROAP message must be delivered to the peer
	// (spec's ROAP_MESSAGE_TO_SEND event). It must not block.
	OnMessageToSend func(roapmsg.Message)
	// OnFailure is called when the engine enters a terminal state (the
	// spec's ROAP_FAILURE event). It must not block.
	OnFailure func()
	// OpTimeout bounds each individual PeerConnection/Munger call. Defaults
	// to 10s.
	OpTimeout time.Duration
}

// Coordinator drives a PeerConnection through ROAP exchanges. All mutable
// engine state is confined to a single goroutine (run); every other method
// communicates with it over a channel, so no state is ever touched from two
// goroutines at once (spec §5).
type Coordinator struct {
	pc        PeerConnection
	munge     Munger
	log       *slog.Logger
	opTimeout time.Duration

	cmds    chan command
	closeCh chan struct{}
	stopped chan struct{}
	once    sync.Once

	onMessage func(roapmsg.Message)
	onFailure func()

	mu       sync.Mutex
	snapshot EngineState

	// engine state — owned exclusively by run().
	state               State
	seq                 uint64
	lastCompletedSeq    uint64
	pendingLocalOffer   bool
	retryCount          int
	lastOfferSDP        string
	lastOfferTieBreaker uint32
	exchange            exchangeKind
	rawSDP              string
	epoch               uint64
}

// NewCoordinator builds a Coordinator and starts its run loop.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.PeerConnection == nil {
		return nil, ErrNoPeerConnection
	}
	munge := cfg.Munger
	if munge == nil {
		munge = PassthroughMunger
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "roap")

	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}

	c := &Coordinator{
		pc:        cfg.PeerConnection,
		munge:     munge,
		log:       log,
		opTimeout: opTimeout,
		cmds:      make(chan command),
		closeCh:   make(chan struct{}),
		stopped:   make(chan struct{}),
		onMessage: cfg.OnMessageToSend,
		onFailure: cfg.OnFailure,
		state:     StateIdle,
	}
	c.publish()
	go c.run()
	return c, nil
}

// InitiateOffer requests that the engine start (or restart, or queue) a
// locally initiated offer/answer exchange (spec §4.1).
func (c *Coordinator) InitiateOffer(ctx context.Context) error {
	return c.post(ctx, command{kind: cmdInitiateOffer})
}

// RoapMessageReceived delivers an inbound ROAP message to the engine
// (spec §4.1). Malformed messages are rejected before they reach the state
// machine: the validation error is returned, no ERROR is sent to the peer,
// and the engine state is unchanged.
func (c *Coordinator) RoapMessageReceived(ctx context.Context, msg roapmsg.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.post(ctx, command{kind: cmdMessageReceived, msg: msg})
}

// State returns a snapshot of the engine's current state. Safe for
// concurrent use.
func (c *Coordinator) State() EngineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Close stops the coordinator's run loop. It is idempotent; subsequent
// InitiateOffer/RoapMessageReceived calls return ErrEngineClosed. Close
// blocks until the run loop has actually exited.
func (c *Coordinator) Close() error {
	c.once.Do(func() { close(c.closeCh) })
	<-c.stopped
	return nil
}

// StopAllTimeouts exists to satisfy hosts ported from implementations that
// run wall-clock retry timers. This coordinator has none — retries are
// driven entirely by inbound ERROR messages (spec §4.3 note) — so this is a
// deliberate no-op kept for API parity.
func (c *Coordinator) StopAllTimeouts() {}

func (c *Coordinator) post(ctx context.Context, cmd command) error {
	cmd.done = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.closeCh:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-c.stopped:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	for {
		select {
		case cmd := <-c.cmds:
			c.dispatch(cmd)
			c.publish()
		case <-c.closeCh:
			return
		}
	}
}

func (c *Coordinator) dispatch(cmd command) {
	switch cmd.kind {
	case cmdInitiateOffer:
		c.handleInitiateOffer(cmd)
	case cmdMessageReceived:
		c.handleMessageReceived(cmd)
	case cmdAsyncResult:
		c.handleAsyncResult(cmd)
	}
}

func (c *Coordinator) publish() {
	c.mu.Lock()
	c.snapshot = EngineState{
		State:               c.state,
		Seq:                 c.seq,
		PendingLocalOffer:   c.pendingLocalOffer,
		RetryCount:          c.retryCount,
		LastOfferSDP:        c.lastOfferSDP,
		LastOfferTieBreaker: c.lastOfferTieBreaker,
	}
	c.mu.Unlock()
}

// runAsync invokes fn on its own goroutine and feeds the result back onto
// cmds tagged with epoch, so handleAsyncResult can tell a stale (abandoned
// by restart) result from a live one.
func (c *Coordinator) runAsync(epoch uint64, stage asyncStage, fn func(ctx context.Context) (string, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
		defer cancel()
		sdp, err := fn(ctx)
		result := command{kind: cmdAsyncResult, epoch: epoch, stage: stage, sdp: sdp, err: err}
		select {
		case c.cmds <- result:
		case <-c.closeCh:
		}
	}()
}

func (c *Coordinator) emit(msg roapmsg.Message) {
	if c.state.Terminal() {
		return
	}
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *Coordinator) raiseFailure() {
	if c.onFailure != nil {
		c.onFailure()
	}
}

// --- initiateOffer -----------------------------------------------------

func (c *Coordinator) handleInitiateOffer(cmd command) {
	if c.state.Terminal() {
		cmd.done <- ErrEngineTerminated
		return
	}

	switch c.state {
	case StateIdle:
		c.beginLocalOffer(c.lastCompletedSeq + 1)
	case StateCreatingLocalOffer, StateSettingLocalOffer:
		c.state = StateCreatingLocalOffer
		c.restartLocalCreation()
	case StateHandlingOfferRequest:
		c.restartLocalCreation()
	default:
		c.pendingLocalOffer = true
		c.log.Debug("queued renegotiation request", "state", c.state.String())
	}
	cmd.done <- nil
}

func (c *Coordinator) beginLocalOffer(seq uint64) {
	c.seq = seq
	c.exchange = exchangeLocalOffer
	c.state = StateCreatingLocalOffer
	c.epoch++
	epoch := c.epoch
	c.log.Info("initiating local offer", "seq", seq)
	c.runAsync(epoch, stageCreateOffer, c.pc.CreateOffer)
}

// restartLocalCreation discards whatever create/set-local/munge step is
// currently in flight and reissues the pipeline from createOffer, reusing
// the same seq (spec §4.2 restart discipline). The abandoned goroutine, if
// still running, will eventually post a result tagged with the old epoch,
// which handleAsyncResult discards.
func (c *Coordinator) restartLocalCreation() {
	c.epoch++
	epoch := c.epoch
	c.log.Info("restarting local offer creation", "seq", c.seq, "state", c.state.String())
	c.runAsync(epoch, stageCreateOffer, c.pc.CreateOffer)
}

// --- inbound messages ----------------------------------------------------

func (c *Coordinator) handleMessageReceived(cmd command) {
	msg := cmd.msg
	if c.state.Terminal() {
		cmd.done <- ErrEngineTerminated
		return
	}

	switch msg.MessageType {
	case roapmsg.Offer, roapmsg.OfferRequest:
		c.handleInboundOffer(msg)
	case roapmsg.Answer:
		c.handleSeqMatched(msg, StateWaitingForAnswer, c.handleInboundAnswer)
	case roapmsg.OK:
		c.handleSeqMatched(msg, StateWaitingForOk, c.handleInboundOK)
	case roapmsg.Error:
		c.handleInboundError(msg)
	}
	cmd.done <- nil
}

// isOffering reports whether the engine is creating, or has already
// emitted, a local offer — the condition that makes an inbound OFFER or
// OFFER_REQUEST glare rather than a fresh, acceptable exchange (spec §4.2).
func (c *Coordinator) isOffering() bool {
	switch c.state {
	case StateCreatingLocalOffer, StateSettingLocalOffer, StateHandlingOfferRequest, StateWaitingForAnswer:
		return true
	default:
		return false
	}
}

func (c *Coordinator) handleInboundOffer(msg roapmsg.Message) {
	if c.isOffering() {
		c.log.Info("glare: rejecting remote offer with CONFLICT", "remote_seq", msg.Seq, "local_seq", c.seq)
		c.emit(roapmsg.NewError(msg.Seq, roapmsg.ErrConflict))
		return
	}
	if c.state != StateIdle {
		c.emit(roapmsg.NewError(msg.Seq, roapmsg.ErrInvalidState))
		return
	}

	c.seq = msg.Seq
	c.epoch++
	epoch := c.epoch

	if msg.MessageType == roapmsg.OfferRequest {
		c.exchange = exchangeOfferResponse
		c.state = StateHandlingOfferRequest
		c.log.Info("handling OFFER_REQUEST", "seq", c.seq)
		c.runAsync(epoch, stageCreateOffer, c.pc.CreateOffer)
		return
	}

	c.exchange = exchangeNone
	c.state = StateSettingRemoteOffer
	c.log.Info("setting remote offer", "seq", c.seq)
	offerSDP := msg.SDP
	c.runAsync(epoch, stageSetRemoteOffer, func(ctx context.Context) (string, error) {
		return "", c.pc.SetRemoteDescription(ctx, DescriptionOffer, offerSDP)
	})
}

func (c *Coordinator) handleInboundAnswer(msg roapmsg.Message) {
	c.state = StateSettingRemoteAnswer
	epoch := c.epoch
	answerSDP := msg.SDP
	c.log.Info("setting remote answer", "seq", c.seq)
	c.runAsync(epoch, stageSetRemoteAnswer, func(ctx context.Context) (string, error) {
		return "", c.pc.SetRemoteDescription(ctx, DescriptionAnswer, answerSDP)
	})
}

func (c *Coordinator) handleInboundOK(msg roapmsg.Message) {
	c.retryCount = 0
	c.lastCompletedSeq = c.seq
	c.log.Info("exchange complete", "seq", c.seq)
	c.returnToIdle()
}

// handleSeqMatched implements the shared ANSWER/OK admission rule: both are
// replies to an exchange already in flight, so they must carry the engine's
// current seq and arrive while the engine is in the expected waiting state,
// or they are rejected as OUT_OF_ORDER/INVALID_STATE respectively
// (spec §4.3).
func (c *Coordinator) handleSeqMatched(msg roapmsg.Message, want State, fn func(roapmsg.Message)) {
	if c.state == StateIdle {
		c.emit(roapmsg.NewError(msg.Seq, roapmsg.ErrInvalidState))
		return
	}
	if msg.Seq != c.seq {
		c.emit(roapmsg.NewError(msg.Seq, roapmsg.ErrOutOfOrder))
		return
	}
	if c.state != want {
		c.emit(roapmsg.NewError(msg.Seq, roapmsg.ErrInvalidState))
		return
	}
	fn(msg)
}

func (c *Coordinator) handleInboundError(msg roapmsg.Message) {
	if c.state == StateIdle {
		c.emit(roapmsg.NewError(msg.Seq, roapmsg.ErrInvalidState))
		return
	}
	if msg.Seq != c.seq {
		c.log.Debug("ignoring ERROR for foreign seq", "seq", msg.Seq, "current_seq", c.seq)
		return
	}

	errType := roapmsg.ErrFailed
	if msg.ErrorType != nil {
		errType = *msg.ErrorType
	}

	switch c.state {
	case StateWaitingForAnswer:
		if roapmsg.RetryableErrorTypes[errType] {
			c.handleRetryableError()
			return
		}
		c.terminateRemote(errType)
	case StateSettingRemoteAnswer, StateWaitingForOk:
		// No outstanding local offer to retry against here: we are either
		// finishing as the offerer or we are the answerer. Any ERROR means
		// the peer has given up on this exchange.
		c.terminateRemote(errType)
	default:
		c.emit(roapmsg.NewError(msg.Seq, roapmsg.ErrInvalidState))
	}
}

func (c *Coordinator) handleRetryableError() {
	if c.retryCount >= maxRetries {
		c.terminateRemote(roapmsg.ErrRetry)
		return
	}
	c.retryCount++
	c.seq++
	c.log.Info("retrying offer after retryable ERROR", "attempt", c.retryCount, "seq", c.seq)
	c.state = StateWaitingForAnswer
	c.emit(roapmsg.NewOffer(c.seq, c.lastOfferSDP))
}

func (c *Coordinator) terminateRemote(errType roapmsg.ErrorType) {
	c.log.Warn("terminating negotiation on unrecoverable ERROR", "state", c.state.String(), "error_type", errType)
	c.state = StateRemoteError
	c.raiseFailure()
}

// --- asynchronous pipeline continuations ----------------------------------

func (c *Coordinator) handleAsyncResult(cmd command) {
	if cmd.epoch != c.epoch {
		c.log.Debug("discarding stale async result", "stage", cmd.stage, "result_epoch", cmd.epoch, "current_epoch", c.epoch)
		return
	}
	if cmd.err != nil {
		c.failBrowser(cmd.err)
		return
	}

	switch cmd.stage {
	case stageCreateOffer:
		c.rawSDP = cmd.sdp
		c.state = StateSettingLocalOffer
		sdp := cmd.sdp
		c.runAsync(c.epoch, stageSetLocalOffer, func(ctx context.Context) (string, error) {
			return "", c.pc.SetLocalDescription(ctx, DescriptionOffer, sdp)
		})

	case stageSetLocalOffer:
		raw := c.rawSDP
		c.runAsync(c.epoch, stageMungeOffer, func(ctx context.Context) (string, error) {
			return c.munge(ctx, raw)
		})

	case stageMungeOffer:
		c.lastOfferSDP = cmd.sdp
		c.lastOfferTieBreaker = roapmsg.LocalTieBreaker
		c.state = StateWaitingForAnswer
		if c.exchange == exchangeOfferResponse {
			c.emit(roapmsg.NewOfferResponse(c.seq, cmd.sdp))
		} else {
			c.emit(roapmsg.NewOffer(c.seq, cmd.sdp))
		}

	case stageSetRemoteOffer:
		c.state = StateCreatingLocalAnswer
		c.runAsync(c.epoch, stageCreateAnswer, c.pc.CreateAnswer)

	case stageCreateAnswer:
		c.rawSDP = cmd.sdp
		sdp := cmd.sdp
		c.runAsync(c.epoch, stageSetLocalAnswer, func(ctx context.Context) (string, error) {
			return "", c.pc.SetLocalDescription(ctx, DescriptionAnswer, sdp)
		})

	case stageSetLocalAnswer:
		raw := c.rawSDP
		c.runAsync(c.epoch, stageMungeAnswer, func(ctx context.Context) (string, error) {
			return c.munge(ctx, raw)
		})

	case stageMungeAnswer:
		c.state = StateWaitingForOk
		c.emit(roapmsg.NewAnswer(c.seq, cmd.sdp))

	case stageSetRemoteAnswer:
		c.retryCount = 0
		c.lastCompletedSeq = c.seq
		c.emit(roapmsg.NewOK(c.seq))
		c.returnToIdle()
	}
}

// failBrowser handles rejection of any PeerConnection primitive or Munger
// call, from any state: emit ERROR(FAILED) at the current seq, then
// terminate locally (spec §4.3, §7).
func (c *Coordinator) failBrowser(err error) {
	c.log.Error("peer connection primitive failed, terminating negotiation", "error", err, "state", c.state.String())
	c.emit(roapmsg.NewError(c.seq, roapmsg.ErrFailed))
	c.state = StateBrowserError
	c.raiseFailure()
}

func (c *Coordinator) returnToIdle() {
	c.state = StateIdle
	if c.pendingLocalOffer {
		c.pendingLocalOffer = false
		c.beginLocalOffer(c.lastCompletedSeq + 1)
	}
}
