// Package match runs a chess game between two model-backed players.
//
// A Match advances strictly one ply at a time. Model calls are the only
// blocking points; everything else is pure computation over immutable
// positions. Observers receive copies through Subscribe or Snapshot and can
// never reach the live state.
package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/llm"
	"github.com/park285/llm-chess-arena/internal/matchlog"
	"github.com/park285/llm-chess-arena/internal/moveparse"
	"github.com/park285/llm-chess-arena/internal/position"
	"github.com/park285/llm-chess-arena/internal/prompt"
	"github.com/park285/llm-chess-arena/internal/retry"
	"github.com/park285/llm-chess-arena/internal/validate"
)

const (
	defaultMaxPlies       = 500
	defaultRetryBudget    = 3
	defaultProviderBudget = 2
	defaultCallTimeout    = 60 * time.Second
)

// Config is the match-level configuration.
type Config struct {
	ID       string
	Event    string
	StartFEN string
	// MaxPlies forces a draw once this many plies have been played.
	MaxPlies       int
	ProviderBudget int
	ClaimDraws     bool

	Prompts *prompt.Builder
	Retry   retry.Coordinator
	Logger  *zap.Logger
}

// Match owns one game. Create with New, drive with Run.
type Match struct {
	cfg    Config
	white  Player
	black  Player
	log    *matchlog.Log
	logger *zap.Logger

	mu      sync.RWMutex
	state   State
	started bool
	seq     int
	subs    map[int]chan Event
	nextSub int
	resign  *position.Color
	cancel  context.CancelFunc
}

// New validates the configuration and returns a match in its initial state.
func New(cfg Config, white, black Player) (*Match, error) {
	for _, p := range []*Player{&white, &black} {
		if p.Client == nil {
			return nil, fmt.Errorf("%w: missing model client", ErrInvalidPlayer)
		}
		if p.RetryBudget <= 0 {
			p.RetryBudget = defaultRetryBudget
		}
		if p.CallTimeout <= 0 {
			p.CallTimeout = defaultCallTimeout
		}
		if p.Clock < 0 {
			return nil, fmt.Errorf("%w: negative clock", ErrInvalidPlayer)
		}
	}
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = defaultMaxPlies
	}
	if cfg.ProviderBudget <= 0 {
		cfg.ProviderBudget = defaultProviderBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Prompts == nil {
		cat, err := prompt.NewCatalog("")
		if err != nil {
			return nil, err
		}
		cfg.Prompts = prompt.NewBuilder(cat)
	}

	start, err := position.New(cfg.StartFEN, position.WithClaimDraws(cfg.ClaimDraws))
	if err != nil {
		return nil, err
	}

	m := &Match{
		cfg:    cfg,
		white:  white,
		black:  black,
		log:    matchlog.New(),
		logger: cfg.Logger.With(zap.String("match_id", cfg.ID)),
		subs:   make(map[int]chan Event),
	}
	m.state = State{
		ID:        cfg.ID,
		Position:  start,
		Active:    start.Turn(),
		Status:    StatusInProgress,
		Phase:     PhaseAwaitingMove,
		Ply:       1,
		UpdatedAt: time.Now(),
	}
	for c, p := range map[position.Color]Player{position.White: white, position.Black: black} {
		if p.Clock > 0 {
			if m.state.Clocks == nil {
				m.state.Clocks = make(map[position.Color]time.Duration)
			}
			m.state.Clocks[c] = p.Clock
		}
	}
	return m, nil
}

func (m *Match) ID() string         { return m.cfg.ID }
func (m *Match) Log() *matchlog.Log { return m.log }

// Player returns the configuration of side c.
func (m *Match) Player(c position.Color) Player {
	if c == position.White {
		return m.white
	}
	return m.black
}

// Snapshot returns a copy of the current state.
func (m *Match) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe registers an observer. The channel is closed once the match
// terminates or the returned cancel func is called. A subscriber that falls
// more than buf events behind loses events; Snapshot is always current.
func (m *Match) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Event, buf)
	m.mu.Lock()
	if m.state.Status.Terminal() {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
			m.mu.Unlock()
		})
	}
}

// Resign ends the match in favour of the other side at the next opportunity.
// An in-flight model call has its context cancelled; the transport returns as
// soon as it observes the cancellation.
func (m *Match) Resign(c position.Color) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status.Terminal() {
		return ErrMatchOver
	}
	if m.resign == nil {
		m.resign = &c
	}
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// PGN exports the game so far.
func (m *Match) PGN() (string, error) {
	st := m.Snapshot()
	event := m.cfg.Event
	if event == "" {
		event = "LLM Chess Arena"
	}
	term := string(st.Status)
	if st.Detail != "" {
		term += ": " + st.Detail
	}
	return m.log.PGN(matchlog.Header{
		Event:       event,
		Site:        m.cfg.ID,
		Date:        st.UpdatedAt,
		White:       m.white.label(),
		Black:       m.black.label(),
		Result:      st.Result(),
		Termination: term,
		StartFEN:    m.cfg.StartFEN,
	})
}

// Run plays the match to completion. It returns an error only when the match
// is aborted or the position layer reports an invariant violation; every other
// outcome, forfeits included, is a normal return with the final state.
func (m *Match) Run(ctx context.Context) (State, error) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return m.Snapshot(), ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info("match_started",
		zap.String("white", m.white.label()),
		zap.String("black", m.black.label()),
		zap.String("fen", m.Snapshot().Position.FEN()))

	var feedback *prompt.Feedback
	st := m.Snapshot()
	if term := st.Position.TerminalStatus(); term != position.TerminalNone {
		m.emit(PhaseCheckingTermination, nil)
		m.conclude(term, st.Active.Opponent())
		return m.Snapshot(), nil
	}
	m.emit(PhaseAwaitingMove, nil)
	for {
		if err := m.step(ctx, &feedback); err != nil {
			return m.Snapshot(), err
		}
		if st := m.Snapshot(); st.Status.Terminal() {
			return st, nil
		}
	}
}

// step performs one model call and resolves it into a state transition.
func (m *Match) step(ctx context.Context, feedback **prompt.Feedback) error {
	st := m.Snapshot()

	if c, ok := m.pendingResign(); ok {
		m.finish(StatusForfeit, "", winnerPtr(c.Opponent()), DetailResignation, nil)
		return nil
	}
	if len(st.History) >= m.cfg.MaxPlies {
		m.finish(StatusDrawByRule, "", nil, DetailMaxPlies, nil)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return m.abort(err)
	}

	side := st.Active
	player := m.Player(side)
	payload, err := m.cfg.Prompts.Build(st.Position, st.History, prompt.Player{Color: side, Persona: player.Persona}, *feedback)
	if err != nil {
		return m.abort(fmt.Errorf("build prompt: %w", err))
	}

	timeout := player.CallTimeout
	remaining, timed := st.Clocks[side]
	if timed && remaining < timeout {
		timeout = remaining
	}
	iterCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	if m.resign != nil {
		cancel()
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		m.mu.Unlock()
		cancel()
	}()

	started := time.Now()
	callCtx, cancelCall := context.WithTimeout(iterCtx, timeout)
	raw, callErr := player.Client.Call(callCtx, payload)
	elapsed := time.Since(started)
	cancelCall()

	if c, ok := m.pendingResign(); ok {
		m.finish(StatusForfeit, "", winnerPtr(c.Opponent()), DetailResignation, nil)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return m.abort(err)
	}
	if timed {
		left := m.chargeClock(side, elapsed)
		if left <= 0 {
			m.logger.Info("match_lost_on_time", zap.String("side", string(side)), zap.Duration("elapsed", elapsed))
			m.finish(StatusForfeit, "", winnerPtr(side.Opponent()), DetailLostOnTime, nil)
			return nil
		}
	}

	if callErr != nil {
		return m.providerFailure(iterCtx, ctx, side, callErr)
	}

	entry := matchlog.Entry{
		Ply:     st.Ply,
		Actor:   side,
		Model:   player.Client.Model(),
		Raw:     raw.Text,
		Retry:   st.Attempts,
		Latency: elapsed,
		At:      time.Now(),
	}

	m.emit(PhaseParsing, nil)
	cand, err := moveparse.Parse(raw.Text)
	if err != nil {
		entry.Outcome = matchlog.OutcomeMalformed
		entry.Detail = err.Error()
		*feedback = &prompt.Feedback{Attempt: st.Attempts + 1, Malformed: true, Detail: err.Error()}
		return m.moveFailure(retry.FailureMalformed, side, player, entry)
	}
	entry.Candidate = cand.Text
	entry.Explanation = cand.Explanation
	entry.Confidence, entry.HasConfidence = cand.Confidence, cand.HasConfidence

	if cand.Kind == moveparse.KindResign {
		entry.Outcome = matchlog.OutcomeResigned
		if err := m.log.Append(entry); err != nil {
			return m.fatal(fmt.Errorf("%w: %v", position.ErrInvariant, err))
		}
		m.logger.Info("match_model_resigned", zap.String("side", string(side)))
		m.finish(StatusForfeit, "", winnerPtr(side.Opponent()), DetailResignation, &entry)
		return nil
	}

	m.emit(PhaseValidating, nil)
	mv, err := validate.Validate(cand, st.Position)
	if err != nil {
		var ime *position.IllegalMoveError
		if !errors.As(err, &ime) {
			return m.fatal(fmt.Errorf("%w: validate: %v", position.ErrInvariant, err))
		}
		entry.Outcome = matchlog.OutcomeIllegal
		entry.Reason = ime.Reason
		entry.Detail = ime.Detail
		*feedback = &prompt.Feedback{
			Attempt: st.Attempts + 1,
			Move:    ime.Move,
			Reason:  ime.Reason,
			Detail:  ime.Detail,
		}
		return m.moveFailure(retry.FailureIllegal, side, player, entry)
	}

	m.emit(PhaseApplying, nil)
	next, err := st.Position.Apply(mv)
	if err != nil {
		return m.fatal(fmt.Errorf("%w: apply %s: %v", position.ErrInvariant, mv.UCI, err))
	}
	entry.Outcome = matchlog.OutcomeAccepted
	entry.Move = &mv
	if err := m.log.Append(entry); err != nil {
		return m.fatal(fmt.Errorf("%w: %v", position.ErrInvariant, err))
	}
	*feedback = nil

	m.mu.Lock()
	m.state.Position = next
	m.state.History = append(m.state.History, mv)
	m.state.Attempts = 0
	m.state.ProviderAttempts = 0
	m.mu.Unlock()
	m.logger.Info("match_ply_applied",
		zap.Int("ply", st.Ply),
		zap.String("side", string(side)),
		zap.String("san", mv.SAN),
		zap.String("uci", mv.UCI),
		zap.Int("retry", entry.Retry),
		zap.Duration("latency", elapsed))
	m.emit(PhaseCheckingTermination, &entry)

	if term := next.TerminalStatus(); term != position.TerminalNone {
		m.conclude(term, side)
		return nil
	}
	m.mu.Lock()
	m.state.Active = next.Turn()
	m.state.Ply++
	m.mu.Unlock()
	m.emit(PhaseAwaitingMove, nil)
	return nil
}

// conclude finishes a match the rules have ended. mover is the side that
// delivered mate, if term is a mate.
func (m *Match) conclude(term position.Terminal, mover position.Color) {
	switch term {
	case position.TerminalCheckmate:
		m.finish(StatusCheckmate, term, winnerPtr(mover), "", nil)
	case position.TerminalStalemate:
		m.finish(StatusStalemate, term, nil, "", nil)
	default:
		m.finish(StatusDrawByRule, term, nil, strings.ReplaceAll(string(term), "_", " "), nil)
	}
}

func (m *Match) moveFailure(kind retry.FailureKind, side position.Color, player Player, entry matchlog.Entry) error {
	if err := m.log.Append(entry); err != nil {
		return m.fatal(fmt.Errorf("%w: %v", position.ErrInvariant, err))
	}
	m.mu.Lock()
	m.state.Attempts++
	attempt := m.state.Attempts
	m.mu.Unlock()

	d := m.cfg.Retry.OnFailure(kind, attempt, player.RetryBudget)
	m.logger.Info("match_move_rejected",
		zap.Int("ply", entry.Ply),
		zap.String("side", string(side)),
		zap.String("kind", string(kind)),
		zap.String("candidate", entry.Candidate),
		zap.String("reason", string(entry.Reason)),
		zap.Int("attempt", attempt),
		zap.Int("budget", player.RetryBudget),
		zap.String("action", string(d.Action)))

	if d.Action == retry.ActionForfeit {
		detail := fmt.Sprintf("%s: %d failed attempts", retry.ErrRetryExhausted, attempt)
		m.finish(StatusForfeit, "", winnerPtr(side.Opponent()), detail, &entry)
		return nil
	}
	m.emit(PhaseAwaitingMove, &entry)
	return nil
}

func (m *Match) providerFailure(iterCtx, ctx context.Context, side position.Color, callErr error) error {
	kind, err := retry.Classify(callErr)
	if err != nil {
		kind = retry.FailureTransport
	}
	m.mu.Lock()
	m.state.ProviderAttempts++
	attempt := m.state.ProviderAttempts
	m.mu.Unlock()

	d := m.cfg.Retry.OnFailure(kind, attempt, m.cfg.ProviderBudget)
	m.logger.Warn("match_provider_failure",
		zap.String("side", string(side)),
		zap.String("kind", string(kind)),
		zap.Int("attempt", attempt),
		zap.Int("budget", m.cfg.ProviderBudget),
		zap.String("action", string(d.Action)),
		zap.Error(callErr))

	if d.Action != retry.ActionRetryAfterBackoff {
		return m.abort(callErr)
	}
	delay := d.Delay
	var pe *llm.ProviderError
	if errors.As(callErr, &pe) && pe.RetryAfter > delay {
		delay = pe.RetryAfter
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-iterCtx.Done():
		if ctx.Err() != nil {
			return m.abort(ctx.Err())
		}
	}
	m.emit(PhaseAwaitingMove, nil)
	return nil
}

func (m *Match) chargeClock(side position.Color, elapsed time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	left := m.state.Clocks[side] - elapsed
	if left < 0 {
		left = 0
	}
	m.state.Clocks[side] = left
	return left
}

func (m *Match) pendingResign() (position.Color, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.resign == nil {
		return "", false
	}
	return *m.resign, true
}

func (m *Match) abort(cause error) error {
	m.logger.Warn("match_aborted", zap.Error(cause))
	m.finish(StatusAborted, "", nil, cause.Error(), nil)
	return fmt.Errorf("%w: match %s: %w", ErrAborted, m.cfg.ID, cause)
}

func (m *Match) fatal(err error) error {
	m.logger.Error("match_invariant_violation", zap.Error(err))
	m.finish(StatusAborted, "", nil, err.Error(), nil)
	return err
}

// finish moves the match into its terminal state exactly once. entry, when
// set, was appended to the log by this transition. Otherwise the final event
// carries the last logged entry, if any, marked as already delivered.
func (m *Match) finish(status Status, term position.Terminal, winner *position.Color, detail string, entry *matchlog.Entry) {
	m.mu.Lock()
	if m.state.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	m.state.Status = status
	m.state.Terminal = term
	m.state.Winner = winner
	m.state.Detail = detail
	m.mu.Unlock()
	m.log.Freeze()

	st := m.Snapshot()
	fields := []zap.Field{zap.String("status", string(status)), zap.String("result", st.Result()), zap.Int("plies", len(st.History))}
	if detail != "" {
		fields = append(fields, zap.String("detail", detail))
	}
	m.logger.Info("match_finished", fields...)

	if entry != nil {
		m.emit(PhaseTerminated, entry)
	} else if last, ok := m.log.Last(); ok {
		m.publish(PhaseTerminated, &last, false)
	} else {
		m.emit(PhaseTerminated, nil)
	}
	m.mu.Lock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	m.mu.Unlock()
}

// emit records the phase and fans a snapshot out to subscribers without
// blocking. A non-nil entry is one the transition just appended to the log.
func (m *Match) emit(phase Phase, entry *matchlog.Entry) {
	m.publish(phase, entry, entry != nil)
}

func (m *Match) publish(phase Phase, entry *matchlog.Entry, appended bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Phase = phase
	m.state.UpdatedAt = time.Now()
	m.seq++
	ev := Event{Seq: m.seq, Phase: phase, State: m.state.clone(), At: m.state.UpdatedAt, Appended: appended}
	if entry != nil {
		e := *entry
		if e.Move != nil {
			mv := *e.Move
			e.Move = &mv
		}
		ev.Entry = &e
	}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Warn("match_event_dropped", zap.Int("seq", ev.Seq), zap.String("phase", string(phase)))
		}
	}
}

func winnerPtr(c position.Color) *position.Color { return &c }
