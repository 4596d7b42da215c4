package quiz

import (
	"errors"
	"sort"
	"time"

	"k8s.io/utils/set"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// Phase is the quiz state machine phase.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseStart       Phase = "start"
	PhaseQuestion    Phase = "question"
	PhaseLock        Phase = "lock"
	PhaseResult      Phase = "result"
	PhaseWaitingNext Phase = "waiting-next"
	PhaseEnded       Phase = "ended"
)

// Quiz command errors, surfaced verbatim on ack replies.
var (
	ErrNotActive         = errors.New("quiz is not active")
	ErrAlreadyActive     = errors.New("quiz already active")
	ErrQuestionNotOpen   = errors.New("question is not open")
	ErrQuestionOpen      = errors.New("question is already open")
	ErrNoPrevQuestion    = errors.New("no previous question")
	ErrNoMoreQuestions   = errors.New("no more questions")
	ErrNoPlayablePlayers = errors.New("no playable players")
	ErrWaitingAdmission  = errors.New("players waiting admission")
	ErrInvalidConfig     = errors.New("invalid question config")
)

// End reasons.
const (
	EndReasonWinner     = "winner"
	EndReasonEliminated = "eliminated"
	EndReasonCompleted  = "completed"
	EndReasonPlayerLeft = "player-left"
	EndReasonStopped    = "stopped"
)

// Timing. All deferred work is scheduled through the Arena so callbacks run
// under the room's serialization.
const (
	prepareDelay       = 3200 * time.Millisecond
	defaultNextDelay   = 3200 * time.Millisecond
	minNextDelay       = 1200 * time.Millisecond
	autoStartDelay     = 3 * time.Second
	minAutoStartDelay  = 2 * time.Second
	restartDelay       = 9 * time.Second
	DefaultLockSeconds = 15
	MinLockSeconds     = 3
	MaxLockSeconds     = 60
)

// Participant is the engine's view of one room member at a point in time.
type Participant struct {
	ID       types.ClientIdType
	Name     types.DisplayNameType
	X        float64
	Z        float64
	Alive    bool
	Score    int
	Host     bool
	Admitted bool
	Queued   bool
}

// Arena is the room surface the engine drives. All methods are called with
// the room's serialization held; Schedule must run its callback under the
// same serialization and return a cancel func.
type Arena interface {
	Participants() []Participant
	ResetForStart()
	Award(id types.ClientIdType, choice types.ChoiceType)
	Eliminate(id types.ClientIdType, choice types.ChoiceType, reason string)
	Broadcast(event types.Event, payload any)
	Schedule(d time.Duration, fn func()) (cancel func())
}

// Config is the host-tunable quiz configuration.
type Config struct {
	Questions   []Question `json:"questions"`
	LockSeconds int        `json:"lockSeconds"`
	AutoMode    bool       `json:"autoMode"`
	AutoFinish  bool       `json:"autoFinish"`
	MinPlayers  int        `json:"minPlayers"`
}

// DefaultConfig enables auto mode over the fallback bank.
func DefaultConfig() Config {
	return Config{
		Questions:   FallbackBank(),
		LockSeconds: DefaultLockSeconds,
		AutoMode:    true,
		AutoFinish:  true,
		MinPlayers:  1,
	}
}

// --- Wire payloads ---

type AutoCountdownPayload struct {
	StartsAt   int64 `json:"startsAt"`
	DelayMs    int64 `json:"delayMs"`
	Players    int   `json:"players"`
	MinPlayers int   `json:"minPlayers"`
}

type StartPayload struct {
	TotalQuestions int   `json:"totalQuestions"`
	PrepareMs      int64 `json:"prepareMs"`
	StartedAt      int64 `json:"startedAt"`
}

type QuestionPayload struct {
	Index       int    `json:"index"` // 1-based
	Total       int    `json:"total"`
	ID          string `json:"id"`
	Text        string `json:"text"`
	LockAt      int64  `json:"lockAt"`
	LockSeconds int    `json:"lockSeconds"`
}

type LockPayload struct {
	Index int `json:"index"`
}

type EliminatedPlayer struct {
	ID     types.ClientIdType `json:"id"`
	Choice types.ChoiceType   `json:"choice"`
	Reason string             `json:"reason"`
	X      float64            `json:"x"`
	Z      float64            `json:"z"`
}

type ResultPayload struct {
	Answer              types.ChoiceType     `json:"answer"`
	Index               int                  `json:"index"` // 1-based
	SurvivorCount       int                  `json:"survivorCount"`
	CorrectPlayerIDs    []types.ClientIdType `json:"correctPlayerIds"`
	EliminatedPlayerIDs []types.ClientIdType `json:"eliminatedPlayerIds"`
	EliminatedPlayers   []EliminatedPlayer   `json:"eliminatedPlayers"`
}

type ScoreEntry struct {
	ID    types.ClientIdType    `json:"id"`
	Name  types.DisplayNameType `json:"name"`
	Score int                   `json:"score"`
	Alive bool                  `json:"alive"`
}

type ScorePayload struct {
	Leaderboard    []ScoreEntry `json:"leaderboard"`
	Survivors      int          `json:"survivors"`
	Phase          Phase        `json:"phase"`
	QuestionIndex  int          `json:"questionIndex"`
	TotalQuestions int          `json:"totalQuestions"`
	Active         bool         `json:"active"`
}

type EndPayload struct {
	Reason    string               `json:"reason"`
	WinnerIDs []types.ClientIdType `json:"winnerIds,omitempty"`
	EndedAt   int64                `json:"endedAt"`
}

// StatePayload is the full machine state for quiz:state and config reads.
type StatePayload struct {
	Active         bool   `json:"active"`
	Phase          Phase  `json:"phase"`
	AutoMode       bool   `json:"autoMode"`
	AutoFinish     bool   `json:"autoFinish"`
	AutoStartsAt   int64  `json:"autoStartsAt,omitempty"`
	HostID         string `json:"hostId,omitempty"`
	StartedAt      int64  `json:"startedAt,omitempty"`
	EndedAt        int64  `json:"endedAt,omitempty"`
	QuestionIndex  int    `json:"questionIndex"` // -1 before first
	TotalQuestions int    `json:"totalQuestions"`
	LockSeconds    int    `json:"lockSeconds"`
	LockAt         int64  `json:"lockAt,omitempty"`
}

// Engine is the per-room quiz state machine. Methods are not self-locking:
// the owning room serializes all calls, including timer callbacks (which
// the Arena re-enters under the room's serialization).
type Engine struct {
	arena Arena
	cfg   Config
	zones ZoneSet

	active    bool
	phase     Phase
	hostID    types.ClientIdType
	startedAt int64
	endedAt   int64

	questionIndex  int // -1 before the first question
	questions      []Question
	startSurvivors int
	runHostID      types.ClientIdType
	endReason      string

	lockAt       int64
	autoStartsAt int64

	cancelAutoStart func()
	cancelLock      func()
	cancelNext      func()
	cancelPrepare   func()
	cancelRestart   func()

	lastResult *ResultPayload

	now func() time.Time
}

// NewEngine returns an idle engine bound to its room.
func NewEngine(arena Arena, cfg Config) *Engine {
	if cfg.LockSeconds < MinLockSeconds || cfg.LockSeconds > MaxLockSeconds {
		cfg.LockSeconds = DefaultLockSeconds
	}
	if cfg.MinPlayers < 1 {
		cfg.MinPlayers = 1
	}
	if len(cfg.Questions) == 0 {
		cfg.Questions = FallbackBank()
	}
	return &Engine{
		arena:         arena,
		cfg:           cfg,
		zones:         DefaultZones(),
		phase:         PhaseIdle,
		questionIndex: -1,
		now:           time.Now,
	}
}

// Active reports whether a quiz run is in progress.
func (e *Engine) Active() bool { return e.active }

// Phase returns the current machine phase.
func (e *Engine) CurrentPhase() Phase { return e.phase }

// AutoStartsAt returns the pending auto-start time in unix millis, 0 if none.
func (e *Engine) AutoStartsAt() int64 { return e.autoStartsAt }

// Zones returns the judging layout.
func (e *Engine) Zones() ZoneSet { return e.zones }

// SetZones replaces the judging layout. Only allowed while idle.
func (e *Engine) SetZones(zs ZoneSet) {
	if !e.active {
		e.zones = zs
	}
}

// State returns the snapshot used by quiz:state.
func (e *Engine) State() StatePayload {
	return StatePayload{
		Active:         e.active,
		Phase:          e.phase,
		AutoMode:       e.cfg.AutoMode,
		AutoFinish:     e.cfg.AutoFinish,
		AutoStartsAt:   e.autoStartsAt,
		HostID:         string(e.hostID),
		StartedAt:      e.startedAt,
		EndedAt:        e.endedAt,
		QuestionIndex:  e.questionIndex,
		TotalQuestions: len(e.questions),
		LockSeconds:    e.cfg.LockSeconds,
		LockAt:         e.lockAt,
	}
}

// ConfigSnapshot returns the current configuration for quiz:config:get.
func (e *Engine) ConfigSnapshot() Config { return e.cfg }

// ApplyConfig sanitizes and installs a new configuration. Rejected while a
// run is active.
func (e *Engine) ApplyConfig(questions []QuestionConfig, lockSeconds int, autoMode, autoFinish bool, minPlayers int) error {
	if e.active {
		return ErrAlreadyActive
	}
	if len(questions) == 0 {
		return ErrInvalidConfig
	}
	sanitized := SanitizeQuestions(questions)
	e.cfg.Questions = sanitized
	if lockSeconds != 0 {
		if lockSeconds < MinLockSeconds {
			lockSeconds = MinLockSeconds
		} else if lockSeconds > MaxLockSeconds {
			lockSeconds = MaxLockSeconds
		}
		e.cfg.LockSeconds = lockSeconds
	}
	e.cfg.AutoMode = autoMode
	e.cfg.AutoFinish = autoFinish
	if minPlayers >= 1 {
		e.cfg.MinPlayers = minPlayers
	}
	if !autoMode {
		e.cancelAutoStartTimer()
	} else {
		e.MaybeScheduleAutoStart()
	}
	return nil
}

// playableCount counts admitted players. The host counts here (a solo
// host can run the quiz) but is exempt from judging.
func (e *Engine) playableCount() int {
	n := 0
	for _, p := range e.arena.Participants() {
		if p.Admitted {
			n++
		}
	}
	return n
}

// queuedCount counts players still waiting on the entry gate.
func (e *Engine) queuedCount() int {
	n := 0
	for _, p := range e.arena.Participants() {
		if p.Queued {
			n++
		}
	}
	return n
}

// Start begins a run at the host's request.
func (e *Engine) Start(hostID types.ClientIdType) error {
	if e.active {
		return ErrAlreadyActive
	}
	if e.queuedCount() > 0 {
		return ErrWaitingAdmission
	}
	if e.playableCount() < e.cfg.MinPlayers {
		return ErrNoPlayablePlayers
	}
	e.begin(hostID)
	return nil
}

// begin transitions idle/ended -> start and schedules the first question.
func (e *Engine) begin(hostID types.ClientIdType) {
	e.cancelAllTimers()
	now := e.now().UnixMilli()

	e.active = true
	e.phase = PhaseStart
	e.hostID = hostID
	e.startedAt = now
	e.endedAt = 0
	e.endReason = ""
	e.questionIndex = -1
	e.autoStartsAt = 0
	e.lastResult = nil
	e.questions = append([]Question(nil), e.cfg.Questions...)

	e.arena.ResetForStart()
	// Judging exemption is pinned to whoever holds host at run start, so a
	// mid-run succession never turns a survivor into a bystander.
	e.runHostID = ""
	e.startSurvivors = 0
	for _, p := range e.arena.Participants() {
		if p.Host {
			e.runHostID = p.ID
		}
	}
	for _, p := range e.arena.Participants() {
		if p.Alive && p.Admitted && !e.judgingExempt(p) {
			e.startSurvivors++
		}
	}

	e.arena.Broadcast(types.EventQuizStarted, StartPayload{
		TotalQuestions: len(e.questions),
		PrepareMs:      prepareDelay.Milliseconds(),
		StartedAt:      now,
	})
	e.broadcastScore()

	e.cancelPrepare = e.arena.Schedule(prepareDelay, func() {
		e.cancelPrepare = nil
		if !e.active || e.phase != PhaseStart {
			return
		}
		e.openQuestion(0)
	})
}

// Stop aborts the run at the host's request.
func (e *Engine) Stop() error {
	if !e.active {
		return ErrNotActive
	}
	e.finish(EndReasonStopped)
	return nil
}

// Next advances to the next question, skipping the waiting-next timer.
func (e *Engine) Next() error {
	if !e.active {
		return ErrNotActive
	}
	if e.phase == PhaseQuestion || e.phase == PhaseLock {
		return ErrQuestionOpen
	}
	if e.questionIndex+1 >= len(e.questions) {
		return ErrNoMoreQuestions
	}
	e.cancelNextTimer()
	e.openQuestion(e.questionIndex + 1)
	return nil
}

// Prev reopens the previous question for review.
func (e *Engine) Prev() error {
	if !e.active {
		return ErrNotActive
	}
	if e.phase == PhaseQuestion || e.phase == PhaseLock {
		return ErrQuestionOpen
	}
	if e.questionIndex <= 0 {
		return ErrNoPrevQuestion
	}
	e.cancelNextTimer()
	e.openQuestion(e.questionIndex - 1)
	return nil
}

// ForceLock closes the open question immediately.
func (e *Engine) ForceLock() error {
	if !e.active {
		return ErrNotActive
	}
	if e.phase != PhaseQuestion {
		return ErrQuestionNotOpen
	}
	e.cancelLockTimer()
	e.lock()
	return nil
}

func (e *Engine) openQuestion(index int) {
	q := e.questions[index]
	now := e.now().UnixMilli()

	e.phase = PhaseQuestion
	e.questionIndex = index
	e.lockAt = now + int64(e.cfg.LockSeconds)*1000

	e.arena.Broadcast(types.EventQuizQuestion, QuestionPayload{
		Index:       index + 1,
		Total:       len(e.questions),
		ID:          q.ID,
		Text:        q.Text,
		LockAt:      e.lockAt,
		LockSeconds: e.cfg.LockSeconds,
	})

	e.broadcastScore()

	e.cancelLock = e.arena.Schedule(time.Duration(e.cfg.LockSeconds)*time.Second, func() {
		e.cancelLock = nil
		if !e.active || e.phase != PhaseQuestion {
			return
		}
		e.lock()
	})
}

// lock freezes the question, judges every alive player's zone and moves to
// result. Evaluation is synchronous.
func (e *Engine) lock() {
	e.phase = PhaseLock
	e.arena.Broadcast(types.EventQuizLock, LockPayload{Index: e.questionIndex + 1})
	e.broadcastScore()
	e.evaluate()
}

func (e *Engine) evaluate() {
	q := e.questions[e.questionIndex]

	correct := set.New[string]()
	var eliminatedIDs []types.ClientIdType
	var eliminated []EliminatedPlayer
	survivors := 0

	for _, p := range e.arena.Participants() {
		if !p.Alive || e.judgingExempt(p) {
			continue
		}
		choice, reason := e.zones.Judge(p.X, p.Z)
		if choice == q.Answer {
			e.arena.Award(p.ID, choice)
			correct.Insert(string(p.ID))
			survivors++
			continue
		}
		e.arena.Eliminate(p.ID, choice, reason)
		eliminatedIDs = append(eliminatedIDs, p.ID)
		eliminated = append(eliminated, EliminatedPlayer{
			ID:     p.ID,
			Choice: choice,
			Reason: reason,
			X:      p.X,
			Z:      p.Z,
		})
	}

	correctIDs := make([]types.ClientIdType, 0, correct.Len())
	for _, id := range correct.SortedList() {
		correctIDs = append(correctIDs, types.ClientIdType(id))
	}

	result := ResultPayload{
		Answer:              q.Answer,
		Index:               e.questionIndex + 1,
		SurvivorCount:       survivors,
		CorrectPlayerIDs:    correctIDs,
		EliminatedPlayerIDs: eliminatedIDs,
		EliminatedPlayers:   eliminated,
	}

	e.phase = PhaseResult
	e.lastResult = &result
	e.arena.Broadcast(types.EventQuizResult, result)
	e.broadcastScore()
	metrics.QuizRounds.WithLabelValues("judged").Inc()

	switch {
	case survivors == 1 && e.startSurvivors > 1:
		e.finish(EndReasonWinner)
	case survivors == 0 && e.startSurvivors > 0:
		e.finish(EndReasonEliminated)
	case e.questionIndex+1 >= len(e.questions):
		e.finish(EndReasonCompleted)
	default:
		e.phase = PhaseWaitingNext
		delay := defaultNextDelay
		if delay < minNextDelay {
			delay = minNextDelay
		}
		next := e.questionIndex + 1
		e.cancelNext = e.arena.Schedule(delay, func() {
			e.cancelNext = nil
			if !e.active || e.phase != PhaseWaitingNext {
				return
			}
			e.openQuestion(next)
		})
	}
}

// finish ends the run and, in auto mode, arms the restart cycle.
func (e *Engine) finish(reason string) {
	e.cancelAllTimers()
	now := e.now().UnixMilli()

	var winners []types.ClientIdType
	for _, p := range e.arena.Participants() {
		if p.Alive && p.Admitted && !e.judgingExempt(p) {
			winners = append(winners, p.ID)
		}
	}

	e.active = false
	e.phase = PhaseEnded
	e.endedAt = now
	e.endReason = reason
	e.lockAt = 0

	e.arena.Broadcast(types.EventQuizEnd, EndPayload{
		Reason:    reason,
		WinnerIDs: winners,
		EndedAt:   now,
	})
	e.broadcastScore()
	metrics.QuizRounds.WithLabelValues("ended").Inc()

	if e.cfg.AutoMode {
		e.cancelRestart = e.arena.Schedule(restartDelay, func() {
			e.cancelRestart = nil
			if e.active || e.phase != PhaseEnded {
				return
			}
			e.phase = PhaseIdle
			e.questionIndex = -1
			e.MaybeScheduleAutoStart()
		})
	}
}

// MaybeScheduleAutoStart arms the auto-start countdown when preconditions
// hold: auto mode, idle, enough players, no pending countdown.
func (e *Engine) MaybeScheduleAutoStart() {
	if !e.cfg.AutoMode || e.active || e.phase == PhaseEnded || e.cancelAutoStart != nil {
		return
	}
	players := e.playableCount()
	if players < e.cfg.MinPlayers {
		return
	}

	delay := autoStartDelay
	if delay < minAutoStartDelay {
		delay = minAutoStartDelay
	}
	e.autoStartsAt = e.now().Add(delay).UnixMilli()

	e.arena.Broadcast(types.EventQuizAutoCountdown, AutoCountdownPayload{
		StartsAt:   e.autoStartsAt,
		DelayMs:    delay.Milliseconds(),
		Players:    players,
		MinPlayers: e.cfg.MinPlayers,
	})

	e.cancelAutoStart = e.arena.Schedule(delay, func() {
		e.cancelAutoStart = nil
		e.autoStartsAt = 0
		// Re-check preconditions: the roster may have drained during the
		// countdown.
		if e.active || e.playableCount() < e.cfg.MinPlayers || e.queuedCount() > 0 {
			e.MaybeScheduleAutoStart()
			return
		}
		e.begin(e.hostID)
	})
}

// OnRosterChange reconciles the machine after any join/leave/kick.
func (e *Engine) OnRosterChange() {
	if !e.active {
		e.broadcastScore()
		e.MaybeScheduleAutoStart()
		return
	}
	if e.phase == PhaseStart || e.phase == PhaseEnded {
		return
	}
	survivors := 0
	for _, p := range e.arena.Participants() {
		if p.Alive && p.Admitted && !e.judgingExempt(p) {
			survivors++
		}
	}
	// Solo runs never end on roster noise; multiplayer runs collapse to
	// their last survivor.
	if survivors <= 1 && e.startSurvivors > 1 {
		e.finish(EndReasonPlayerLeft)
		return
	}
	e.broadcastScore()
}

// HostChanged records the new host. A run in progress keeps judging by the
// host it started with, so the successor stays a live contestant.
func (e *Engine) HostChanged(hostID types.ClientIdType) {
	e.hostID = hostID
}

// judgingExempt reports whether p sits out judging and the leaderboard.
// During a run only the run-start host is exempt; outside one, the current
// host flag decides.
func (e *Engine) judgingExempt(p Participant) bool {
	if e.active || e.phase == PhaseEnded {
		return p.ID == e.runHostID
	}
	return p.Host
}

// SnapshotFor replays the event sequence a late joiner needs to
// reconstruct quiz UI state. send delivers directly to that connection.
func (e *Engine) SnapshotFor(send func(event types.Event, payload any)) {
	if e.autoStartsAt > 0 {
		send(types.EventQuizAutoCountdown, AutoCountdownPayload{
			StartsAt:   e.autoStartsAt,
			DelayMs:    e.autoStartsAt - e.now().UnixMilli(),
			Players:    e.playableCount(),
			MinPlayers: e.cfg.MinPlayers,
		})
	}
	if !e.active && e.phase != PhaseEnded {
		return
	}
	if e.active {
		send(types.EventQuizStarted, StartPayload{
			TotalQuestions: len(e.questions),
			StartedAt:      e.startedAt,
		})
	}
	if e.phase == PhaseQuestion {
		q := e.questions[e.questionIndex]
		send(types.EventQuizQuestion, QuestionPayload{
			Index:       e.questionIndex + 1,
			Total:       len(e.questions),
			ID:          q.ID,
			Text:        q.Text,
			LockAt:      e.lockAt,
			LockSeconds: e.cfg.LockSeconds,
		})
	}
	if e.lastResult != nil {
		send(types.EventQuizResult, *e.lastResult)
	}
	send(types.EventQuizScore, e.scorePayload())
	if e.phase == PhaseEnded {
		send(types.EventQuizEnd, EndPayload{Reason: e.endReason, EndedAt: e.endedAt})
	}
}

// Shutdown cancels every pending timer. Called when the room is destroyed.
func (e *Engine) Shutdown() {
	e.cancelAllTimers()
}

func (e *Engine) scorePayload() ScorePayload {
	participants := e.arena.Participants()
	entries := make([]ScoreEntry, 0, len(participants))
	survivors := 0
	for _, p := range participants {
		if !p.Admitted || e.judgingExempt(p) {
			continue
		}
		entries = append(entries, ScoreEntry{ID: p.ID, Name: p.Name, Score: p.Score, Alive: p.Alive})
		if p.Alive {
			survivors++
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Alive != entries[j].Alive {
			return entries[i].Alive
		}
		return entries[i].Name < entries[j].Name
	})
	return ScorePayload{
		Leaderboard:    entries,
		Survivors:      survivors,
		Phase:          e.phase,
		QuestionIndex:  e.questionIndex,
		TotalQuestions: len(e.questions),
		Active:         e.active,
	}
}

func (e *Engine) broadcastScore() {
	e.arena.Broadcast(types.EventQuizScore, e.scorePayload())
}

func (e *Engine) cancelAutoStartTimer() {
	if e.cancelAutoStart != nil {
		e.cancelAutoStart()
		e.cancelAutoStart = nil
	}
	e.autoStartsAt = 0
}

func (e *Engine) cancelLockTimer() {
	if e.cancelLock != nil {
		e.cancelLock()
		e.cancelLock = nil
	}
}

func (e *Engine) cancelNextTimer() {
	if e.cancelNext != nil {
		e.cancelNext()
		e.cancelNext = nil
	}
}

func (e *Engine) cancelAllTimers() {
	e.cancelAutoStartTimer()
	e.cancelLockTimer()
	e.cancelNextTimer()
	if e.cancelPrepare != nil {
		e.cancelPrepare()
		e.cancelPrepare = nil
	}
	if e.cancelRestart != nil {
		e.cancelRestart()
		e.cancelRestart = nil
	}
}
