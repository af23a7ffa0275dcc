package quest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/ledger"
	"github.com/wricardo/codequest/game/sandbox"
)

var (
	ErrUnknownQuest       = errors.New("unknown quest")
	ErrQuestLocked        = errors.New("quest is locked")
	ErrActivityInProgress = errors.New("another quest activity is open")
	ErrNoActivity         = errors.New("no quest activity is open")
	ErrWrongStage         = errors.New("action does not match the open stage")
	ErrInvalidChoice      = errors.New("answer index out of range")
	ErrHintUnavailable    = errors.New("no hint available")
)

// State is the progression state of one quest for one player.
type State string

const (
	StateLocked          State = "locked"
	StateUnlocked        State = "unlocked"
	StateLessonActive    State = "lesson"
	StateQuizActive      State = "quiz"
	StateChallengeActive State = "challenge"
	StateCompleted       State = "completed"
)

// Stage is a content stage of a quest.
type Stage string

const (
	StageLesson    Stage = "lesson"
	StageQuiz      Stage = "quiz"
	StageChallenge Stage = "challenge"
)

func (s Stage) state() State {
	switch s {
	case StageLesson:
		return StateLessonActive
	case StageQuiz:
		return StateQuizActive
	case StageChallenge:
		return StateChallengeActive
	}
	return StateUnlocked
}

// Progress is the per-quest progress record.
type Progress struct {
	LessonComplete  bool `json:"lessonComplete"`
	QuizComplete    bool `json:"quizComplete"`
	ProgressPercent int  `json:"progressPercent"`
}

// Sets is the persisted progression of a player.
type Sets struct {
	ActiveQuests    []string            `json:"activeQuests"`
	CompletedQuests []string            `json:"completedQuests"`
	InteractedNPCs  []string            `json:"interactedNPCs"`
	QuestProgress   map[string]Progress `json:"questProgress"`
}

// EventKind names a runtime transition.
type EventKind string

const (
	EventStarted   EventKind = "quest_started"
	EventStage     EventKind = "stage_entered"
	EventAnswered  EventKind = "quiz_answered"
	EventSubmitted EventKind = "challenge_submitted"
	EventAborted   EventKind = "quest_aborted"
	EventCompleted EventKind = "quest_completed"
)

// Event is one queued transition.
type Event struct {
	Kind    EventKind `json:"kind"`
	QuestID string    `json:"questId"`
	Stage   Stage     `json:"stage,omitempty"`
	Correct bool      `json:"correct,omitempty"`
	Reward  *Reward   `json:"reward,omitempty"`
}

// Activity describes the open stage and the content it shows.
type Activity struct {
	QuestID   string `json:"questId"`
	QuestName string `json:"questName"`
	Stage     Stage  `json:"stage"`

	Part       int    `json:"part,omitempty"`
	Parts      int    `json:"parts,omitempty"`
	LessonText string `json:"lessonText,omitempty"`
	LessonCode string `json:"lessonCode,omitempty"`

	Question  int      `json:"question,omitempty"`
	Questions int      `json:"questions,omitempty"`
	Prompt    string   `json:"prompt,omitempty"`
	Options   []string `json:"options,omitempty"`

	Description string `json:"description,omitempty"`
	StarterCode string `json:"starterCode,omitempty"`
	Code        string `json:"code,omitempty"`
	Failures    int    `json:"failures,omitempty"`
}

type activity struct {
	quest    *Quest
	stage    Stage
	index    int
	code     string
	failures int
}

// Runtime advances a player through a catalog's quests. One activity is open
// at a time. It is owned by one simulation context and is not safe for
// concurrent use.
type Runtime struct {
	catalog   *Catalog
	ledger    *ledger.Ledger
	evaluator Evaluator

	active     map[string]struct{}
	completed  map[string]struct{}
	interacted map[string]struct{}
	progress   map[string]*Progress

	current *activity
	events  []Event
}

// NewRuntime creates a runtime with no progress.
func NewRuntime(catalog *Catalog, l *ledger.Ledger, evaluator Evaluator) *Runtime {
	r := &Runtime{catalog: catalog, ledger: l, evaluator: evaluator}
	r.Reset()
	return r
}

// Reset drops all progress and closes any open activity.
func (r *Runtime) Reset() {
	r.active = make(map[string]struct{})
	r.completed = make(map[string]struct{})
	r.interacted = make(map[string]struct{})
	r.progress = make(map[string]*Progress)
	r.current = nil
	r.events = nil
}

// Catalog returns the catalog the runtime plays.
func (r *Runtime) Catalog() *Catalog { return r.catalog }

// State returns the state of a quest, by id or legacy name.
func (r *Runtime) State(idOrName string) (State, error) {
	q, ok := r.catalog.Lookup(idOrName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownQuest, idOrName)
	}
	return r.stateOf(q), nil
}

func (r *Runtime) stateOf(q *Quest) State {
	if r.isCompleted(q.ID) {
		return StateCompleted
	}
	if r.current != nil && r.current.quest.ID == q.ID {
		return r.current.stage.state()
	}
	if r.unlocked(q) {
		return StateUnlocked
	}
	return StateLocked
}

// unlocked applies the prerequisite rule: no prerequisites, or any one alias
// completed. An alias that names no quest counts as satisfied.
func (r *Runtime) unlocked(q *Quest) bool {
	if len(q.Prerequisites) == 0 {
		return true
	}
	for _, alias := range q.Prerequisites {
		id, known := r.catalog.Resolve(alias)
		if !known {
			log.WithFields(log.Fields{"quest": q.ID, "prerequisite": alias}).Warn("Unknown prerequisite treated as satisfied")
			return true
		}
		if r.isCompleted(id) {
			return true
		}
	}
	return false
}

// Interact starts or resumes a quest. Interacting with a completed quest
// changes nothing.
func (r *Runtime) Interact(idOrName string) (State, error) {
	q, ok := r.catalog.Lookup(idOrName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownQuest, idOrName)
	}
	if r.isCompleted(q.ID) {
		return StateCompleted, nil
	}
	if r.current != nil {
		if r.current.quest.ID == q.ID {
			return r.current.stage.state(), nil
		}
		return r.stateOf(q), ErrActivityInProgress
	}
	if !r.unlocked(q) {
		return StateLocked, ErrQuestLocked
	}

	if _, started := r.active[q.ID]; !started {
		r.active[q.ID] = struct{}{}
		r.emit(Event{Kind: EventStarted, QuestID: q.ID})
	}
	r.enterAfter(q, "")
	return r.stateOf(q), nil
}

// enterAfter opens the first unfinished stage following after, or completes
// the quest when none remains.
func (r *Runtime) enterAfter(q *Quest, after Stage) {
	p := r.progressFor(q.ID)
	order := []Stage{StageLesson, StageQuiz, StageChallenge}

	start := 0
	for i, s := range order {
		if s == after {
			start = i + 1
		}
	}
	for _, s := range order[start:] {
		switch {
		case s == StageLesson && q.HasLesson() && !p.LessonComplete,
			s == StageQuiz && q.HasQuiz() && !p.QuizComplete,
			s == StageChallenge && q.HasChallenge():
			r.current = &activity{quest: q, stage: s}
			if s == StageChallenge {
				r.current.code = q.Challenge.StarterCode
			}
			r.emit(Event{Kind: EventStage, QuestID: q.ID, Stage: s})
			return
		}
	}
	r.complete(q)
}

// AdvanceLesson moves to the next lesson part. Finishing the last part
// awards the lesson experience once and opens the next stage.
func (r *Runtime) AdvanceLesson() (State, error) {
	a, err := r.open(StageLesson)
	if err != nil {
		return "", err
	}
	a.index++
	if a.index < len(a.quest.Lesson.Parts) {
		return StateLessonActive, nil
	}

	q := a.quest
	p := r.progressFor(q.ID)
	p.LessonComplete = true
	if p.ProgressPercent < 50 {
		p.ProgressPercent = 50
	}
	if r.MarkInteracted("lesson_" + q.ID) {
		r.ledger.AwardExperience(r.catalog.Rules().LessonXP)
	}
	r.current = nil
	r.enterAfter(q, StageLesson)
	return r.stateOf(q), nil
}

// AnswerQuiz answers the open question. Right or wrong, the quiz moves on.
// A correct answer pays out once per question, so a quiz restarted after
// RunFromQuest cannot be replayed for rewards.
func (r *Runtime) AnswerQuiz(choice int) (bool, State, error) {
	a, err := r.open(StageQuiz)
	if err != nil {
		return false, "", err
	}
	question := a.quest.Quiz.Questions[a.index]
	if choice < 0 || choice >= len(question.Options) {
		return false, StateQuizActive, ErrInvalidChoice
	}

	rules := r.catalog.Rules()
	correct := choice == question.Correct
	if correct && r.MarkInteracted(fmt.Sprintf("quiz_%s_%d", a.quest.ID, a.index)) {
		r.ledger.AwardExperience(rules.QuizCorrectXP)
		r.ledger.AwardCoins(rules.QuizCorrectCoins)
	} else if !correct {
		r.ledger.DeductExperience(rules.QuizPenalty)
	}
	r.emit(Event{Kind: EventAnswered, QuestID: a.quest.ID, Stage: StageQuiz, Correct: correct})

	a.index++
	if a.index < len(a.quest.Quiz.Questions) {
		return correct, StateQuizActive, nil
	}

	q := a.quest
	r.progressFor(q.ID).QuizComplete = true
	r.current = nil
	r.enterAfter(q, StageQuiz)
	return correct, r.stateOf(q), nil
}

// RunChallenge executes code for the open challenge and returns its output.
// It never changes the quest state.
func (r *Runtime) RunChallenge(ctx context.Context, code string) (sandbox.Result, error) {
	a, err := r.open(StageChallenge)
	if err != nil {
		return sandbox.Result{}, err
	}
	a.code = code
	return r.evaluator.Run(ctx, code)
}

// SubmitChallenge runs code and checks it against the challenge predicate.
// A pass awards the challenge reward and completes the quest; a failure
// leaves everything as it was and makes the hint available.
func (r *Runtime) SubmitChallenge(ctx context.Context, code string) (SubmitResult, error) {
	a, err := r.open(StageChallenge)
	if err != nil {
		return SubmitResult{}, err
	}
	a.code = code
	q := a.quest

	res, runErr := r.evaluator.Run(ctx, code)
	if ctx.Err() != nil {
		return SubmitResult{}, ctx.Err()
	}

	var reason string
	if runErr != nil {
		reason = runErr.Error()
	} else {
		reason = q.Challenge.Validation.check(res.Output, code)
	}
	if reason == "" && q.Challenge.Validation.Lua != "" {
		ok, err := r.evaluator.Validate(ctx, q.Challenge.Validation.Lua, res.Output, code)
		switch {
		case err != nil:
			return SubmitResult{}, fmt.Errorf("failed to validate challenge %s: %w", q.ID, err)
		case !ok:
			reason = "the output does not solve the challenge yet"
		}
	}

	passed := reason == ""
	r.emit(Event{Kind: EventSubmitted, QuestID: q.ID, Stage: StageChallenge, Correct: passed})
	if !passed {
		a.failures++
		return SubmitResult{Output: res.Output, Reason: reason, State: StateChallengeActive}, nil
	}

	r.ledger.AddCodeLines(countLines(code))
	r.ledger.AwardExperience(q.Challenge.Reward.XP)
	r.ledger.AwardCoins(q.Challenge.Reward.Coins)
	r.ledger.AwardBadge(q.Challenge.Reward.Badge)
	r.current = nil
	r.complete(q)
	return SubmitResult{Passed: true, Output: res.Output, State: StateCompleted}, nil
}

// Hint returns the challenge hint once a submission has failed.
func (r *Runtime) Hint() (string, error) {
	a, err := r.open(StageChallenge)
	if err != nil {
		return "", err
	}
	if a.failures == 0 || a.quest.Challenge.Hint == "" {
		return "", ErrHintUnavailable
	}
	return a.quest.Challenge.Hint, nil
}

// RunFromQuest abandons the open activity without reward or penalty. The
// quest stays started and can be resumed by interacting again.
func (r *Runtime) RunFromQuest() error {
	if r.current == nil {
		return ErrNoActivity
	}
	q := r.current.quest
	stage := r.current.stage
	r.current = nil
	r.emit(Event{Kind: EventAborted, QuestID: q.ID, Stage: stage})
	return nil
}

// complete moves a quest to the completed set and grants its reward. It does
// nothing for a quest that is already complete.
func (r *Runtime) complete(q *Quest) {
	if r.isCompleted(q.ID) {
		return
	}
	delete(r.active, q.ID)
	r.completed[q.ID] = struct{}{}
	r.progressFor(q.ID).ProgressPercent = 100
	if r.current != nil && r.current.quest.ID == q.ID {
		r.current = nil
	}

	r.ledger.AwardExperience(q.Reward.XP)
	r.ledger.AwardCoins(q.Reward.Coins)
	r.ledger.AwardBadge(q.Reward.Badge)
	r.ledger.RecordQuestsCompleted(len(r.completed))

	reward := q.Reward
	r.emit(Event{Kind: EventCompleted, QuestID: q.ID, Reward: &reward})
}

func (r *Runtime) open(stage Stage) (*activity, error) {
	if r.current == nil {
		return nil, ErrNoActivity
	}
	if r.current.stage != stage {
		return nil, fmt.Errorf("%w: open stage is %s", ErrWrongStage, r.current.stage)
	}
	return r.current, nil
}

// Current describes the open activity.
func (r *Runtime) Current() (Activity, bool) {
	a := r.current
	if a == nil {
		return Activity{}, false
	}
	out := Activity{QuestID: a.quest.ID, QuestName: a.quest.Name, Stage: a.stage}
	switch a.stage {
	case StageLesson:
		part := a.quest.Lesson.Parts[a.index]
		out.Part, out.Parts = a.index, len(a.quest.Lesson.Parts)
		out.LessonText, out.LessonCode = part.Text, part.Code
	case StageQuiz:
		question := a.quest.Quiz.Questions[a.index]
		out.Question, out.Questions = a.index, len(a.quest.Quiz.Questions)
		out.Prompt = question.Question
		out.Options = append([]string(nil), question.Options...)
	case StageChallenge:
		out.Description = a.quest.Challenge.Description
		out.StarterCode = a.quest.Challenge.StarterCode
		out.Code = a.code
		out.Failures = a.failures
	}
	return out, true
}

// Progress returns the progress record of a quest.
func (r *Runtime) Progress(id string) Progress {
	if p, ok := r.progress[id]; ok {
		return *p
	}
	return Progress{}
}

func (r *Runtime) progressFor(id string) *Progress {
	p, ok := r.progress[id]
	if !ok {
		p = &Progress{}
		r.progress[id] = p
	}
	return p
}

func (r *Runtime) isCompleted(id string) bool {
	_, ok := r.completed[id]
	return ok
}

// IsActive reports whether a quest was started and not yet completed.
func (r *Runtime) IsActive(id string) bool {
	_, ok := r.active[id]
	return ok
}

// MarkInteracted records a one-time marker. It returns false if the marker
// was already set.
func (r *Runtime) MarkInteracted(marker string) bool {
	if _, ok := r.interacted[marker]; ok {
		return false
	}
	r.interacted[marker] = struct{}{}
	return true
}

// Interacted reports whether a marker is set.
func (r *Runtime) Interacted(marker string) bool {
	_, ok := r.interacted[marker]
	return ok
}

// CompletedCount returns the number of completed quests.
func (r *Runtime) CompletedCount() int { return len(r.completed) }

// Sets returns the persisted form of the runtime.
func (r *Runtime) Sets() Sets {
	progress := make(map[string]Progress, len(r.progress))
	for id, p := range r.progress {
		progress[id] = *p
	}
	return Sets{
		ActiveQuests:    keys(r.active),
		CompletedQuests: keys(r.completed),
		InteractedNPCs:  keys(r.interacted),
		QuestProgress:   progress,
	}
}

// Restore replaces the runtime's progress. A quest listed as both active and
// completed is kept as completed.
func (r *Runtime) Restore(s Sets) {
	r.Reset()
	for _, id := range s.CompletedQuests {
		if id != "" {
			r.completed[id] = struct{}{}
		}
	}
	for _, id := range s.ActiveQuests {
		if id != "" && !r.isCompleted(id) {
			r.active[id] = struct{}{}
		}
	}
	for _, m := range s.InteractedNPCs {
		if m != "" {
			r.interacted[m] = struct{}{}
		}
	}
	for id, p := range s.QuestProgress {
		r.progress[id] = &p
	}
}

// QuestView is a catalog entry with the player's state.
type QuestView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	State    State    `json:"state"`
	Progress Progress `json:"progress"`
}

// Overview lists every quest with its state, in catalog order.
func (r *Runtime) Overview() []QuestView {
	quests := r.catalog.Quests()
	out := make([]QuestView, 0, len(quests))
	for _, q := range quests {
		out = append(out, QuestView{ID: q.ID, Name: q.Name, State: r.stateOf(q), Progress: r.Progress(q.ID)})
	}
	return out
}

// TakeEvents returns and clears the queued events.
func (r *Runtime) TakeEvents() []Event {
	events := r.events
	r.events = nil
	return events
}

func (r *Runtime) emit(ev Event) { r.events = append(r.events, ev) }

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
