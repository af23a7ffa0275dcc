package quest

// Rules are the fixed amounts awarded by the lesson and quiz stages.
type Rules struct {
	LessonXP         uint64 `yaml:"lesson_xp" json:"lessonXp"`
	QuizCorrectXP    uint64 `yaml:"quiz_correct_xp" json:"quizCorrectXp"`
	QuizCorrectCoins uint64 `yaml:"quiz_correct_coins" json:"quizCorrectCoins"`
	QuizPenalty      uint64 `yaml:"quiz_penalty" json:"quizPenalty"`
}

// DefaultRules returns the amounts used when a curriculum sets none.
func DefaultRules() Rules {
	return Rules{
		LessonXP:         25,
		QuizCorrectXP:    10,
		QuizCorrectCoins: 5,
		QuizPenalty:      15,
	}
}

// Reward is a fixed grant of experience, coins and an optional badge.
type Reward struct {
	XP    uint64 `yaml:"xp" json:"xp"`
	Coins uint64 `yaml:"coins" json:"coins"`
	Badge string `yaml:"badge,omitempty" json:"badge,omitempty"`
}

// LessonPart is one page of dialogue with an optional code sample.
type LessonPart struct {
	Text string `yaml:"text" json:"text"`
	Code string `yaml:"code,omitempty" json:"code,omitempty"`
}

// Lesson is an ordered sequence of parts.
type Lesson struct {
	Parts []LessonPart `yaml:"parts" json:"parts"`
}

// Question is a single-choice quiz question.
type Question struct {
	Question string   `yaml:"question" json:"question"`
	Options  []string `yaml:"options" json:"options"`
	Correct  int      `yaml:"correct" json:"-"`
}

// Quiz is an ordered sequence of questions.
type Quiz struct {
	Questions []Question `yaml:"questions" json:"questions"`
}

// Validation is the predicate a challenge submission must satisfy. Every
// non-empty clause must hold.
type Validation struct {
	OutputContains []string `yaml:"output_contains,omitempty"`
	OutputEquals   string   `yaml:"output_equals,omitempty"`
	SourceContains []string `yaml:"source_contains,omitempty"`
	SourceExcludes []string `yaml:"source_excludes,omitempty"`
	MinOutputLines int      `yaml:"min_output_lines,omitempty"`
	// Lua is a script defining validate(output, source) -> bool.
	Lua string `yaml:"lua,omitempty"`
}

// IsEmpty reports whether no clause is set.
func (v Validation) IsEmpty() bool {
	return len(v.OutputContains) == 0 && v.OutputEquals == "" &&
		len(v.SourceContains) == 0 && len(v.SourceExcludes) == 0 &&
		v.MinOutputLines == 0 && v.Lua == ""
}

// Challenge is a coding exercise.
type Challenge struct {
	Description string     `yaml:"description" json:"description"`
	StarterCode string     `yaml:"starter_code" json:"starterCode"`
	Hint        string     `yaml:"hint,omitempty" json:"-"`
	Reward      Reward     `yaml:"reward" json:"reward"`
	Validation  Validation `yaml:"validation" json:"-"`
}

// Quest is one entry of a curriculum.
type Quest struct {
	ID            string     `yaml:"id" json:"id"`
	Name          string     `yaml:"name" json:"name"`
	Prerequisites []string   `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
	Reward        Reward     `yaml:"reward" json:"reward"`
	Lesson        *Lesson    `yaml:"lesson,omitempty" json:"lesson,omitempty"`
	Quiz          *Quiz      `yaml:"quiz,omitempty" json:"quiz,omitempty"`
	Challenge     *Challenge `yaml:"challenge,omitempty" json:"challenge,omitempty"`
}

// HasLesson reports whether the quest has lesson content.
func (q *Quest) HasLesson() bool { return q.Lesson != nil && len(q.Lesson.Parts) > 0 }

// HasQuiz reports whether the quest has quiz content.
func (q *Quest) HasQuiz() bool { return q.Quiz != nil && len(q.Quiz.Questions) > 0 }

// HasChallenge reports whether the quest has a challenge.
func (q *Quest) HasChallenge() bool { return q.Challenge != nil }

// Curriculum is the file format of a catalog.
type Curriculum struct {
	Rules   Rules             `yaml:"rules"`
	Aliases map[string]string `yaml:"aliases,omitempty"`
	Quests  []Quest           `yaml:"quests"`
}
