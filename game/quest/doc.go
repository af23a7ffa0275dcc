// Package quest holds the quest curriculum and the per-player progression
// state machine.
//
// The quest package implements:
//   - Catalog: the immutable quest registry loaded from curriculum YAML, with
//     a legacy-name alias table
//   - Runtime: the state machine that moves each quest through
//     Locked → Unlocked → Lesson → Quiz → Challenge → Completed
//   - Challenge evaluation of player code through an Evaluator (the sandbox)
//
// Prerequisites:
//
// A quest lists prerequisite aliases. It unlocks as soon as ANY one of them
// names a completed quest. An alias that matches no quest in the catalog is
// treated as satisfied and logged, so a typo in a curriculum never locks a
// player out. A quest without prerequisites starts unlocked.
//
// Stages:
//
// Interact opens the first stage the quest has and the player has not
// finished. Stages a quest lacks are skipped, and a quest with no content
// completes on its first interaction. Only one stage is open at a time
// across all quests.
//
//   - Lesson: AdvanceLesson pages through the parts. The last page awards the
//     lesson experience once (marker "lesson_<id>") and sets progress to 50%.
//   - Quiz: AnswerQuiz awards experience and coins for a right answer and
//     deducts a penalty (never below zero) for a wrong one. Either way the
//     quiz moves to the next question.
//   - Challenge: RunChallenge shows output; SubmitChallenge checks it. A
//     failed submission unlocks Hint.
//
// RunFromQuest closes the open stage with no reward and no penalty.
//
// Completion moves the quest from the active to the completed set, grants the
// quest reward and badge, and updates the quest-count milestones. A quest
// completes at most once.
//
// Curriculum format:
//
//	rules:
//	  lesson_xp: 25
//	aliases:
//	  "Hello World Quest": hello
//	quests:
//	  - id: hello
//	    name: Hello World
//	    prerequisites: []
//	    reward: {xp: 50, coins: 10, badge: first_words}
//	    lesson:
//	      parts:
//	        - text: print writes a line
//	          code: print("hi")
//	    quiz:
//	      questions:
//	        - question: What writes a line?
//	          options: [print, echo]
//	          correct: 0
//	    challenge:
//	      description: Print Hello, World!
//	      starter_code: "-- your code"
//	      hint: Use print
//	      reward: {xp: 30, coins: 5}
//	      validation:
//	        output_contains: ["Hello, World!"]
package quest
