package service

import (
	"context"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/sandbox"
	"github.com/wricardo/codequest/game/session"
	"github.com/wricardo/codequest/game/sim"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Simulation
	Step(ctx context.Context, sessionID string, req StepRequest) (*StepResult, error)
	SetInput(ctx context.Context, sessionID string, in sim.Input) error
	GetState(ctx context.Context, sessionID string) (*sim.View, error)
	Interact(ctx context.Context, sessionID, npcID string) (*InteractResult, error)

	// Quests
	StartQuest(ctx context.Context, sessionID, questID string) (*ActionResult, error)
	AdvanceLesson(ctx context.Context, sessionID string) (*ActionResult, error)
	AnswerQuiz(ctx context.Context, sessionID string, choice int) (*ActionResult, error)
	RunChallenge(ctx context.Context, sessionID, code string) (*sandbox.Result, error)
	SubmitChallenge(ctx context.Context, sessionID, code string) (*ActionResult, error)
	Hint(ctx context.Context, sessionID string) (string, error)
	RunFromQuest(ctx context.Context, sessionID string) (*ActionResult, error)

	// World
	ToggleOverride(ctx context.Context, sessionID string, key overrides.TileKey) (*OverrideResult, error)
	ListOverrides(ctx context.Context, worldID string) ([]gateway.OverrideEntry, error)

	// Persistence
	Save(ctx context.Context, sessionID string) error
	DeleteSave(ctx context.Context, sessionID string) (*sim.View, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*config.ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*config.WorldConfig, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(ctx context.Context, id, player string, world *config.World) (*session.Session, error)
	Get(id string) (*session.Session, error)
	FindByPlayer(player, world string) (*session.Session, bool)
	List() []*session.Session
	Delete(ctx context.Context, id string) error
	Overrides(ctx context.Context, world *config.World) (*overrides.Store, error)
}

// ConfigManager handles world configuration loading
type ConfigManager interface {
	LoadConfig(name string) (*config.World, error)
	ListConfigs() ([]*config.ConfigInfo, error)
	GetDefault() *config.World
}
