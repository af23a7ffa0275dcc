package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/sandbox"
	"github.com/wricardo/codequest/game/service"
	"github.com/wricardo/codequest/game/sim"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

const instructions = `CodeQuest - MCP Interface

This is a thin client that proxies all requests to the REST API server.

OBJECTIVE:
Walk the tile world, talk to NPCs and finish their quests. Each quest has a
lesson, a quiz and a coding challenge in Lua. Finishing quests earns XP,
coins and badges; some quests unlock only after others are complete.

HOW TO PLAY:
- create_session, then game_state to see where you are.
- step moves the player: dx/dy are -1, 0 or 1 and duration_ms is how long to
  hold the keys (about 96 pixels per second). blocked_by lists the tiles in
  the way.
- interact talks to an NPC. Without npc_id it talks to whoever is in reach.
- While a quest activity is open the player cannot move. Use advance_lesson,
  answer_quiz, run_code and submit_code to progress, or run_from_quest to
  leave it.
- hint is available after a failed submission.

Use the 'intent' parameter on step to explain your reasoning.`

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"CodeQuest",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
	)

	c.registerTools()
}

func sessionProp() map[string]any {
	return map[string]any{"type": "string", "description": "Session ID"}
}

func sessionTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProp()},
			Required:   []string{"session_id"},
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a game session, or return the running one of the player",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"config_id": map[string]any{
					"type":        "string",
					"description": "World to play (optional, defaults to the default world)",
				},
				"player_id": map[string]any{
					"type":        "string",
					"description": "Player whose save is restored (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(sessionTool("game_state", "Get the current state: position, quests, XP, coins and nearby NPC"), c.handleGameState)

	// Simulation
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step",
		Description: "Hold movement keys for a while and run the simulation",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp(),
				"dx": map[string]any{
					"type":        "integer",
					"enum":        []int{-1, 0, 1},
					"description": "Horizontal direction",
				},
				"dy": map[string]any{
					"type":        "integer",
					"enum":        []int{-1, 0, 1},
					"description": "Vertical direction, 1 is down",
				},
				"duration_ms": map[string]any{
					"type":        "integer",
					"description": "How long to hold the keys, up to 20000",
				},
				"attack": map[string]any{
					"type":        "boolean",
					"description": "Swing on the first tick",
				},
				"intent": map[string]any{
					"type":        "string",
					"description": "Brief explanation of the intent behind this step",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "interact",
		Description: "Talk to an NPC, which starts or resumes its quest",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp(),
				"npc_id": map[string]any{
					"type":        "string",
					"description": "NPC to talk to (optional, defaults to the one in reach)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleInteract)

	// Quests
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_quest",
		Description: "Start or resume a quest by id or name",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp(),
				"quest_id":   map[string]any{"type": "string", "description": "Quest id or name"},
			},
			Required: []string{"session_id", "quest_id"},
		},
	}, c.handleStartQuest)

	c.mcpServer.AddTool(sessionTool("advance_lesson", "Read the next part of the open lesson"), c.handleAdvanceLesson)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "answer_quiz",
		Description: "Answer the open quiz question",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp(),
				"choice":     map[string]any{"type": "integer", "description": "0-based option index"},
			},
			Required: []string{"session_id", "choice"},
		},
	}, c.handleAnswerQuiz)

	codeTool := func(name, description string) mcp.Tool {
		return mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"session_id": sessionProp(),
					"code":       map[string]any{"type": "string", "description": "Lua source"},
				},
				Required: []string{"session_id", "code"},
			},
		}
	}
	c.mcpServer.AddTool(codeTool("run_code", "Run Lua code for the open challenge without submitting it"), c.handleRunCode)
	c.mcpServer.AddTool(codeTool("submit_code", "Submit Lua code as the solution of the open challenge"), c.handleSubmitCode)
	c.mcpServer.AddTool(sessionTool("hint", "Get the hint of the open challenge after a failed submission"), c.handleHint)
	c.mcpServer.AddTool(sessionTool("run_from_quest", "Leave the open quest activity"), c.handleRunFromQuest)

	// World
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "toggle_override",
		Description: "Flip whether a tile blocks movement for everyone in the world (admins only)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProp(),
				"x":          map[string]any{"type": "integer", "description": "Tile column"},
				"y":          map[string]any{"type": "integer", "description": "Tile row"},
				"layer":      map[string]any{"type": "string", "description": "Map layer name"},
			},
			Required: []string{"session_id", "x", "y", "layer"},
		},
	}, c.handleToggleOverride)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_overrides",
		Description: "List the collision overrides of a world",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"world": map[string]any{"type": "string", "description": "World id (optional)"},
			},
		},
	}, c.handleListOverrides)

	// Saves and configuration
	c.mcpServer.AddTool(sessionTool("save_game", "Save the game now"), c.handleSave)
	c.mcpServer.AddTool(sessionTool("delete_save", "Delete the save and start over"), c.handleDeleteSave)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available worlds",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the rules of the game",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiError is an error response of the REST API.
type apiError struct {
	Status   int
	Message  string
	Redirect string
}

func (e *apiError) Error() string {
	if e.Redirect != "" {
		return fmt.Sprintf("%s (sign in again at %s)", e.Message, e.Redirect)
	}
	return e.Message
}

func (c *Client) apiCall(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error    string `json:"error"`
			Redirect string `json:"redirect"`
			Output   string `json:"output"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "" {
			errResp.Error = fmt.Sprintf("API error: %d", resp.StatusCode)
		}
		if errResp.Output != "" {
			errResp.Error += "\nOutput before the error:\n" + errResp.Output
		}
		return &apiError{Status: resp.StatusCode, Message: errResp.Error, Redirect: errResp.Redirect}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads a JSON number argument.
func intArg(args map[string]any, key string) (int, bool) {
	f, ok := args[key].(float64)
	return int(f), ok
}

func sessionPath(args map[string]any, leaf string) string {
	path := "/api/sessions/" + url.PathEscape(stringArg(args, "session_id"))
	if leaf != "" {
		path += "/" + leaf
	}
	return path
}

func textResult(text string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	body := service.CreateSessionRequest{
		ConfigID: stringArg(args, "config_id"),
		PlayerID: stringArg(args, "player_id"),
	}

	var session service.SessionInfo
	err := c.apiCall(ctx, "POST", "/api/sessions", body, &session)
	return textResult(fmt.Sprintf("Created session: %s\nWorld: %s (%s)\nPlayer: %s\n\n%s",
		session.ID, session.WorldName, session.ConfigID, session.PlayerID, formatView(&session.State)), err)
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return textResult("", err)
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		fmt.Fprintf(&result, "- %s (Player: %s, World: %s, Level %d, Created: %s)\n",
			s.ID, s.PlayerID, s.ConfigID, s.State.Progression.Level, s.CreatedAt.Format("15:04:05"))
	}
	return textResult(result.String(), nil)
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var state sim.View
	err := c.apiCall(ctx, "GET", sessionPath(arguments(request), "state"), nil, &state)
	return textResult(formatView(&state), err)
}

func (c *Client) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	dx, _ := intArg(args, "dx")
	dy, _ := intArg(args, "dy")
	duration, _ := intArg(args, "duration_ms")
	attack, _ := args["attack"].(bool)

	body := service.StepRequest{
		Input:      sim.Input{DX: dx, DY: dy, Attack: attack},
		DurationMs: duration,
	}
	var result service.StepResult
	err := c.apiCall(ctx, "POST", sessionPath(args, "step"), body, &result)
	return textResult(formatStepResult(&result), err)
}

func (c *Client) handleInteract(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	body := map[string]string{"npc_id": stringArg(args, "npc_id")}

	var result service.InteractResult
	if err := c.apiCall(ctx, "POST", sessionPath(args, "interact"), body, &result); err != nil {
		return textResult("", err)
	}

	text := "Nobody is in reach."
	if result.Dialogue != nil {
		text = fmt.Sprintf("%s: %s", result.Dialogue.Name, result.Dialogue.Text)
	}
	return textResult(text+"\n\n"+formatView(&result.State), nil)
}

func (c *Client) action(ctx context.Context, path string, body any) (*mcp.CallToolResult, error) {
	var result service.ActionResult
	err := c.apiCall(ctx, "POST", path, body, &result)
	return textResult(formatActionResult(&result), err)
}

func (c *Client) handleStartQuest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	return c.action(ctx, sessionPath(args, "quests/"+url.PathEscape(stringArg(args, "quest_id"))+"/start"), nil)
}

func (c *Client) handleAdvanceLesson(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.action(ctx, sessionPath(arguments(request), "lesson/advance"), nil)
}

func (c *Client) handleAnswerQuiz(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	choice, ok := intArg(args, "choice")
	if !ok {
		return mcp.NewToolResultError("choice is required"), nil
	}
	return c.action(ctx, sessionPath(args, "quiz/answer"), map[string]int{"choice": choice})
}

func (c *Client) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	var result sandbox.Result
	err := c.apiCall(ctx, "POST", sessionPath(args, "challenge/run"), map[string]string{"code": stringArg(args, "code")}, &result)
	return textResult("Output:\n"+result.Output, err)
}

func (c *Client) handleSubmitCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	return c.action(ctx, sessionPath(args, "challenge/submit"), map[string]string{"code": stringArg(args, "code")})
}

func (c *Client) handleHint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var result struct {
		Hint string `json:"hint"`
	}
	err := c.apiCall(ctx, "GET", sessionPath(arguments(request), "challenge/hint"), nil, &result)
	return textResult("Hint: "+result.Hint, err)
}

func (c *Client) handleRunFromQuest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var result service.ActionResult
	err := c.apiCall(ctx, "DELETE", sessionPath(arguments(request), "activity"), nil, &result)
	return textResult("You ran away. The quest can be resumed later.\n\n"+formatView(&result.State), err)
}

func (c *Client) handleToggleOverride(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	x, _ := intArg(args, "x")
	y, _ := intArg(args, "y")
	body := map[string]any{"x": x, "y": y, "layer": stringArg(args, "layer")}

	var result service.OverrideResult
	err := c.apiCall(ctx, "POST", sessionPath(args, "overrides"), body, &result)
	state := "open"
	if result.Blocking {
		state = "blocking"
	}
	return textResult(fmt.Sprintf("Tile (%d,%d) on %s is now %s in %s",
		result.Tile.X, result.Tile.Y, result.Tile.Layer, state, result.World), err)
}

func (c *Client) handleListOverrides(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	world := stringArg(arguments(request), "world")
	if world == "" {
		world = config.DefaultWorld
	}

	var payload gateway.OverridesPayload
	if err := c.apiCall(ctx, "GET", "/api/worlds/"+url.PathEscape(world)+"/overrides", nil, &payload); err != nil {
		return textResult("", err)
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Overrides in %s (%d):\n", world, len(payload.Overrides))
	for _, e := range payload.Overrides {
		fmt.Fprintf(&result, "- %s (%d,%d) blocking=%t\n", e.Layer, e.X, e.Y, e.Blocking)
	}
	return textResult(result.String(), nil)
}

func (c *Client) handleSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	err := c.apiCall(ctx, "POST", sessionPath(arguments(request), "save"), nil, nil)
	return textResult("Game saved.", err)
}

func (c *Client) handleDeleteSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Message string    `json:"message"`
		State   *sim.View `json:"state"`
	}
	err := c.apiCall(ctx, "DELETE", sessionPath(arguments(request), "save"), nil, &response)
	return textResult(fmt.Sprintf("%s\n\n%s", response.Message, formatView(response.State)), err)
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []config.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return textResult("", err)
	}

	var result strings.Builder
	result.WriteString("Available Worlds:\n\n")
	for _, cfg := range configs {
		fmt.Fprintf(&result, "• %s (%s)\n  %s\n  Map: %dx%d tiles, Quests: %d, NPCs: %d\n\n",
			cfg.Name, cfg.ConfigID, cfg.Description, cfg.Width, cfg.Height, cfg.Quests, cfg.NPCs)
	}
	return textResult(result.String(), nil)
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

// Formatting

func formatView(v *sim.View) string {
	if v == nil {
		return "No game state available"
	}

	var b strings.Builder
	p := v.Progression
	fmt.Fprintf(&b, "Player %s in %s at (%.1f,%.1f) facing %s\n",
		v.PlayerID, v.World, v.Player.Position.X, v.Player.Position.Y, v.Player.Facing)
	fmt.Fprintf(&b, "Level %d | XP %d (next level at %d) | Coins %d\n", p.Level, p.Experience, p.NextLevel, p.Coins)
	if len(p.Badges) > 0 {
		fmt.Fprintf(&b, "Badges: %s\n", strings.Join(p.Badges, ", "))
	}
	if v.NearbyNPC != nil {
		fmt.Fprintf(&b, "In reach: %s (%s)\n", v.NearbyNPC.Name, v.NearbyNPC.ID)
	}
	if v.Dialogue != nil {
		fmt.Fprintf(&b, "%s says: %s\n", v.Dialogue.Name, v.Dialogue.Text)
	}
	if a := v.Activity; a != nil {
		b.WriteString(formatActivity(a))
	}

	if len(v.Quests) > 0 {
		b.WriteString("\nQuests:\n")
		for _, q := range v.Quests {
			fmt.Fprintf(&b, "- %s (%s): %s\n", q.Name, q.ID, q.State)
		}
	}
	if len(v.Rewards) > 0 {
		b.WriteString("\nRewards to pick up:\n")
		for _, r := range v.Rewards {
			fmt.Fprintf(&b, "- %s at (%.0f,%.0f): %d coins\n", r.ID, r.X, r.Y, r.Coins)
		}
	}
	for _, n := range v.Notices {
		fmt.Fprintf(&b, "\n! %s", n)
	}
	if v.Reauth {
		b.WriteString("\nThe session expired. Sign in again and create a new session.")
	}
	return b.String()
}

func formatActivity(a *quest.Activity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nOpen activity: %s (%s)\n", a.QuestName, a.Stage)
	switch a.Stage {
	case quest.StageLesson:
		fmt.Fprintf(&b, "Part %d/%d\n%s\n", a.Part+1, a.Parts, a.LessonText)
		if a.LessonCode != "" {
			fmt.Fprintf(&b, "```lua\n%s\n```\n", a.LessonCode)
		}
	case quest.StageQuiz:
		fmt.Fprintf(&b, "Question %d/%d: %s\n", a.Question+1, a.Questions, a.Prompt)
		for i, o := range a.Options {
			fmt.Fprintf(&b, "  %d) %s\n", i, o)
		}
	case quest.StageChallenge:
		fmt.Fprintf(&b, "%s\n", a.Description)
		if a.StarterCode != "" {
			fmt.Fprintf(&b, "Starter code:\n```lua\n%s\n```\n", a.StarterCode)
		}
		if a.Failures > 0 {
			fmt.Fprintf(&b, "Failed submissions: %d (a hint is available)\n", a.Failures)
		}
	}
	return b.String()
}

func formatStepResult(r *service.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ran %d ticks: (%.1f,%.1f) -> (%.1f,%.1f), moved %.1f px\n",
		r.Ticks, r.StartPos.X, r.StartPos.Y, r.EndPos.X, r.EndPos.Y, r.Moved)
	if len(r.BlockedBy) > 0 {
		b.WriteString("Blocked by:")
		for _, k := range r.BlockedBy {
			fmt.Fprintf(&b, " %s(%d,%d)", k.Layer, k.X, k.Y)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + formatView(&r.State))
	return b.String()
}

func formatActionResult(r *service.ActionResult) string {
	var b strings.Builder
	if r.Correct != nil {
		if *r.Correct {
			b.WriteString("Correct!\n")
		} else {
			b.WriteString("Not quite.\n")
		}
	}
	if s := r.Submission; s != nil {
		if s.Passed {
			b.WriteString("Challenge passed!\n")
		} else {
			fmt.Fprintf(&b, "Challenge not passed: %s\n", s.Reason)
		}
		if s.Output != "" {
			fmt.Fprintf(&b, "Output:\n%s\n", s.Output)
		}
	}
	if r.QuestState != "" {
		fmt.Fprintf(&b, "Quest state: %s\n", r.QuestState)
	}
	b.WriteString("\n" + formatView(&r.State))
	return b.String()
}
