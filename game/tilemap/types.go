package tilemap

// Layer is one named plane of tile ids in row-major order.
type Layer struct {
	Name string `json:"name"`
	Data []int  `json:"data"`
}

// Point is a pixel position in world space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NPC places a quest giver in the world.
type NPC struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	QuestID string  `json:"quest_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// Reward places a one-time pickup in the world.
type Reward struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Coins uint64  `json:"coins"`
	XP    uint64  `json:"xp,omitempty"`
}

// Definition is the serialised form of a map.
type Definition struct {
	Width               int      `json:"width"`
	Height              int      `json:"height"`
	TileWidth           int      `json:"tile_width"`
	TileHeight          int      `json:"tile_height"`
	Bounded             bool     `json:"bounded"`
	Layers              []Layer  `json:"layers"`
	NonCollidableLayers []string `json:"non_collidable_layers,omitempty"`
	Spawn               Point    `json:"spawn"`
	NPCs                []NPC    `json:"npcs,omitempty"`
	Rewards             []Reward `json:"rewards,omitempty"`
}
