package tilemap

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads a map definition from a JSON file.
func Load(path string) (*Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read map file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON map definition and builds a grid.
func Parse(data []byte) (*Grid, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse map: %w", err)
	}
	return New(def)
}

// RowsToData converts rows of characters into layer data, mapping '.' and ' '
// to 0 and every other character to its byte value. It is a convenience for
// hand-authored maps and tests.
func RowsToData(rows []string) []int {
	var data []int
	for _, row := range rows {
		for i := 0; i < len(row); i++ {
			switch row[i] {
			case '.', ' ':
				data = append(data, 0)
			default:
				data = append(data, int(row[i]))
			}
		}
	}
	return data
}
