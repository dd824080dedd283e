package roster

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownRoom is returned for room codes outside the catalog.
var ErrUnknownRoom = errors.New("roster: unknown room code")

// Room is a named venue with a seat capacity.
type Room struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
}

// RoomCatalog resolves room codes entered at import time. External rooms are
// written as SE(<name>) and take ExternalCapacity.
type RoomCatalog struct {
	Rooms            []Room `yaml:"rooms"`
	ExternalCapacity int    `yaml:"external_capacity"`
}

// DefaultRoomCatalog returns the built-in venues.
func DefaultRoomCatalog() RoomCatalog {
	return RoomCatalog{
		Rooms: []Room{
			{Code: "SG", Name: "Sala de gestión", Capacity: 60},
			{Code: "SI1", Name: "Sala de informática 1", Capacity: 16},
			{Code: "SI2", Name: "Sala de informática 2", Capacity: 16},
		},
		ExternalCapacity: 100,
	}
}

// LoadRoomCatalog reads a YAML catalog. An empty path yields the defaults.
func LoadRoomCatalog(path string) (RoomCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRoomCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RoomCatalog{}, fmt.Errorf("roster: read room catalog: %w", err)
	}
	return ParseRoomCatalog(data)
}

// ParseRoomCatalog decodes a YAML catalog and validates it.
func ParseRoomCatalog(data []byte) (RoomCatalog, error) {
	var catalog RoomCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return RoomCatalog{}, fmt.Errorf("roster: parse room catalog: %w", err)
	}
	if catalog.ExternalCapacity <= 0 {
		catalog.ExternalCapacity = DefaultRoomCatalog().ExternalCapacity
	}
	seen := make(map[string]bool, len(catalog.Rooms))
	for i, room := range catalog.Rooms {
		code := strings.ToUpper(strings.TrimSpace(room.Code))
		if code == "" || strings.TrimSpace(room.Name) == "" || room.Capacity <= 0 {
			return RoomCatalog{}, fmt.Errorf("roster: room %d needs code, name and a positive capacity", i+1)
		}
		if code == "SE" || seen[code] {
			return RoomCatalog{}, fmt.Errorf("roster: room code %s is reserved or duplicated", code)
		}
		seen[code] = true
		catalog.Rooms[i].Code = code
	}
	return catalog, nil
}

// Resolve maps a room code to the venue name and capacity.
func (c RoomCatalog) Resolve(code string) (Room, error) {
	trimmed := strings.TrimSpace(code)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SE(") && strings.HasSuffix(trimmed, ")") {
		name := strings.TrimSpace(trimmed[3 : len(trimmed)-1])
		if name == "" {
			return Room{}, fmt.Errorf("%w: %q", ErrUnknownRoom, code)
		}
		return Room{Code: "SE", Name: name, Capacity: c.ExternalCapacity}, nil
	}
	for _, room := range c.Rooms {
		if room.Code == upper {
			return room, nil
		}
	}
	return Room{}, fmt.Errorf("%w: %q", ErrUnknownRoom, code)
}
