package httpapi

import (
	"net/http"
	"sort"
	"strings"
)

// ControlDoc describes a single key binding or client message.
type ControlDoc struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Shortcut    string `json:"shortcut,omitempty"`
	Message     string `json:"message,omitempty"`
}

var defaultControlDocs = []ControlDoc{
	{
		ID:          "steer",
		Label:       "Steer",
		Description: "Turn the snake a quarter turn. Reversing onto your own body is ignored.",
		Shortcut:    "Arrow keys / W A S D",
		Message:     `{"type":"direction","x":1,"y":0}`,
	},
	{
		ID:          "join",
		Label:       "Join",
		Description: "Enter the arena with a display name of up to 16 characters.",
		Shortcut:    "Enter",
		Message:     `{"type":"join","name":"alice"}`,
	},
	{
		ID:          "respawn",
		Label:       "Respawn",
		Description: "Come back with a fresh snake once the cooldown elapsed. Scores carry over.",
		Shortcut:    "Space / R",
		Message:     `{"type":"respawn"}`,
	},
	{
		ID:          "spectate",
		Label:       "Spectate",
		Description: "Watch the arena without owning a snake.",
		Message:     `{"type":"spectate"}`,
	},
	{
		ID:          "admin",
		Label:       "Admin",
		Description: "Operator commands: restart, pause, clear, keynote.",
		Message:     `{"type":"admin","action":"pause","token":"..."}`,
	},
}

// ControlsHandler serves the documented client controls sorted by label.
func (h *HandlerSet) ControlsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs := append([]ControlDoc(nil), defaultControlDocs...)
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].Label == docs[j].Label {
				return strings.Compare(docs[i].ID, docs[j].ID) < 0
			}
			return strings.Compare(docs[i].Label, docs[j].Label) < 0
		})
		writeJSON(w, http.StatusOK, docs)
	}
}
