// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultModelID is the model selected for new threads.
const DefaultModelID = "smollm2:360m"

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes a model served by the backend's local runtime.
type ModelInfo struct {
	// ID is the model identifier sent with every inference call
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Params is the parameter count as advertised (e.g. "360M")
	Params string `json:"params"`

	// Thinks is true for models that emit a <think> preamble
	Thinks bool `json:"thinks"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Models is the catalog of models offered for selection, keyed by ID.
var Models = map[string]ModelInfo{
	"smollm2:360m": {
		ID:          "smollm2:360m",
		Name:        "SmolLM2",
		Params:      "360M",
		Description: "Small general model, fastest responses",
	},
	"tinyllama:latest": {
		ID:          "tinyllama:latest",
		Name:        "TinyLlama",
		Params:      "1.1B",
		Description: "Compact Llama for short conversations",
	},
	"qwen3:0.6b": {
		ID:          "qwen3:0.6b",
		Name:        "Qwen 3",
		Params:      "0.6B",
		Thinks:      true,
		Description: "Reasons in a thinking block before answering",
	},
	"qwen2.5-coder:0.5b": {
		ID:          "qwen2.5-coder:0.5b",
		Name:        "Qwen 2.5 Coder",
		Params:      "0.5B",
		Description: "Tuned for code questions",
	},
}

// =============================================================================
// MODEL INFO METHODS
// =============================================================================

// Label returns "Name (Params)" for menus.
func (m ModelInfo) Label() string {
	if m.Params == "" {
		return m.Name
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.Params)
}

// =============================================================================
// MODEL LOOKUP FUNCTIONS
// =============================================================================

// GetModelInfo looks up a model by ID, or by its name before the tag
// ("qwen3" matches "qwen3:0.6b").
func GetModelInfo(nameOrID string) (ModelInfo, bool) {
	key := strings.ToLower(strings.TrimSpace(nameOrID))
	if info, ok := Models[key]; ok {
		return info, true
	}
	for _, id := range ModelIDs() {
		base, _, _ := strings.Cut(id, ":")
		if base == key {
			return Models[id], true
		}
	}
	return ModelInfo{}, false
}

// ResolveModel returns the catalog ID for nameOrID, or nameOrID unchanged
// when the catalog does not know it. The backend may serve models the
// catalog does not list.
func ResolveModel(nameOrID string) string {
	if info, ok := GetModelInfo(nameOrID); ok {
		return info.ID
	}
	return strings.TrimSpace(nameOrID)
}

// ModelIDs returns a sorted slice of all catalog IDs.
func ModelIDs() []string {
	ids := make([]string, 0, len(Models))
	for id := range Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
