package blocks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mosaicchat/mosaic/internal/models"
)

// Kind is the closed set of block types an agent can carry. Anything else is
// rejected at creation time rather than silently ignored later.
type Kind string

const (
	KindPrompt Kind = "prompt"
	KindMemory Kind = "memory"
	KindModel  Kind = "model-selector"
)

var ErrUnknownKind = errors.New("unknown block kind")

const (
	DefaultSystemPrompt = "You are a helpful AI assistant."
	DefaultMemoryWindow = 10
	DefaultModel        = "gemini-pro"
)

func ValidKind(s string) bool {
	switch Kind(s) {
	case KindPrompt, KindMemory, KindModel:
		return true
	}
	return false
}

// Config is the typed payload of a block, one variant per kind.
type Config interface {
	Kind() Kind
}

type PromptConfig struct {
	Prompt string `json:"prompt"`
}

func (PromptConfig) Kind() Kind { return KindPrompt }

type MemoryConfig struct {
	MaxMessages int `json:"max_messages"`
}

func (MemoryConfig) Kind() Kind { return KindMemory }

type ModelConfig struct {
	Model string `json:"model"`
}

func (ModelConfig) Kind() Kind { return KindModel }

// Parse interprets a stored block row into its typed config.
func Parse(b models.Block) (Config, error) {
	switch Kind(b.Type) {
	case KindPrompt:
		var c PromptConfig
		if err := json.Unmarshal([]byte(b.Config), &c); err != nil {
			return nil, fmt.Errorf("parse prompt block %s: %w", b.ID, err)
		}
		return c, nil
	case KindMemory:
		var c MemoryConfig
		if err := json.Unmarshal([]byte(b.Config), &c); err != nil {
			return nil, fmt.Errorf("parse memory block %s: %w", b.ID, err)
		}
		return c, nil
	case KindModel:
		var c ModelConfig
		if err := json.Unmarshal([]byte(b.Config), &c); err != nil {
			return nil, fmt.Errorf("parse model block %s: %w", b.ID, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, b.Type)
	}
}

// DefaultConfig returns the JSON payload a freshly created block of the given
// kind starts with.
func DefaultConfig(kind Kind) (string, error) {
	var c Config
	switch kind {
	case KindPrompt:
		c = PromptConfig{Prompt: DefaultSystemPrompt}
	case KindMemory:
		c = MemoryConfig{MaxMessages: DefaultMemoryWindow}
	case KindModel:
		c = ModelConfig{Model: DefaultModel}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Settings is the resolved per-agent configuration the chat pipeline consumes.
type Settings struct {
	SystemPrompt string
	MemoryWindow int
	Model        string
}

// Resolve folds an agent's blocks into effective settings. Creation rejects
// duplicate kinds, but rows predating that constraint may still hold more
// than one block of a kind; the most recently updated one wins. Missing or
// unparseable blocks fall back to the defaults, as does a non-positive
// memory window.
func Resolve(bs []models.Block) Settings {
	s := Settings{
		SystemPrompt: DefaultSystemPrompt,
		MemoryWindow: DefaultMemoryWindow,
		Model:        DefaultModel,
	}

	latest := make(map[Kind]models.Block)
	for _, b := range bs {
		kind := Kind(b.Type)
		if !ValidKind(b.Type) {
			continue
		}
		if cur, ok := latest[kind]; !ok || b.UpdatedAt.After(cur.UpdatedAt) {
			latest[kind] = b
		}
	}

	for _, b := range latest {
		cfg, err := Parse(b)
		if err != nil {
			continue
		}
		switch c := cfg.(type) {
		case PromptConfig:
			if c.Prompt != "" {
				s.SystemPrompt = c.Prompt
			}
		case MemoryConfig:
			if c.MaxMessages > 0 {
				s.MemoryWindow = c.MaxMessages
			}
		case ModelConfig:
			if c.Model != "" {
				s.Model = c.Model
			}
		}
	}

	return s
}
