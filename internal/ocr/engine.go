package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/andresmejia3/keyredact/internal/types"
)

// Engine names accepted by New.
const (
	EngineGosseract = "gosseract"
	EngineCLI       = "cli"
)

// Engine is a closable word recognizer.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, frame image.Image) ([]types.Token, error)
	Close() error
}

// New builds the engine registered under name.
func New(name string, languages []string) (Engine, error) {
	switch name {
	case EngineGosseract, "":
		return NewTesseractEngine(languages...)
	case EngineCLI:
		return NewCLIEngine(languages...)
	default:
		return nil, fmt.Errorf("unknown ocr engine %q (want %s or %s)", name, EngineGosseract, EngineCLI)
	}
}
