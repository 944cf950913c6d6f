// Package plugins holds the built-in command set. Each plugin supplies a
// descriptor to the registry at startup; there is no dynamic loading.
package plugins

import (
	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/cache"
	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/convo"
	"github.com/mvalkon/chatwarden/internal/game"
	"github.com/mvalkon/chatwarden/internal/responder"
	"github.com/mvalkon/chatwarden/internal/storage"
)

// Deps are the collaborators the built-in commands close over.
type Deps struct {
	Store         storage.Storage
	Settings      *cache.SettingsCache
	Conversations *convo.Manager
	Games         *game.State
	Generator     responder.Generator
	Marker        string
	Logger        *zap.Logger
}

// RegisterAll registers every built-in command on the registry.
func RegisterAll(registry *command.Registry, deps Deps) error {
	descriptors := []*command.Descriptor{
		pingCommand(),
		menuCommand(registry, deps.Marker),
		setCmdCommand(deps),
		getCmdCommand(deps),
		delCmdCommand(deps),
		viewOnceCommand(deps),
		viewOnceModeCommand(deps),
		antiDeleteCommand(deps),
		autoResponderCommand(deps),
		gptCommand(deps),
		{
			Aliases:     []string{"quiz"},
			Category:    "fun",
			Description: "Start a quiz game",
			Run:         deps.Games.QuizCommand,
		},
		{
			Aliases:     []string{"guess"},
			Category:    "fun",
			Description: "Start a number guessing game",
			Run:         deps.Games.GuessCommand,
		},
	}

	for _, d := range descriptors {
		if err := registry.Register(d); err != nil {
			return err
		}
	}
	return nil
}
