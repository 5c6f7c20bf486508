package log

import (
	"os"
	"sort"

	"github.com/rs/zerolog"

	"pkg.world.dev/world-engine/foundry/types"
)

// MachineLoggable is implemented by machine.Machine.
type MachineLoggable interface {
	Key() types.Key
	Kind() string
	ComponentNames() []string
}

// WorldLoggable is implemented by world.World.
type WorldLoggable interface {
	Blueprints() []string
	MachineCount() int
	Role() types.Role
}

func loadComponentsIntoEvent(zeroLoggerEvent *zerolog.Event, names []string) *zerolog.Event {
	arrayLogger := zerolog.Arr()
	for i, name := range names {
		arrayLogger = arrayLogger.Dict(zerolog.Dict().Int("index", i).Str("component_name", name))
	}
	zeroLoggerEvent.Int("total_components", len(names))
	return zeroLoggerEvent.Array("components", arrayLogger)
}

func loadBlueprintsIntoEvent(zeroLoggerEvent *zerolog.Event, target WorldLoggable) *zerolog.Event {
	blueprints := target.Blueprints()
	sort.Strings(blueprints)
	zeroLoggerEvent.Int("total_blueprints", len(blueprints))
	arrayLogger := zerolog.Arr()
	for _, name := range blueprints {
		arrayLogger = arrayLogger.Str(name)
	}
	return zeroLoggerEvent.Array("blueprints", arrayLogger)
}

// Machine logs the identity and component list of a machine.
func Machine(logger *zerolog.Logger, target MachineLoggable, level zerolog.Level) {
	zeroLoggerEvent := logger.WithLevel(level).
		Str("machine", target.Key().String()).
		Str("kind", target.Kind())
	loadComponentsIntoEvent(zeroLoggerEvent, target.ComponentNames()).Send()
}

// World logs the registered blueprints and the number of live machines.
func World(logger *zerolog.Logger, target WorldLoggable, level zerolog.Level) {
	zeroLoggerEvent := logger.WithLevel(level).
		Str("role", target.Role().String()).
		Int("machines", target.MachineCount())
	loadBlueprintsIntoEvent(zeroLoggerEvent, target).Send()
}

// NewMachineLogger creates a sub logger with the entry {"machine": key}.
func NewMachineLogger(logger zerolog.Logger, key types.Key) zerolog.Logger {
	return logger.With().Str("machine", key.String()).Logger()
}

// NewComponentLogger creates a sub logger with the entry {"component": name}.
func NewComponentLogger(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// Configure sets the global level and, when pretty is set, switches to console output.
func Configure(logger *zerolog.Logger, level string, pretty bool) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	if pretty {
		*logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}
