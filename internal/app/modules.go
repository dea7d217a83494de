package app

import (
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/modules/logging"
	"github.com/vk/hookwire/modules/settings"
	"github.com/vk/hookwire/modules/startup"
)

// coreModules is the definitive list of all extension modules that are
// compiled into the hookwire binary.
var coreModules = []registry.Module{
	&logging.Module{},
	&settings.Module{},
	&startup.Module{},
}
