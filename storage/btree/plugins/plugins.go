package plugins

import (
	"github.com/jrife/grouse/storage/btree"
	"github.com/jrife/grouse/storage/btree/plugins/bolt"
	"github.com/jrife/grouse/storage/btree/plugins/mem"
)

var plugins []btree.Plugin

func init() {
	plugins = append(plugins, mem.Plugins()...)
	plugins = append(plugins, bolt.Plugins()...)
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) btree.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []btree.Plugin {
	return plugins
}
