// Package models holds the stored record types and their graph/search
// projection configs.
package models

import (
	"github.com/Kode-Rex/weave/pkg/annotations"
)

// Registry keys for the annotated record types. Keys are stable identifiers;
// renaming a Go type does not disturb snapshots or change detection.
const (
	KeySlackUser    = "slack:user"
	KeySlackChannel = "slack:channel"
	KeyMeshUser     = "mesh:user"
	KeyConversation = "mesh:conversation"
)

// Loaders carries the by-id loaders attached at registration. A nil loader is
// fine for tooling that only inspects configs, such as migration detection.
type Loaders struct {
	SlackUser    annotations.LoaderFunc
	SlackChannel annotations.LoaderFunc
	MeshUser     annotations.LoaderFunc
	Conversation annotations.LoaderFunc
}

// RegisterAll registers every annotated record type with the registry.
func RegisterAll(registry *annotations.Registry, loaders Loaders) error {
	if _, err := registry.Register(KeySlackUser, &SlackUser{}, annotations.WithLoader(loaders.SlackUser)); err != nil {
		return err
	}
	if _, err := registry.Register(KeySlackChannel, &SlackChannel{}, annotations.WithLoader(loaders.SlackChannel)); err != nil {
		return err
	}
	if _, err := registry.Register(KeyMeshUser, &MeshUser{}, annotations.WithLoader(loaders.MeshUser)); err != nil {
		return err
	}
	if _, err := registry.Register(KeyConversation, &Conversation{}, annotations.WithLoader(loaders.Conversation)); err != nil {
		return err
	}
	return nil
}
