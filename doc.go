// Package scenecore is a data-oriented Entity-Component-System runtime for
// a real-time scene engine.
//
// It provides an entity allocator with dense/sparse liveness tracking and
// per-entity epochs, structure-of-arrays component stores described by
// self-describing [ComponentMeta] schemas, single-rooted hierarchical
// trees layered over node-shaped components with deterministic depth-first
// ordering, a transform propagation system with dirty-cascade semantics,
// and a save/load layer that snapshots and rehydrates a [World].
//
// scenecore has no rendering, windowing, or GPU dependency of its own — the
// sibling module github.com/phanxgames/scenecore/gpu bridges ECS state into
// packed GPU buffers via a WebGPU binding, the same way willow/ecs bridges
// willow into a Donburi world without willow itself depending on Donburi.
//
// # Quick start
//
//	w := scenecore.NewWorld(scenecore.WorldOptions{})
//	tree, _ := scenecore.NewTransformTree(w, "Node")
//	child := w.CreateEntity()
//	tree.NodeStore().Add(child, nil)
//	tree.SetParent(child, tree.Root())
//	scenecore.PropagateTransforms(w)
//
// # Self-describing components
//
// A component is declared once with [DefineMeta] and registered on a
// [World] with [World.Register]. Fields carry their own scalar kind,
// default value, and whether they are an entity-id "link" field that
// save/load must remap — there is no per-component generated code.
package scenecore
