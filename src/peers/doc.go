// Package peers defines the concept of an Agora peer and implements
// functions to manage collections of peers.
//
// A peer is an entity that operates an Agora node. When a peer takes part in
// consensus we refer to it as a validator. Peers are identified by their
// public keys, and optionally carry a moniker, which is a non-unique
// user-friendly name, and an eScore, a reputation weight in [0,100] that the
// consensus collaborator uses to weight votes. The eScore is updated
// whenever a fresher value is observed, typically from a heartbeat.
//
// Upon starting up, a node expects to find a peers.json file in its data
// directory, listing the seed peers it should attempt to connect to. The
// file is plain JSON so human operators can manipulate it.
package peers
