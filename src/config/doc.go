// Package config defines the configuration for an Agora node.
//
// Regardless of how Agora is started, directly from Go code or as a standalone
// process from the command line, it uses the Config object defined in this
// package to store and forward configuration options. On top of these
// configuration options, Agora relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional configuration
// files:
//
//  priv_key // a plain text file containing the raw private key (cf. agora keygen).
//  peers.json // (optional) a JSON file containing the seed peers and initial validators.
package config
