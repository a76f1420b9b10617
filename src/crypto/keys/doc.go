// Package keys implements the public key cryptography used throughout agora.
//
// An agora node, also referred to as a validator, owns a cryptographic
// key-pair that it uses to sign and verify messages. The private key is
// secret but the public key doubles as the node's address on the network;
// other validators use it to verify messages signed with the private key.
//
// Agora uses elliptic curve cryptography (ECDSA) with the secp256k1 curve.
// We chose the secp256k1 curve because it is also used by Bitcoin and
// Ethereum, which means that Bitcoin and Ethereum keys can be used to operate
// an agora node.
package keys
