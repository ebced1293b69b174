// ABOUTME: High-level Sendspin library API
// ABOUTME: Provides Player and Server APIs for most use cases
// Package sendspin provides high-level APIs for Sendspin audio streaming.
//
// This is the main entry point for most library users, providing:
//   - Player: connect to servers and play synchronized audio
//   - Server: serve audio to multiple clients with per-client formats
//   - Scheduler: deadline-ordered playback used by Player
//   - AudioSource: interface for custom audio sources
//
// For lower-level control, see the audio, protocol and sync packages.
//
// Example Player:
//
//	player, err := sendspin.NewPlayer(sendspin.PlayerConfig{
//	    Endpoint:   "localhost:8927",
//	    PlayerName: "Living Room",
//	})
//	err = player.Connect()
//
// Example Server:
//
//	server, err := sendspin.NewServer(sendspin.ServerConfig{
//	    Port:   8927,
//	    Source: sendspin.NewToneSource(48000, 2),
//	})
//	err = server.Start()
package sendspin
