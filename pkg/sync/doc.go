// ABOUTME: Clock synchronization package
// ABOUTME: Converts server-loop timestamps to local wall time
// Package sync estimates the offset between a Sendspin server's loop clock
// and the local wall clock from client/time / server/time exchanges.
//
// Example:
//
//	cs := sync.NewClockSync()
//	cs.AddSample(sync.Sample{T1: t1, T2: t2, T3: t3, T4: t4})
//	playAt, err := cs.ServerToLocalTime(chunkDeadline)
package sync
