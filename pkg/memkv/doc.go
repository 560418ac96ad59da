// Package memkv is the in-process state store shared by nodes of one
// dataflow. Nodes keep durable counters and small blobs here so that a
// restarted node resumes where the previous instance stopped.
//
// Properties:
//   - sharded map guarded by RW mutexes (64 shards by default)
//   - optional TTL, checked lazily on read and swept by a janitor goroutine
//   - atomic read-modify-write through Update and Incr
//   - optional cap on the total size of stored values (Options.MaxBytes)
package memkv
