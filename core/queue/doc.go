// Package queue implements the in-memory retry queue shared by the MQTT and
// webhook publishers. Failed deliveries are grouped by destination key and
// retried by a periodic sweep until they succeed or exhaust their retry
// budget. Queue contents do not survive a process restart.
package queue
