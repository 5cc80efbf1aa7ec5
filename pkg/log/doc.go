/*
Package log provides structured logging for the gateway using zerolog.

A single global Logger is configured once via Init and every long-running
component derives a child logger with WithComponent so log lines can be
filtered by subsystem (cache-worker, public-server, admin-server,
ttl-sweeper, supervisor, discovery). WithCID and WithPeer attach the identifiers most
gateway log lines key off.
*/
package log
