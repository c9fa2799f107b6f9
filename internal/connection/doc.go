// Package connection implements the shared WebSocket transport used by the
// venue connectors.
//
// A Client owns one streaming connection:
//   - all outbound writes are serialized through a single mutex, since
//     liveness replies, credential refresh, and data requests share the
//     connection
//   - a read loop delivers raw frames, stamped with their receive time,
//     to a buffered channel
//   - transport-level read failures surface on the Errors channel and end
//     the read loop; the client performs no reconnection
package connection
