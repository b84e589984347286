// Package sctptx builds and transmits SCTP (RFC 4960) packets from worker threads.
//
// Packets are assembled in chained buffers with headroom for the common header
// and the IP header. Control chunks pass through a transmit state machine that
// rejects chunks illegal in the association's state, arms retransmission timers,
// and moves the association to its next state. Finished packets are batched per
// thread and handed to an IP lookup stage, which may capture them to a pcap file
// or send them on raw IP sockets.
//
// The sctptx command runs an INIT prober over a configured set of associations.
package sctptx
