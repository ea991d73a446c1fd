package proctap

// Stats is a snapshot of the counters of one Session. Overruns of the
// delivery queue are not errors; they surface here as ChunksDropped
// (and as gaps in the sequence numbers of the delivered chunks).
type Stats struct {
	// ChunksCaptured is the amount of chunks the backend pushed into
	// the delivery queue.
	ChunksCaptured uint64
	// ChunksDropped is the amount of captured chunks evicted before
	// anybody read them.
	ChunksDropped uint64
	// ChunksDelivered is the amount of chunks handed out to the
	// consumer.
	ChunksDelivered uint64
	// ChunksConverted is the amount of delivered chunks that went
	// through a format conversion.
	ChunksConverted uint64
	// BytesDelivered is the total payload size of the delivered
	// chunks (after conversion, if any).
	BytesDelivered uint64
}
