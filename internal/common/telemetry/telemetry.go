// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"expvar"
	"sync"
	"time"
)

var (
	initOnce sync.Once

	vectorSearchTotal     *expvar.Int
	vectorSearchFailures  *expvar.Int
	vectorSearchLatencyMS *expvar.Int

	embedBatchTotal *expvar.Int
	embedTextsTotal *expvar.Int

	filesIndexedTotal *expvar.Int
	fileErrorsTotal   *expvar.Int

	retrievalTotal     *expvar.Int
	retrievalIndexHits *expvar.Int
	retrievalVectorHit *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		vectorSearchTotal = expvar.NewInt("codeindex_vector_search_total")
		vectorSearchFailures = expvar.NewInt("codeindex_vector_search_failures")
		vectorSearchLatencyMS = expvar.NewInt("codeindex_vector_search_latency_ms")

		embedBatchTotal = expvar.NewInt("codeindex_embed_batch_total")
		embedTextsTotal = expvar.NewInt("codeindex_embed_texts_total")

		filesIndexedTotal = expvar.NewInt("codeindex_files_indexed_total")
		fileErrorsTotal = expvar.NewInt("codeindex_file_errors_total")

		retrievalTotal = expvar.NewInt("codeindex_retrieval_total")
		retrievalIndexHits = expvar.NewInt("codeindex_retrieval_index_hits")
		retrievalVectorHit = expvar.NewInt("codeindex_retrieval_vector_hits")
	})
}

// RecordVectorSearch captures the outcome and latency of one vector query.
func RecordVectorSearch(ok bool, elapsed time.Duration) {
	ensureInit()
	vectorSearchTotal.Add(1)
	if !ok {
		vectorSearchFailures.Add(1)
	}
	vectorSearchLatencyMS.Add(elapsed.Milliseconds())
}

// RecordEmbedBatch captures one embedding batch of the given size.
func RecordEmbedBatch(texts int) {
	ensureInit()
	embedBatchTotal.Add(1)
	embedTextsTotal.Add(int64(texts))
}

// RecordFileIndexed counts one processed file, successful or not.
func RecordFileIndexed(ok bool) {
	ensureInit()
	if ok {
		filesIndexedTotal.Add(1)
	} else {
		fileErrorsTotal.Add(1)
	}
}

// RecordRetrieval captures how one retrieval call was served.
func RecordRetrieval(indexHits, vectorHits int) {
	ensureInit()
	retrievalTotal.Add(1)
	retrievalIndexHits.Add(int64(indexHits))
	retrievalVectorHit.Add(int64(vectorHits))
}
