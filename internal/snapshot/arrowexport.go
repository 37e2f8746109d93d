package snapshot

import (
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"versionedkv/internal/engine"
)

// ChangeSetSchema is the Arrow schema ExportChangeSet produces: one row
// per key a version wrote, grounded on internal/storage/parquet's
// arrow.Schema + array.RecordBuilder usage (this package builds the
// record directly rather than going through a column/schema translator,
// since the engine's rows are always just key/value byte pairs).
var ChangeSetSchema = arrow.NewSchema([]arrow.Field{
	{Name: "key", Type: arrow.BinaryTypes.Binary},
	{Name: "value", Type: arrow.BinaryTypes.Binary},
}, nil)

// ExportChangeSet builds an Arrow record batch of verID's change set --
// the same (key, value) pairs VersionChgsetTrieRoot hashes -- for
// offline analytics over a version's mutations. The caller must call
// Release() on the returned record.
func ExportChangeSet(e *engine.Engine, verID engine.VersionID) (arrow.Record, error) {
	entries, err := e.VersionChgsetEntries(verID)
	if err != nil {
		return nil, fmt.Errorf("arrowexport: %w", err)
	}

	builder := array.NewRecordBuilder(memory.NewGoAllocator(), ChangeSetSchema)
	defer builder.Release()

	keyBuilder := builder.Field(0).(*array.BinaryBuilder)
	valueBuilder := builder.Field(1).(*array.BinaryBuilder)
	for _, kv := range entries {
		keyBuilder.Append(kv[0])
		valueBuilder.Append(kv[1])
	}

	return builder.NewRecord(), nil
}
