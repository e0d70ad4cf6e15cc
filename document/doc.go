// Package document defines the typed documents stored by docstash.
//
// A Document maps keys to Values. A Value is a closed variant: scalars, strings,
// times, nested maps, sequences, numeric array payloads (NDArray) and the Ref
// marker that stands in for an array after it moved to the blob store.
//
// # Values
//
//	doc := document.Document{
//	    "name":  document.String("Important experiment"),
//	    "trial": document.Int(3),
//	    "data":  document.NDArrayValue(arr),
//	}
//
// Legacy map[string]any data can be converted with DocumentFromAny.
//
// # Queries
//
// A FilterSet is the query language understood by every collection backend.
// Filters are ANDed:
//
//	q := document.NewFilterSet(
//	    document.Eq("name", document.String("Important experiment")),
//	    document.Gte("trial", document.Int(2)),
//	)
//
// # Array payloads
//
// NDArray mirrors a numpy array: a dtype, a shape and little-endian element
// bytes. FromDense and Dense bridge to gonum matrices.
package document
