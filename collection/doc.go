// Package collection provides the document collections used by docstash.
//
// A Collection assigns identifiers on insert and answers document.FilterSet
// queries. The in-process backends live here:
//
//   - Memory: a map guarded by a RWMutex with a roaring bitmap index for
//     string and bool equality.
//   - JSONL: a JSON-lines file with a full in-memory cache. Inserts append,
//     deletes rewrite the file.
//   - Bolt: one bbolt bucket per collection, documents encoded with a codec.Codec.
//
// DynamoDB and MongoDB backends live in the dynamodb and mongo subpackages.
// The collectiontest package holds the conformance suite shared by all of them.
package collection
