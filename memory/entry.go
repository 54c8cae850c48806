package memory

import (
	"path"
	"strings"
)

// Top-level namespaces of the document keyspace.
const (
	NamespaceSpecialists = "specialists"
	NamespaceTemplates   = "templates"

	documentExt = ".json"
)

// Entry is a key-value pair in the document namespace. Keys are /-separated
// hierarchical paths and values are raw bytes.
type Entry struct {
	Key   string
	Value []byte
}

// Key builds the document key for an id within a namespace.
func Key(namespace, id string) string {
	return namespace + "/" + id + documentExt
}

// IDFromKey recovers the document id from a key built by Key.
func IDFromKey(key string) string {
	return strings.TrimSuffix(path.Base(key), documentExt)
}
