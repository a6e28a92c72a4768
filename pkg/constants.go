package oci

// Control directory layout. Everything the tool persists lives under
// ControlDirName at the repository root; the scanner never descends into it.
const (
	ControlDirName = ".oci"
	IndexFileName  = "index"
	ConfigFileName = "config"
	IgnoreFileName = "ignore"

	// PruneyardDirName is the quarantine area. Pruned files keep their
	// repository-relative paths beneath it so restore is unambiguous.
	PruneyardDirName      = "pruneyard"
	PruneManifestFileName = "pruneyard.manifest"
)

// Hash algorithm type IDs as recorded in the index header.
const (
	HashTypeSHA1   uint16 = 1
	HashTypeSHA256 uint16 = 2
	HashTypeSHA512 uint16 = 3
)

// Digest sizes in bytes.
const (
	HashSizeSHA1   = 20
	HashSizeSHA256 = 32
	HashSizeSHA512 = 64
)

// Index file format.
const (
	indexMagic         = "ocix"
	indexFormatVersion = 1
)

const (
	// DefaultHashWorkers is the number of concurrent hashing goroutines used
	// when the config does not override it.
	DefaultHashWorkers = 4

	// DefaultHashBuffer is the read buffer size for streaming hashes.
	DefaultHashBuffer = 2 * 1024 * 1024

	// hashBatchSize bounds how many classification results are held back
	// while their rehashes run; emission stays in path order.
	hashBatchSize = 64

	// iovChunkSize caps the iovec count per writev call, comfortably below
	// IOV_MAX on every platform we run on.
	iovChunkSize = 1024
)
