package oci

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"
)

// HashAlgorithm represents a content hash algorithm configuration.
type HashAlgorithm struct {
	Name    string
	TypeID  uint16
	Size    int
	NewFunc func() hash.Hash
}

// GetHashAlgorithm returns the hash algorithm configuration for the given name.
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return &HashAlgorithm{
			Name:    "sha1",
			TypeID:  HashTypeSHA1,
			Size:    HashSizeSHA1,
			NewFunc: func() hash.Hash { return sha1.New() },
		}, nil
	case "sha256":
		return &HashAlgorithm{
			Name:    "sha256",
			TypeID:  HashTypeSHA256,
			Size:    HashSizeSHA256,
			NewFunc: func() hash.Hash { return sha256.New() },
		}, nil
	case "sha512":
		return &HashAlgorithm{
			Name:    "sha512",
			TypeID:  HashTypeSHA512,
			Size:    HashSizeSHA512,
			NewFunc: func() hash.Hash { return sha512.New() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// GetHashAlgorithmByType returns the hash algorithm configuration for the
// given type ID as recorded in an index header.
func GetHashAlgorithmByType(typeID uint16) (*HashAlgorithm, error) {
	switch typeID {
	case HashTypeSHA1:
		return GetHashAlgorithm("sha1")
	case HashTypeSHA256:
		return GetHashAlgorithm("sha256")
	case HashTypeSHA512:
		return GetHashAlgorithm("sha512")
	default:
		return nil, fmt.Errorf("unsupported hash type ID: %d", typeID)
	}
}

// HashFile calculates the digest of a file, streaming it through a buffer of
// the given size so memory use is bounded regardless of file size. Read
// failures are propagated, never substituted with a sentinel digest.
func HashFile(filePath string, algorithm *HashAlgorithm, bufferSize int) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	if bufferSize <= 0 {
		bufferSize = DefaultHashBuffer
	}

	hasher := algorithm.NewFunc()
	buffer := make([]byte, bufferSize)

	for {
		n, err := file.Read(buffer)
		if n > 0 {
			hasher.Write(buffer[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read from file %s: %w", filePath, err)
		}
	}

	return hasher.Sum(nil), nil
}

// HexDigest renders a digest for display and for hash lookups.
func HexDigest(digest []byte) string {
	return hex.EncodeToString(digest)
}

// decodeHex parses a hex digest back to raw bytes.
func decodeHex(s string) ([]byte, error) {
	digest, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex digest %q: %w", s, err)
	}
	return digest, nil
}

// hashJob is one file waiting for a digest in a batched rehash.
type hashJob struct {
	path   string // absolute path to read
	digest []byte
	err    error
}

// hashPool runs file hashing across a fixed number of workers. Results land
// back in the job slice, so callers keep their own ordering; the pool never
// reorders anything.
type hashPool struct {
	workers    int
	algorithm  *HashAlgorithm
	bufferSize int
}

func newHashPool(workers int, algorithm *HashAlgorithm, bufferSize int) *hashPool {
	if workers < 1 {
		workers = 1
	}
	return &hashPool{workers: workers, algorithm: algorithm, bufferSize: bufferSize}
}

// hashAll digests every job in place. The first error is also returned so
// callers can abort without inspecting each job.
func (p *hashPool) hashAll(jobs []*hashJob) error {
	if len(jobs) == 0 {
		return nil
	}

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobChan := make(chan *hashJob)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				job.digest, job.err = HashFile(job.path, p.algorithm, p.bufferSize)
			}
		}()
	}

	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)
	wg.Wait()

	for _, job := range jobs {
		if job.err != nil {
			return job.err
		}
	}
	return nil
}
