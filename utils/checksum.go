package utils

import (
	"bufio"
	"errors"

	//#nosec G505 -- sha1 is kept for registries that still report it.
	"crypto/sha1"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/minio/sha256-simd"
)

type Algorithm int

const (
	SHA1 Algorithm = iota
	SHA256
)

var algorithmFunc = map[Algorithm]func() hash.Hash{
	// Go native crypto algorithm:
	SHA1: sha1.New,
	// sha256-simd algorithm:
	SHA256: sha256.New,
}

// GetFileChecksums calculates the requested checksums of a file.
// When no algorithm is passed, all supported algorithms are calculated.
func GetFileChecksums(filePath string, checksumType ...Algorithm) (checksums map[Algorithm]string, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	return CalcChecksums(file, checksumType...)
}

// CalcChecksums calculates all hashes at once using a MultiWriter. The reader is therefore consumed only once.
func CalcChecksums(reader io.Reader, checksumType ...Algorithm) (map[Algorithm]string, error) {
	hashes := getChecksumByAlgorithm(checksumType...)
	var hashWriters []io.Writer
	for _, v := range hashes {
		hashWriters = append(hashWriters, v)
	}
	pageSize := os.Getpagesize()
	sizedReader := bufio.NewReaderSize(reader, pageSize)
	if _, err := io.Copy(io.MultiWriter(hashWriters...), sizedReader); err != nil {
		return nil, err
	}
	results := map[Algorithm]string{}
	for k, v := range hashes {
		results[k] = fmt.Sprintf("%x", v.Sum(nil))
	}
	return results, nil
}

func getChecksumByAlgorithm(checksumType ...Algorithm) map[Algorithm]hash.Hash {
	hashes := map[Algorithm]hash.Hash{}
	if len(checksumType) == 0 {
		for k, v := range algorithmFunc {
			hashes[k] = v()
		}
		return hashes
	}
	for _, v := range checksumType {
		hashes[v] = algorithmFunc[v]()
	}
	return hashes
}
