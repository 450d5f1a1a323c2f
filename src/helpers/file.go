package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/multierr"
)

// FileExists checks if a file exists and is not a directory.
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// EncodeBSON encodes a document into BSON bytes.
func EncodeBSON(doc interface{}) ([]byte, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error encoding BSON: %w", err)
	}
	return data, nil
}

// DecodeBSON decodes BSON bytes into the given destination.
func DecodeBSON(data []byte, dest interface{}) error {
	if err := bson.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("error decoding BSON: %w", err)
	}
	return nil
}

// WriteFileAtomic writes data to filePath via a temp file in the same
// directory followed by a rename, so readers never observe a torn file.
func WriteFileAtomic(filePath string, data []byte) error {
	dir := filepath.Dir(filePath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("error creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("error writing temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error closing temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error renaming temp file over %s: %w", filePath, err)
	}
	return nil
}

// RemoveMatchingFiles deletes every direct entry of dir whose name ends
// in one of fileSuffixes (plain files) or dirSuffixes (directories,
// removed recursively). A missing dir is not an error. Entries outside
// the suffix sets are never touched.
func RemoveMatchingFiles(dir string, fileSuffixes, dirSuffixes []string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("error listing directory %s: %w", dir, err)
	}

	removed := 0
	var errs error
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)
		if entry.IsDir() {
			if hasAnySuffix(name, dirSuffixes) {
				if err := os.RemoveAll(full); err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				removed++
			}
			continue
		}
		if hasAnySuffix(name, fileSuffixes) {
			if err := os.Remove(full); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			removed++
		}
	}
	return removed, errs
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
