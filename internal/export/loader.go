package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	jsonFileExtension       = ".json"
	zipFileExtension        = ".zip"
	defaultReadConcurrency  = 8
	errMessageNoExportFiles = "no JSON files found in export"
	errMessageOpenExport    = "open export"
	errMessageReadEntry     = "read export entry"
	errMessageEntryTooLarge = "export entry exceeds size limit"
)

// DefaultMaxEntryBytes caps the decompressed size of one archive entry.
const DefaultMaxEntryBytes int64 = 64 << 20

var (
	// ErrNoExportFiles indicates that an export path holds no JSON documents.
	ErrNoExportFiles = errors.New(errMessageNoExportFiles)
	// ErrEntryTooLarge indicates an archive entry whose decompressed size exceeds the cap.
	ErrEntryTooLarge = errors.New(errMessageEntryTooLarge)
)

// ArchiveOption customizes ReadArchive.
type ArchiveOption func(*archiveOptions)

type archiveOptions struct {
	maxEntryBytes int64
}

// WithMaxEntryBytes replaces DefaultMaxEntryBytes. Non-positive limits are ignored.
func WithMaxEntryBytes(limit int64) ArchiveOption {
	return func(options *archiveOptions) {
		if limit > 0 {
			options.maxEntryBytes = limit
		}
	}
}

// ReadExport collects every JSON document of a zip archive or a directory. Files are
// returned sorted by path, which fixes the overwrite order used by MergeFiles.
func ReadExport(exportPath string) ([]InputFile, error) {
	info, err := os.Stat(exportPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenExport, err)
	}
	if info.IsDir() {
		return readExportDirectory(exportPath)
	}
	if IsArchiveName(exportPath) {
		return readExportZip(exportPath)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenExport, err)
	}
	return []InputFile{{FileName: exportPath, RawText: string(data)}}, nil
}

func readExportZip(zipPath string) ([]InputFile, error) {
	zipReader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenExport, err)
	}
	defer zipReader.Close()
	return readZipEntries(zipReader.File, DefaultMaxEntryBytes)
}

// ReadArchive collects every JSON document of an in-memory or uploaded zip archive.
// Entries larger than the entry cap fail with ErrEntryTooLarge.
func ReadArchive(archive io.ReaderAt, size int64, options ...ArchiveOption) ([]InputFile, error) {
	resolved := archiveOptions{maxEntryBytes: DefaultMaxEntryBytes}
	for _, option := range options {
		option(&resolved)
	}
	zipReader, err := zip.NewReader(archive, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenExport, err)
	}
	return readZipEntries(zipReader.File, resolved.maxEntryBytes)
}

// IsArchiveName reports whether a file name denotes a zip archive.
func IsArchiveName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), zipFileExtension)
}

func readZipEntries(files []*zip.File, maxEntryBytes int64) ([]InputFile, error) {
	var entries []*zip.File
	for _, file := range files {
		if file.FileInfo().IsDir() || !isJSONFile(file.Name) {
			continue
		}
		entries = append(entries, file)
	}
	sort.Slice(entries, func(firstIndex, secondIndex int) bool {
		return entries[firstIndex].Name < entries[secondIndex].Name
	})

	names := make([]string, len(entries))
	for index, entry := range entries {
		names[index] = entry.Name
	}
	return readConcurrently(names, func(index int) ([]byte, error) {
		return readZipEntry(entries[index], maxEntryBytes)
	})
}

// readZipEntry reads at most maxEntryBytes; the header size is checked first but not
// trusted.
func readZipEntry(entry *zip.File, maxEntryBytes int64) ([]byte, error) {
	if entry.UncompressedSize64 > uint64(maxEntryBytes) {
		return nil, fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, maxEntryBytes)
	}
	reader, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(io.LimitReader(reader, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxEntryBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, maxEntryBytes)
	}
	return data, nil
}

func readExportDirectory(directoryPath string) ([]InputFile, error) {
	var paths []string
	walkErr := filepath.WalkDir(directoryPath, func(entryPath string, entry fs.DirEntry, innerErr error) error {
		if innerErr != nil {
			return innerErr
		}
		if entry.IsDir() || !isJSONFile(entry.Name()) {
			return nil
		}
		paths = append(paths, entryPath)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenExport, walkErr)
	}
	sort.Strings(paths)

	names := make([]string, len(paths))
	for index, entryPath := range paths {
		relativePath, relErr := filepath.Rel(directoryPath, entryPath)
		if relErr != nil {
			relativePath = entryPath
		}
		names[index] = filepath.ToSlash(relativePath)
	}
	return readConcurrently(names, func(index int) ([]byte, error) {
		return os.ReadFile(paths[index])
	})
}

// readConcurrently reads every entry with a bounded worker pool and keeps input order.
func readConcurrently(names []string, read func(index int) ([]byte, error)) ([]InputFile, error) {
	if len(names) == 0 {
		return nil, ErrNoExportFiles
	}
	files := make([]InputFile, len(names))
	var group errgroup.Group
	group.SetLimit(defaultReadConcurrency)
	for index := range names {
		index := index
		group.Go(func() error {
			data, err := read(index)
			if err != nil {
				return fmt.Errorf("%s %s: %w", errMessageReadEntry, names[index], err)
			}
			files[index] = InputFile{FileName: names[index], RawText: string(data)}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func isJSONFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), jsonFileExtension)
}
