package provider

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode"
	"github.com/ulikunitz/xz"
)

// maxSubtitleSize caps extracted subtitle files; anything larger is not a
// subtitle.
const maxSubtitleSize = 10 << 20

var subtitleExtensions = map[string]bool{
	".ass": true,
	".ssa": true,
	".srt": true,
	".vtt": true,
	".sub": true,
}

// Unpack inspects downloaded bytes and, when they are a ZIP, GZIP, XZ,
// or RAR container, extracts the inner subtitle file. It returns the
// subtitle bytes and the inner filename ("" when the payload was
// already a bare subtitle).
func Unpack(data []byte, filename string) ([]byte, string, error) {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{'P', 'K', 0x03, 0x04}):
		return unpackZip(data)
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return unpackGzip(data, filename)
	case len(data) >= 6 && bytes.Equal(data[:6], []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return unpackXz(data, filename)
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{'R', 'a', 'r', '!'}):
		return unpackRar(data)
	default:
		return data, "", nil
	}
}

func unpackZip(data []byte) ([]byte, string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open zip: %w", err)
	}

	// Pick the highest-ranked subtitle file in the archive.
	var best *zip.File
	bestRank := -1
	for _, f := range reader.File {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !subtitleExtensions[ext] {
			continue
		}
		rank := FormatFromExtension(ext).Rank()
		if rank > bestRank {
			best = f
			bestRank = rank
		}
	}
	if best == nil {
		return nil, "", fmt.Errorf("no subtitle file in archive")
	}

	rc, err := best.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s in archive: %w", best.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, maxSubtitleSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to extract %s: %w", best.Name, err)
	}
	return content, filepath.Base(best.Name), nil
}

func unpackGzip(data []byte, filename string) ([]byte, string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open gzip: %w", err)
	}
	defer gz.Close()

	content, err := io.ReadAll(io.LimitReader(gz, maxSubtitleSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to extract gzip: %w", err)
	}

	inner := strings.TrimSuffix(filepath.Base(filename), ".gz")
	return content, inner, nil
}

func unpackXz(data []byte, filename string) ([]byte, string, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open xz: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(r, maxSubtitleSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to extract xz: %w", err)
	}

	inner := strings.TrimSuffix(filepath.Base(filename), ".xz")
	return content, inner, nil
}

func unpackRar(data []byte) ([]byte, string, error) {
	r, err := rardecode.NewReader(bytes.NewReader(data), "")
	if err != nil {
		return nil, "", fmt.Errorf("failed to open rar: %w", err)
	}

	// The reader is sequential, so candidate contents are read as the
	// entries stream by and the highest-ranked one wins.
	var bestContent []byte
	bestName := ""
	bestRank := -1
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read rar: %w", err)
		}
		if hdr.IsDir {
			continue
		}
		ext := strings.ToLower(filepath.Ext(hdr.Name))
		if !subtitleExtensions[ext] {
			continue
		}
		rank := FormatFromExtension(ext).Rank()
		if rank <= bestRank {
			continue
		}
		content, err := io.ReadAll(io.LimitReader(r, maxSubtitleSize))
		if err != nil {
			return nil, "", fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
		}
		bestContent, bestName, bestRank = content, filepath.Base(hdr.Name), rank
	}
	if bestContent == nil {
		return nil, "", fmt.Errorf("no subtitle file in archive")
	}
	return bestContent, bestName, nil
}
