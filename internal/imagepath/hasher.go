package imagepath

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Storage keys are SHA-1 digests of the normalized path with the signature
// segment excluded, so signed and unsafe renditions of the same operations
// share a cache entry while any semantic difference (including filter
// order) produces a distinct key.

func hexDigestPath(path string) string {
	digest := sha1.Sum([]byte(path))
	h := hex.EncodeToString(digest[:])
	return h[:2] + "/" + h[2:4] + "/" + h[4:]
}

// SourceStorageKey derives the storage key for a source image URI.
func SourceStorageKey(image string) string {
	return hexDigestPath(image)
}

// ResultStorageKey derives the result cache key for a request. The digest
// is split into a two-level directory fan-out so filesystem result
// storages stay balanced.
func ResultStorageKey(p Params) string {
	return hexDigestPath(normalizedPath(p))
}

// SuffixResultStorageKey derives a human-readable result key: the image
// path with a truncated digest suffix spliced in before the extension.
// The extension follows the output format when a format filter is present,
// and .json for metadata requests.
func SuffixResultStorageKey(p Params) string {
	digest := sha1.Sum([]byte(normalizedPath(p)))
	suffix := "." + hex.EncodeToString(digest[:10])
	return spliceSuffix(p, suffix)
}

// SizeSuffixResultStorageKey is SuffixResultStorageKey with the target
// dimensions appended to the digest, so different renditions of one image
// sort together.
func SizeSuffixResultStorageKey(p Params) string {
	digest := sha1.Sum([]byte(normalizedPath(p)))
	suffix := "." + hex.EncodeToString(digest[:10])
	if p.Width != 0 || p.Height != 0 {
		suffix = fmt.Sprintf("%s_%dx%d", suffix, p.Width, p.Height)
	}
	return spliceSuffix(p, suffix)
}

func normalizedPath(p Params) string {
	if p.Path != "" {
		return p.Path
	}
	return Generate(p)
}

func spliceSuffix(p Params, suffix string) string {
	image := p.Image
	dotIdx := strings.LastIndexByte(image, '.')
	slashIdx := strings.LastIndexByte(image, '/')

	if dotIdx >= 0 && slashIdx < dotIdx {
		ext := image[dotIdx:]
		if p.Meta {
			ext = ".json"
		} else if f, ok := p.FindFilter("format"); ok && f.Args != "" {
			ext = "." + f.Args
		}
		return image[:dotIdx] + suffix + ext
	}
	return image + suffix
}
