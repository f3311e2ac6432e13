package optimize

import (
	"path"
	"strings"

	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
)

// cachePrefix is the directory, relative to the serving root, under which
// every generated derivative lives.
const cachePrefix = "cache/image"

// JoinSegments joins path segments with '/' after trimming stray leading
// and trailing separators from each. Empty segments are dropped. Interior
// separators inside a segment are preserved, so nested sources keep their
// structure.
func JoinSegments(segments ...string) string {
	cleaned := make([]string, 0, len(segments))
	for _, segment := range segments {
		segment = strings.Trim(segment, "/")
		if segment == "" {
			continue
		}
		cleaned = append(cleaned, segment)
	}
	return strings.Join(cleaned, "/")
}

// joinRoot prefixes a root-relative path with the serving root, keeping a
// leading '/' on absolute roots intact.
func joinRoot(root, rel string) string {
	if root == "" {
		return rel
	}
	joined := JoinSegments(root, rel)
	if strings.HasPrefix(root, "/") {
		return "/" + joined
	}
	return joined
}

// derivativeExt selects the on-disk extension by variant: resize
// derivatives are WebP rasters, blur derivatives are SVG documents.
func derivativeExt(opt Option) string {
	switch opt.(type) {
	case Resize:
		return ".webp"
	case Blur:
		return ".svg"
	default:
		panic("unknown image option")
	}
}

// FilePath resolves the root-relative cache location for this descriptor:
// cache/image/<token>/<src with the extension swapped>. The token encodes
// every field, so any parameter change lands in a disjoint path. The
// resolver never touches the filesystem.
func (d Descriptor) FilePath() string {
	src := strings.TrimSuffix(d.Src, path.Ext(d.Src)) + derivativeExt(d.Option)
	return JoinSegments(cachePrefix, d.PathToken(), src)
}

// FilePathWithRoot resolves the absolute save location under the serving
// root.
func FilePathWithRoot(root string, d Descriptor) string {
	return joinRoot(root, d.FilePath())
}

// SourcePathWithRoot resolves the source asset location under the serving
// root.
func SourcePathWithRoot(root string, d Descriptor) string {
	return joinRoot(root, d.Src)
}

// DescriptorFromFilePath recovers the descriptor from a generated file's
// path by reading the token at its fixed position, the segment right
// after the cache/image prefix. Restricting the scan to that position
// keeps sources whose own segments happen to decode as base64 from being
// misread.
func DescriptorFromFilePath(filePath string) (Descriptor, error) {
	segments := strings.Split(filePath, "/")
	for i := 0; i+2 < len(segments); i++ {
		if segments[i] != "cache" || segments[i+1] != "image" {
			continue
		}
		if d, err := DescriptorFromToken(segments[i+2]); err == nil {
			return d, nil
		}
	}
	return Descriptor{}, errors.New(errors.KindDecode, "decode-path",
		"no cache token segment in path: "+filePath)
}
