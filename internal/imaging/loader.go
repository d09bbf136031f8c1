package imaging

import (
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imgerr"
)

// ImageCache provides thread-safe caching of decoded images to avoid
// redundant disk reads.
//
// The cache stores decoded images keyed by their file path. Once an image is
// loaded, subsequent Load() calls for the same path return the cached copy
// without disk I/O. Cached images are shared between callers and must be
// treated as read-only; sessions copy them on entry.
//
// # Memory Management
//
// Cached images remain in memory until explicitly removed via Evict() or
// Clear(). For long-running processes handling many images, consider
// periodic cleanup to prevent unbounded memory growth.
type ImageCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	img    *image.NRGBA
	format codec.Format
	size   int64
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		entries: make(map[string]cacheEntry),
	}
}

// Load retrieves an image from the cache or decodes it from disk.
//
// Every format the codec package understands is accepted; JPEG orientation
// tags are applied during decoding. The image is cached under the exact path
// string provided, so relative and absolute paths to one file are separate
// entries.
//
// # Errors
//
//   - InvalidParameter when the file does not exist or cannot be read
//   - DecodeFailure when the content is not a supported image
func (c *ImageCache) Load(path string) (*image.NRGBA, error) {
	e, err := c.load(path)
	if err != nil {
		return nil, err
	}
	return e.img, nil
}

// LoadFormat is Load that also reports the container format.
func (c *ImageCache) LoadFormat(path string) (*image.NRGBA, codec.Format, error) {
	e, err := c.load(path)
	if err != nil {
		return nil, "", err
	}
	return e.img, e.format, nil
}

func (c *ImageCache) load(path string) (cacheEntry, error) {
	c.mu.RLock()
	if e, ok := c.entries[path]; ok {
		c.mu.RUnlock()
		return e, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return cacheEntry{}, errors.Wrap(imgerr.ErrInvalidParameter, err.Error())
	}
	img, format, err := codec.Decode(data)
	if err != nil {
		return cacheEntry{}, err
	}
	e := cacheEntry{img: img, format: format, size: int64(len(data))}

	c.mu.Lock()
	c.entries[path] = e
	c.mu.Unlock()

	return e, nil
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path. Unknown paths
// are ignored.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Len reports the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ImageInfo contains metadata about a loaded image file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the detected container format, sniffed from the content
	// rather than the file extension.
	Format codec.Format `json:"format"`

	// MimeType is the MIME type matching Format.
	MimeType string `json:"mime_type"`

	// HasAlpha reports whether any pixel is not fully opaque.
	HasAlpha bool `json:"has_alpha"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image into the cache (if not already cached) and
// reports its dimensions, format, transparency and file size.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	e, err := cache.load(path)
	if err != nil {
		return nil, err
	}
	b := e.img.Bounds()
	return &ImageInfo{
		Width:         b.Dx(),
		Height:        b.Dy(),
		Format:        e.format,
		MimeType:      e.format.MimeType(),
		HasAlpha:      !e.img.Opaque(),
		FileSizeBytes: e.size,
	}, nil
}
