package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/farm-ledger/internal/atomicfile"
	"github.com/sells-group/farm-ledger/internal/config"
)

// Cache stores extracted text keyed by PDF file name.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, text string) error
}

// NewCache builds the cache backend named by cfg.CacheBackend. "none"
// returns a nil Cache.
func NewCache(ctx context.Context, cfg config.OCRConfig) (Cache, error) {
	switch cfg.CacheBackend {
	case "file", "":
		return NewFileCache(cfg.CacheDir), nil
	case "redis":
		return NewRedisCache(ctx, cfg.RedisAddr)
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("ocr: unknown cache backend %q", cfg.CacheBackend)
	}
}

// FileCache keeps one <name>.txt file per PDF under dir.
type FileCache struct {
	dir string
}

// NewFileCache creates a FileCache rooted at dir.
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, filepath.Base(key)+".txt")
}

func (c *FileCache) Get(_ context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "ocr: read cache %s", key)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", false, nil
	}
	return text, true, nil
}

func (c *FileCache) Set(_ context.Context, key, text string) error {
	return atomicfile.Write(c.path(key), []byte(text), nil)
}

type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// RedisCache shares extracted text between ingest workers on different hosts.
type RedisCache struct {
	rdb    redisClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "ocr: redis ping %s", addr)
	}
	return &RedisCache{rdb: rdb, prefix: "farmledger:vision:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	text, err := c.rdb.Get(ctx, c.prefix+filepath.Base(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "ocr: redis get %s", key)
	}
	if strings.TrimSpace(text) == "" {
		return "", false, nil
	}
	return text, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, text string) error {
	err := c.rdb.Set(ctx, c.prefix+filepath.Base(key), text, c.ttl).Err()
	return eris.Wrapf(err, "ocr: redis set %s", key)
}

// CachedExtractor consults a Cache before calling the wrapped extractor.
// Concurrent calls for the same file name share one extraction, and empty
// text is never cached.
type CachedExtractor struct {
	inner Extractor
	cache Cache
	group singleflight.Group
}

// WithCache wraps ext with cache. A nil cache returns ext unchanged.
func WithCache(ext Extractor, cache Cache) Extractor {
	if cache == nil {
		return ext
	}
	return &CachedExtractor{inner: ext, cache: cache}
}

func (c *CachedExtractor) ExtractText(ctx context.Context, pdfPath string, maxPages int) (string, error) {
	key := filepath.Base(pdfPath)
	log := zap.L().With(zap.String("file", key))

	v, err, _ := c.group.Do(key, func() (any, error) {
		text, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			log.Warn("vision cache read failed", zap.Error(err))
		} else if ok {
			log.Debug("using cached vision text")
			return text, nil
		}

		text, err = c.inner.ExtractText(ctx, pdfPath, maxPages)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			if err := c.cache.Set(ctx, key, text); err != nil {
				log.Warn("vision cache write failed", zap.Error(err))
			}
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
