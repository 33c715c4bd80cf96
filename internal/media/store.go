package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"go.uber.org/zap"
)

const profileDir = "profiles"

var (
	ErrNotImage = errors.New("只接受图片文件")
	ErrTooLarge = errors.New("文件过大")
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store 把头像保存在本地目录，由HTTP服务以静态文件的方式提供
type Store struct {
	root     string
	urlBase  string
	maxBytes int64
}

// NewStore 创建图片存储。urlBase 是 root 对外暴露的URL前缀，例如 "/uploads"。
func NewStore(root, urlBase string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, profileDir), 0o755); err != nil {
		return nil, fmt.Errorf("无法创建上传目录: %w", err)
	}
	return &Store{root: root, urlBase: strings.TrimRight(urlBase, "/"), maxBytes: maxBytes}, nil
}

func (s *Store) Root() string { return s.root }

// Upload 保存用户头像并返回它的URI。文件名只用于日志，扩展名由内容决定。
func (s *Store) Upload(ctx context.Context, id, filename string, r io.Reader) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return "", fmt.Errorf("无效的文件ID: %q", id)
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("读取上传内容失败: %w", err)
	}
	contentType := http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	dir := filepath.Join(s.root, profileDir)
	tmp, err := os.CreateTemp(dir, id+"-*.upload")
	if err != nil {
		return "", fmt.Errorf("无法创建临时文件: %w", err)
	}
	defer os.Remove(tmp.Name())

	limit := s.maxBytes
	if limit <= 0 {
		limit = 1 << 62
	}
	n, err := io.Copy(tmp, io.LimitReader(readerWithContext(ctx, br), limit+1))
	closeErr := tmp.Close()
	if err != nil {
		return "", fmt.Errorf("写入上传内容失败: %w", err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("写入上传内容失败: %w", closeErr)
	}
	if n > limit {
		return "", fmt.Errorf("%w: 上限 %d 字节", ErrTooLarge, limit)
	}

	final := filepath.Join(dir, id+ext)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("保存头像失败: %w", err)
	}
	s.removeOtherVariants(id, ext)

	logging.L().Info("头像已保存", zap.String("id", id), zap.String("filename", filename), zap.Int64("bytes", n))
	return s.urlBase + "/" + profileDir + "/" + id + ext, nil
}

// removeOtherVariants 删除同一ID其他扩展名的旧头像
func (s *Store) removeOtherVariants(id, keep string) {
	for _, ext := range imageExtensions {
		if ext == keep {
			continue
		}
		old := filepath.Join(s.root, profileDir, id+ext)
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.L().Warn("删除旧头像失败", zap.String("path", old), zap.Error(err))
		}
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
