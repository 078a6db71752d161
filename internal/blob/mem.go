package blob

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheVisher/pawkit-sync/internal/common"
)

// MemProvider keeps objects in memory. Test and development backend.
type MemProvider struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data     []byte
	name     string
	modified time.Time
}

func NewMemProvider() *MemProvider {
	return &MemProvider{objects: make(map[string]memObject)}
}

func (p *MemProvider) UploadFile(ctx context.Context, data []byte, name, dir string) (string, error) {
	key := path.Join(dir, uuid.NewString(), name)

	p.mu.Lock()
	p.objects[key] = memObject{
		data:     append([]byte(nil), data...),
		name:     name,
		modified: time.Now().UTC(),
	}
	p.mu.Unlock()
	return key, nil
}

func (p *MemProvider) DownloadFile(ctx context.Context, cloudID string) ([]byte, error) {
	p.mu.RLock()
	obj, ok := p.objects[cloudID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: object %s", common.ErrNotFound, cloudID)
	}
	return append([]byte(nil), obj.data...), nil
}

func (p *MemProvider) DeleteFile(ctx context.Context, cloudID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.objects[cloudID]; !ok {
		return fmt.Errorf("%w: object %s", common.ErrNotFound, cloudID)
	}
	delete(p.objects, cloudID)
	return nil
}

func (p *MemProvider) ListFiles(ctx context.Context, dir string) ([]FileInfo, error) {
	prefix := strings.TrimSuffix(dir, "/")
	if prefix != "" {
		prefix += "/"
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var files []FileInfo
	for key, obj := range p.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		files = append(files, FileInfo{
			CloudID:  key,
			Name:     obj.name,
			Size:     int64(len(obj.data)),
			Modified: obj.modified,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].CloudID < files[j].CloudID })
	return files, nil
}
