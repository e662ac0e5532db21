package resource

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// FileResolver resolves attachment references as paths under a root directory.
type FileResolver struct {
	root string
}

// NewFileResolver creates a resolver rooted at dir.
func NewFileResolver(dir string) *FileResolver {
	return &FileResolver{root: dir}
}

func (r *FileResolver) Open(ctx context.Context, ref string) (*domain.Resource, error) {
	path := filepath.Join(r.root, filepath.Clean("/"+ref))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrResourceMissing
		}
		return nil, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &domain.Resource{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Bytes:    data,
	}, nil
}

// MemoryResolver serves attachments from memory. Used in tests and as a
// staging area for compose-layer uploads.
type MemoryResolver struct {
	mu        sync.RWMutex
	resources map[string]domain.Resource
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{resources: make(map[string]domain.Resource)}
}

// Put registers a resource under ref, replacing any previous entry.
func (r *MemoryResolver) Put(ref string, res domain.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[ref] = res
}

// Remove drops a resource, simulating a vanished underlying file.
func (r *MemoryResolver) Remove(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resources, ref)
}

func (r *MemoryResolver) Open(ctx context.Context, ref string) (*domain.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[ref]
	if !ok {
		return nil, domain.ErrResourceMissing
	}
	out := res
	return &out, nil
}
