package storage

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"PPGate/tools/errs"
)

type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// ObjectStore holds attachment bytes under an opaque key.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Open(ctx context.Context, key string) (*Object, error)
}

func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}

// DiskObjects keeps attachments as plain files under one directory.
type DiskObjects struct {
	dir string
}

func NewDiskObjects(dir string) (*DiskObjects, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.WrapMsg(err, "create upload dir", "dir", dir)
	}
	return &DiskObjects{dir: dir}, nil
}

func (d *DiskObjects) Upload(ctx context.Context, key, _ string, data []byte) error {
	if !validKey(key) {
		return errs.ErrArgs.WrapMsg("invalid object key", "key", key)
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err)
	}
	tmp := filepath.Join(d.dir, "."+key+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.WrapMsg(err, "write object", "key", key)
	}
	if err := os.Rename(tmp, filepath.Join(d.dir, key)); err != nil {
		_ = os.Remove(tmp)
		return errs.WrapMsg(err, "commit object", "key", key)
	}
	return nil
}

func (d *DiskObjects) Open(_ context.Context, key string) (*Object, error) {
	if !validKey(key) {
		return nil, errs.ErrRecordNotFound.WrapMsg("invalid object key", "key", key)
	}
	data, err := os.ReadFile(filepath.Join(d.dir, key))
	if os.IsNotExist(err) {
		return nil, errs.ErrRecordNotFound.WrapMsg("object", "key", key)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "read object", "key", key)
	}
	ct := mime.TypeByExtension(filepath.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Object{Key: key, ContentType: ct, Data: data}, nil
}
