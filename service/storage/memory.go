package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"PPGate/tools/errs"
	"PPGate/tools/ids"
)

// MemMessages is a process-local MessageStore used by tests and by
// single-node deployments that do not need durability across restarts.
type MemMessages struct {
	mu   sync.RWMutex
	ids  *ids.Generator
	byDM map[string][]*Message // DMKey -> messages in creation order
}

func NewMemMessages() *MemMessages {
	return &MemMessages{ids: ids.NewGenerator(1), byDM: make(map[string][]*Message)}
}

func (s *MemMessages) Create(ctx context.Context, sender, recipient, text, attachment string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.ErrStore.Cause(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.ids.Next()
	m := &Message{
		ID:         strconv.FormatInt(seq, 10),
		Seq:        seq,
		Sender:     sender,
		Recipient:  recipient,
		Text:       text,
		Attachment: attachment,
		CreatedAt:  s.ids.Time(seq),
	}
	k := DMKey(sender, recipient)
	s.byDM[k] = append(s.byDM[k], m)
	cp := *m
	return &cp, nil
}

func (s *MemMessages) Find(_ context.Context, a, b string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.byDM[DMKey(a, b)]
	out := make([]*Message, 0, len(src))
	for _, m := range src {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

type MemUsers struct {
	mu     sync.RWMutex
	byID   map[string]*User
	byName map[string]*User
}

func NewMemUsers() *MemUsers {
	return &MemUsers{byID: make(map[string]*User), byName: make(map[string]*User)}
}

func (s *MemUsers) Create(_ context.Context, username, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return nil, errs.ErrRecordExists.WrapMsg("username taken", "username", username)
	}
	u := &User{ID: ids.GenerateString(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.byID[u.ID] = u
	s.byName[username] = u
	cp := *u
	return &cp, nil
}

func (s *MemUsers) FindByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byName[username]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user", "username", username)
	}
	cp := *u
	return &cp, nil
}

func (s *MemUsers) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user", "id", id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemUsers) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

type MemObjects struct {
	mu   sync.RWMutex
	objs map[string]Object
}

func NewMemObjects() *MemObjects {
	return &MemObjects{objs: make(map[string]Object)}
}

func (s *MemObjects) Upload(ctx context.Context, key, contentType string, data []byte) error {
	if !validKey(key) {
		return errs.ErrArgs.WrapMsg("invalid object key", "key", key)
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	s.objs[key] = Object{Key: key, ContentType: contentType, Data: buf}
	s.mu.Unlock()
	return nil
}

func (s *MemObjects) Open(_ context.Context, key string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objs[key]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("object", "key", key)
	}
	return &o, nil
}
