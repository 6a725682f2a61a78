package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// Roster is the external collaborator owning member records.
type Roster interface {
	Load(ctx context.Context) (*Members, error)
	Save(ctx context.Context, members *Members) error
}

var ErrEmptyPath = errors.New("roster file path is required")

// File stores the roster as a JSON document on disk.
// Both a bare array of members and an object with a "members" key are accepted on load.
type File struct {
	path   string
	logger *zap.Logger
}

func NewFile(path string, logger *zap.Logger) *File {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{path: strings.TrimSpace(path), logger: logger}
}

func (f *File) Path() string { return f.path }

func (f *File) Load(ctx context.Context) (*Members, error) {
	if f.path == "" {
		return nil, ErrEmptyPath
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read roster %q: %w", f.path, err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return &Members{}, nil
	}

	items, err := rawItems(data)
	if err != nil {
		return nil, fmt.Errorf("parse roster %q: %w", f.path, err)
	}

	if err := validateItems(items); err != nil {
		return nil, fmt.Errorf("parse roster %q: %w", f.path, err)
	}

	members, err := decodeMembers(items)
	if err != nil {
		return nil, fmt.Errorf("decode roster %q: %w", f.path, err)
	}

	f.logger.Debug("roster loaded", zap.String("path", f.path), zap.Int("members", members.Len()))

	return members, nil
}

func (f *File) Save(ctx context.Context, members *Members) error {
	if f.path == "" {
		return ErrEmptyPath
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if members == nil {
		members = &Members{}
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open roster %q: %w", f.path, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(members); err != nil {
		return fmt.Errorf("write roster %q: %w", f.path, err)
	}

	f.logger.Debug("roster saved", zap.String("path", f.path), zap.Int("members", members.Len()))

	return nil
}

func rawItems(data []byte) ([]any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	switch typed := doc.(type) {
	case []any:
		return typed, nil
	case map[string]any:
		items, ok := typed["members"].([]any)
		if !ok {
			return nil, errors.New(`expected "members" to be a list`)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unexpected roster document type %T", doc)
	}
}

// decodeMembers converts loosely typed records into members. Exports from the
// club form tool sometimes carry single strings instead of lists or numeric ids,
// so weak typing is enabled.
func decodeMembers(items []any) (*Members, error) {
	var members []*Member
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &members,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(items); err != nil {
		return nil, err
	}

	for idx, member := range members {
		if member == nil || strings.TrimSpace(member.ID) == "" {
			return nil, fmt.Errorf("member at index %d has no id", idx)
		}
		member.Status = Status(strings.ToLower(strings.TrimSpace(string(member.Status))))
		if member.Status == "" {
			member.Status = StatusPending
		}
		q := &member.Questionnaire
		q.Gender = normalize(q.Gender)
		q.GenderPreference = normalize(q.GenderPreference)
	}

	return &Members{Items: members}, nil
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
