package assetstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/pixelperm/pixelperm/internal/domain"
)

// Fixed storage keys. The image MIME type is kept in a sidecar file next
// to the bytes so both survive restarts together.
const (
	paramsFile  = "parameters.json"
	imageSuffix = ".img"
	mimeSuffix  = ".mime"
)

// Store is the local asset cache. All entries live under a single
// directory on the provided filesystem.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir on fs, creating the directory if it
// does not exist.
func New(fs afero.Fs, dir string, logger *slog.Logger) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &Store{fs: fs, dir: dir, logger: logger}, nil
}

// SaveImage persists one input image under its role name. Only the source
// and target roles are accepted.
func (s *Store) SaveImage(img domain.ImagePayload) error {
	if err := validRole(img.Name); err != nil {
		return err
	}
	if !img.Present() {
		return fmt.Errorf("refusing to store empty %s image", img.Name)
	}

	if err := afero.WriteFile(s.fs, s.path(img.Name+imageSuffix), img.Data, 0o644); err != nil {
		return fmt.Errorf("failed to store %s image: %w", img.Name, err)
	}
	if err := afero.WriteFile(s.fs, s.path(img.Name+mimeSuffix), []byte(img.MIME), 0o644); err != nil {
		return fmt.Errorf("failed to store %s image type: %w", img.Name, err)
	}

	s.logger.Debug("stored image", "role", img.Name, "bytes", len(img.Data), "mime", img.MIME)
	return nil
}

// LoadImage retrieves a previously stored image by role. Returns
// domain.ErrAssetNotFound if no image is stored under that role.
func (s *Store) LoadImage(name string) (domain.ImagePayload, error) {
	if err := validRole(name); err != nil {
		return domain.ImagePayload{}, err
	}

	data, err := afero.ReadFile(s.fs, s.path(name+imageSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ImagePayload{}, domain.ErrAssetNotFound
		}
		return domain.ImagePayload{}, fmt.Errorf("failed to read %s image: %w", name, err)
	}

	mime, err := afero.ReadFile(s.fs, s.path(name+mimeSuffix))
	if err != nil {
		// Sidecar lost; fall back to sniffing so the image stays usable.
		return domain.NewImagePayload(name, data), nil
	}

	return domain.ImagePayload{Name: name, Data: data, MIME: strings.TrimSpace(string(mime))}, nil
}

// SaveParameters persists the last-used parameter set.
func (s *Store) SaveParameters(p domain.ParameterSet) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path(paramsFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to store parameters: %w", err)
	}
	return nil
}

// LoadParameters retrieves the last-used parameter set. Returns
// domain.ErrAssetNotFound if none has been stored.
func (s *Store) LoadParameters() (domain.ParameterSet, error) {
	data, err := afero.ReadFile(s.fs, s.path(paramsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ParameterSet{}, domain.ErrAssetNotFound
		}
		return domain.ParameterSet{}, fmt.Errorf("failed to read parameters: %w", err)
	}

	var p domain.ParameterSet
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.ParameterSet{}, fmt.Errorf("failed to decode stored parameters: %w", err)
	}
	return p, nil
}

// Clear removes all stored entries. Missing entries are not an error, so
// Clear is idempotent.
func (s *Store) Clear() error {
	names := []string{
		domain.ImageSource + imageSuffix,
		domain.ImageSource + mimeSuffix,
		domain.ImageTarget + imageSuffix,
		domain.ImageTarget + mimeSuffix,
		paramsFile,
	}

	for _, name := range names {
		if err := s.fs.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func validRole(name string) error {
	if name != domain.ImageSource && name != domain.ImageTarget {
		return fmt.Errorf("unknown image role %q", name)
	}
	return nil
}
