// Package artifact stores produced files in a local content-addressed
// layout so downstream services can resolve them by digest.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Ref points at a stored artifact. The URI scheme is cas:// for stored
// blobs, or a plain local path when no store is configured.
type Ref struct {
	URI    string `json:"uri"`
	SHA256 string `json:"sha256,omitempty"`
	Type   string `json:"type,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
}

// MarshalJSON keeps plain-path refs compatible with clients that expect a
// bare string when content addressing is off.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.SHA256 == "" {
		return json.Marshal(r.URI)
	}
	type alias Ref
	return json.Marshal(alias(r))
}

// UnmarshalJSON accepts both encodings produced by MarshalJSON.
func (r *Ref) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.URI)
	}
	type alias Ref
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Ref(a)
	return nil
}

// Store writes blobs under <dir>/hashed/<sha256>. A Store with an empty
// dir is a pass-through that returns local paths untouched, which keeps
// the service functional in standalone mode.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a content-addressed store rooted at dir. Empty dir
// disables storing.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Enabled reports whether content addressing is configured.
func (s *Store) Enabled() bool { return s.dir != "" }

// PutFile stores the file at path and returns its reference. When the
// store is disabled the local path is returned as-is.
func (s *Store) PutFile(path, mime string) (Ref, error) {
	if !s.Enabled() {
		return Ref{URI: path, Type: mime}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Ref{}, fmt.Errorf("read artifact: %w", err)
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	hashedDir := filepath.Join(s.dir, "hashed")
	if err := os.MkdirAll(hashedDir, 0755); err != nil {
		return Ref{}, fmt.Errorf("create artifact dir: %w", err)
	}
	dest := filepath.Join(hashedDir, digest)
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return Ref{}, fmt.Errorf("store artifact: %w", err)
		}
	}

	ref := Ref{
		URI:    "cas://" + filepath.Join("hashed", digest),
		SHA256: digest,
		Type:   mime,
		Bytes:  int64(len(data)),
	}
	s.logger.Info("artifact stored", "sha256", digest[:12], "bytes", ref.Bytes, "type", mime)
	return ref, nil
}
