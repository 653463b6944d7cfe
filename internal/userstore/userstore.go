// Package userstore implements the router.Authenticator collaborator:
// user registration and password verification, JSON-file backed since the
// retrieved corpus carries no SQL driver. Password hashing reuses
// kcptun's own PBKDF2-SHA1 derivation (server/main.go's SALT/pbkdf2.Key
// pair), repurposed here with a per-user random salt instead of a single
// process-wide constant.
package userstore

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// ErrUserExists is returned by CreateUser when the username is taken.
var ErrUserExists = errors.New("username already exists")

const (
	pbkdf2Iterations = 4096
	pbkdf2KeyLen     = 32
	saltBytes        = 16
)

type user struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Salt     string `json:"salt"`
	Hash     string `json:"hash"`
}

// Store is a JSON-file-backed user table.
type Store struct {
	mu     sync.Mutex
	path   string
	byName map[string]*user
	nextID int
}

// New loads (or initializes) a user store from path under dataDir.
func New(path string) (*Store, error) {
	s := &Store{path: path, byName: make(map[string]*user), nextID: 1}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrap(err, "userstore: read")
	}
	var users []*user
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, errors.Wrap(err, "userstore: decode")
	}
	for _, u := range users {
		s.byName[u.Username] = u
		if u.ID >= s.nextID {
			s.nextID = u.ID + 1
		}
	}
	return s, nil
}

func (s *Store) saveLocked() error {
	users := make([]*user, 0, len(s.byName))
	for _, u := range s.byName {
		users = append(users, u)
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return errors.Wrap(err, "userstore: encode")
	}
	return errors.Wrap(os.WriteFile(s.path, data, 0o600), "userstore: write")
}

func deriveHash(password string, salt []byte) string {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha1.New)
	return hex.EncodeToString(key)
}

// CreateUser adds a new user with a freshly generated salt. Returns
// ErrUserExists if the username is already registered.
func (s *Store) CreateUser(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return ErrUserExists
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "userstore: generate salt")
	}

	u := &user{
		ID:       s.nextID,
		Username: username,
		Salt:     hex.EncodeToString(salt),
		Hash:     deriveHash(password, salt),
	}
	s.byName[username] = u
	s.nextID++
	return s.saveLocked()
}

// VerifyUser checks username/password against the stored salted hash
// using a constant-time comparison.
func (s *Store) VerifyUser(username, password string) (int, bool, error) {
	s.mu.Lock()
	u, ok := s.byName[username]
	s.mu.Unlock()
	if !ok {
		return 0, false, nil
	}

	salt, err := hex.DecodeString(u.Salt)
	if err != nil {
		return 0, false, errors.Wrap(err, "userstore: decode salt")
	}
	want, err := hex.DecodeString(u.Hash)
	if err != nil {
		return 0, false, errors.Wrap(err, "userstore: decode hash")
	}
	got := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha1.New)

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return 0, false, nil
	}
	return u.ID, true, nil
}
