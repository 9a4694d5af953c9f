package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coffersTech/nanodoc/internal/pkg/security"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenType is the access level of an API token.
type TokenType string

const (
	TokenRead  TokenType = "read"  // GET only
	TokenWrite TokenType = "write" // every method
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token name already in use")
	ErrInvalidType   = errors.New("token type must be read or write")
)

// secretPrefix starts every issued secret: nd_<token id>_<random>.
const secretPrefix = "nd_"

// hashCost is the bcrypt cost for token secrets.
var hashCost = bcrypt.DefaultCost

// APIToken represents a machine-to-machine access key. Only the bcrypt hash
// of the secret is stored.
type APIToken struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Hash      string    `json:"hash"`
	Type      TokenType `json:"type"`
	CreatedAt int64     `json:"created_at"`
}

// Allows reports whether the token may perform an HTTP method.
func (t APIToken) Allows(method string) bool {
	if t.Type == TokenWrite {
		return true
	}
	return method == "GET" || method == "HEAD"
}

// MetaData is the top-level container of catalog.json.
type MetaData struct {
	Tokens      []APIToken `json:"tokens"`
	Collections []string   `json:"collections"`
}

// Catalog handles the persistence and in-memory management of MetaData.
// The file is encrypted at rest with the master key.
type Catalog struct {
	filePath string
	key      []byte
	mu       sync.RWMutex
	data     *MetaData

	// verified caches secrets that already passed a bcrypt check.
	verified sync.Map // secret -> token id
}

// NewCatalog creates a catalog backed by filePath.
func NewCatalog(filePath string, key []byte) *Catalog {
	return &Catalog{
		filePath: filePath,
		key:      key,
		data: &MetaData{
			Tokens:      make([]APIToken, 0),
			Collections: make([]string, 0),
		},
	}
}

// Load reads the catalog from disk. A missing file is an empty catalog.
func (c *Catalog) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	encrypted, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(encrypted) == 0 {
		return nil
	}

	// No fallback to plain JSON
	decrypted, err := security.Decrypt(c.key, encrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt catalog (invalid key or corrupted file): %w", err)
	}

	data := &MetaData{}
	if err := json.Unmarshal(decrypted, data); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	c.data = data
	return nil
}

// saveLocked writes the catalog to disk with encryption.
func (c *Catalog) saveLocked() error {
	jsonData, err := json.Marshal(c.data)
	if err != nil {
		return err
	}

	encrypted, err := security.Encrypt(c.key, jsonData)
	if err != nil {
		return err
	}

	tmp := c.filePath + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, c.filePath)
}

// AddToken issues a new token and returns its secret. The secret is shown
// once and cannot be recovered from the catalog.
func (c *Catalog) AddToken(name string, typ TokenType) (string, APIToken, error) {
	if typ != TokenRead && typ != TokenWrite {
		return "", APIToken{}, ErrInvalidType
	}

	random, err := security.RandomHex(24)
	if err != nil {
		return "", APIToken{}, err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	secret := secretPrefix + id + "_" + random

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), hashCost)
	if err != nil {
		return "", APIToken{}, err
	}

	tok := APIToken{
		ID:        id,
		Name:      name,
		Hash:      string(hash),
		Type:      typ,
		CreatedAt: time.Now().Unix(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.data.Tokens {
		if name != "" && existing.Name == name {
			return "", APIToken{}, ErrTokenExists
		}
	}
	c.data.Tokens = append(c.data.Tokens, tok)
	if err := c.saveLocked(); err != nil {
		c.data.Tokens = c.data.Tokens[:len(c.data.Tokens)-1]
		return "", APIToken{}, err
	}
	return secret, tok, nil
}

// Tokens returns a copy of the issued tokens.
func (c *Catalog) Tokens() []APIToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.data.Tokens)
}

// HasTokens reports whether authentication is in force.
func (c *Catalog) HasTokens() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data.Tokens) > 0
}

// DeleteToken removes a token by ID or name.
func (c *Catalog) DeleteToken(idOrName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.data.Tokens {
		if t.ID == idOrName || t.Name == idOrName {
			c.data.Tokens = append(c.data.Tokens[:i], c.data.Tokens[i+1:]...)
			c.verified.Range(func(k, v any) bool {
				if v == t.ID {
					c.verified.Delete(k)
				}
				return true
			})
			return c.saveLocked()
		}
	}
	return ErrTokenNotFound
}

// Authenticate finds the token a secret belongs to.
func (c *Catalog) Authenticate(secret string) (APIToken, bool) {
	id, ok := tokenID(secret)
	if !ok {
		return APIToken{}, false
	}

	c.mu.RLock()
	idx := slices.IndexFunc(c.data.Tokens, func(t APIToken) bool { return t.ID == id })
	var tok APIToken
	if idx >= 0 {
		tok = c.data.Tokens[idx]
	}
	c.mu.RUnlock()
	if idx < 0 {
		return APIToken{}, false
	}

	if cached, ok := c.verified.Load(secret); ok && cached == id {
		return tok, true
	}
	if bcrypt.CompareHashAndPassword([]byte(tok.Hash), []byte(secret)) != nil {
		return APIToken{}, false
	}
	c.verified.Store(secret, id)
	return tok, true
}

func tokenID(secret string) (string, bool) {
	rest, ok := strings.CutPrefix(secret, secretPrefix)
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "_")
	return id, ok && id != ""
}

// RegisterCollection records a collection name. Known names are a no-op.
func (c *Catalog) RegisterCollection(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(c.data.Collections, name) {
		return nil
	}
	c.data.Collections = append(c.data.Collections, name)
	slices.Sort(c.data.Collections)
	return c.saveLocked()
}

// Collections returns the registered collection names.
func (c *Catalog) Collections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.data.Collections)
}
