package services

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// StaticClients is a ClientStore loaded once from configuration.
type StaticClients map[string]*Client

func (s StaticClients) FindClient(id string) (*Client, error) {
	if c, ok := s[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

// ParseClients parses "id:bcrypt-hash" pairs separated by commas.
// An empty list yields an empty registry.
func ParseClients(list string) (StaticClients, error) {
	out := StaticClients{}
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, hash, ok := strings.Cut(part, ":")
		id, hash = strings.TrimSpace(id), strings.TrimSpace(hash)
		if !ok || id == "" || hash == "" {
			return nil, fmt.Errorf("client entry %q: want id:bcrypt-hash", part)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("client %q: %w", id, err)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("client %q listed twice", id)
		}
		out[id] = &Client{ID: id, SecretHash: []byte(hash)}
	}
	return out, nil
}

var _ ClientStore = StaticClients(nil)
