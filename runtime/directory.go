package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"slices"
	"strings"
)

// Directory is the set of known room names, in creation order.
// It is not safe for concurrent use, the Coordinator guards it.
type Directory struct {
	names []string
}

// NewDirectory seeds the directory. General is always present and first.
func NewDirectory(seed ...string) *Directory {
	d := &Directory{}
	d.Create(domain.General)
	for _, name := range seed {
		d.Create(name)
	}
	return d
}

// Create reports whether the room was added. An existing name is a no-op.
func (d *Directory) Create(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || d.Exists(name) {
		return false
	}
	d.names = append(d.names, name)
	return true
}

func (d *Directory) Delete(name string) error {
	if domain.IsProtected(name) {
		return errors.ErrProtectedRoom
	}
	i := slices.Index(d.names, name)
	if i < 0 {
		return errors.ErrRoomNotFound
	}
	d.names = slices.Delete(d.names, i, i+1)
	return nil
}

func (d *Directory) Exists(name string) bool {
	return slices.Contains(d.names, name)
}

// Names returns a copy of the room list.
func (d *Directory) Names() []string {
	return slices.Clone(d.names)
}
