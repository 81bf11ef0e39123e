package wallet

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Namespace scopes every class and object id to one issuer account and one
// installation, so several installations may share an issuer without collisions.
type Namespace struct {
	IssuerID string
	Salt     string
}

func (n Namespace) ClassID(organizer, event string) string {
	return fmt.Sprintf("%s.pretix-%s-%s-%s", n.IssuerID, n.Salt, organizer, event)
}

// EventID is the issuer-independent event identifier stored on the class.
func (n Namespace) EventID(organizer, event string) string {
	return fmt.Sprintf("pretix-%s-%s-%s", n.Salt, organizer, event)
}

// NewObjectID returns a fresh object id. The random suffix keeps a re-issued ticket
// from ever reusing the id of a shredded object.
func (n Namespace) NewObjectID(organizer, event, orderCode string, positionNo int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s-%d-%s", n.ClassID(organizer, event), orderCode, positionNo, suffix)
}
