package wallet

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

const SaveURLPrefix = "https://pay.google.com/gp/v/save/"

type objectRef struct {
	ID string `json:"id"`
}

// SaveURL signs a "skinny" save-to-wallet token that only references objects
// already uploaded, and returns the link the buyer is redirected to.
func SaveURL(creds *Credentials, origins []string, objectIDs ...string) (string, error) {
	if len(objectIDs) == 0 {
		return "", errors.New("no objects to save")
	}
	refs := make([]objectRef, len(objectIDs))
	for i, id := range objectIDs {
		refs[i] = objectRef{ID: id}
	}

	claims := jwt.MapClaims{
		"iss":     creds.ClientEmail,
		"aud":     "google",
		"typ":     "savetowallet",
		"iat":     time.Now().Unix(),
		"origins": origins,
		"payload": map[string]interface{}{
			"eventTicketObjects": refs,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if creds.PrivateKeyID != "" {
		token.Header["kid"] = creds.PrivateKeyID
	}
	signed, err := token.SignedString(creds.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "sign save token")
	}
	return SaveURLPrefix + signed, nil
}
