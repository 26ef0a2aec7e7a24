package cloud115

import (
	"errors"
	"fmt"
	"strings"
)

// Credential is the immutable identity triplet 115 issues at web login,
// taken from the UID, CID, and SEID cookies. All three fields are required;
// the service rejects calls missing any of them.
type Credential struct {
	UID  string
	CID  string
	SEID string
}

// Valid checks the credential shape. It accumulates every problem rather
// than stopping at the first, so users see a complete report.
func (c Credential) Valid() error {
	var errs []error

	if c.UID == "" {
		errs = append(errs, errors.New("uid is required"))
	}

	if c.CID == "" {
		errs = append(errs, errors.New("cid is required"))
	}

	if c.SEID == "" {
		errs = append(errs, errors.New("seid is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCredential, errors.Join(errs...))
	}

	return nil
}

// ParseCookies builds a Credential from a browser-style cookie string,
// e.g. "UID=...; CID=...; SEID=...". Key matching is case-insensitive and
// unrelated cookies are ignored. The result is validated.
func ParseCookies(s string) (Credential, error) {
	var cred Credential

	for _, part := range strings.Split(s, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "UID":
			cred.UID = strings.TrimSpace(value)
		case "CID":
			cred.CID = strings.TrimSpace(value)
		case "SEID":
			cred.SEID = strings.TrimSpace(value)
		}
	}

	if err := cred.Valid(); err != nil {
		return Credential{}, err
	}

	return cred, nil
}
