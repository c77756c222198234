package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type delegationClaims struct {
	ActorID      string `json:"aid"`
	ActorRole    Role   `json:"arl"`
	SubjectID    string `json:"sid"`
	SubjectRole  Role   `json:"srl"`
	SubjectStall string `json:"sst,omitempty"`
	ExpiresAt    int64  `json:"exp"`
}

// Delegator issues and verifies short-lived impersonation tokens. A token
// is base64url(claims) "." base64url(HMAC-SHA256(claims)).
type Delegator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewDelegator(secret string, ttl time.Duration) *Delegator {
	return &Delegator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue lets actor act as subject until the TTL runs out. Admin and system
// identities cannot be impersonated.
func (d *Delegator) Issue(actor, subject Principal) (string, time.Time, error) {
	if err := actor.Require(CapDelegate); err != nil {
		return "", time.Time{}, err
	}
	if actor.Actor != nil {
		return "", time.Time{}, fmt.Errorf("%w: delegated identities cannot delegate", ErrUnauthorized)
	}
	switch subject.Role {
	case RoleCustomer, RoleStaff, RoleStallOwner:
	default:
		return "", time.Time{}, fmt.Errorf("%w: cannot impersonate role %q", ErrUnauthorized, subject.Role)
	}
	if subject.UserID == "" {
		return "", time.Time{}, errors.New("auth: subject id is required")
	}

	exp := d.now().Add(d.ttl)
	body, err := json.Marshal(delegationClaims{
		ActorID: actor.UserID, ActorRole: actor.Role,
		SubjectID: subject.UserID, SubjectRole: subject.Role, SubjectStall: subject.StallID,
		ExpiresAt: exp.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	enc := base64.RawURLEncoding
	payload := enc.EncodeToString(body)
	return payload + "." + enc.EncodeToString(d.mac(payload)), exp, nil
}

// Verify returns the subject principal with Actor set to the issuer.
func (d *Delegator) Verify(token string) (Principal, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Principal{}, fmt.Errorf("%w: malformed delegation", ErrUnauthorized)
	}
	enc := base64.RawURLEncoding
	got, err := enc.DecodeString(sig)
	if err != nil || !hmac.Equal(got, d.mac(payload)) {
		return Principal{}, fmt.Errorf("%w: bad delegation signature", ErrUnauthorized)
	}
	body, err := enc.DecodeString(payload)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: malformed delegation", ErrUnauthorized)
	}
	var c delegationClaims
	if err := json.Unmarshal(body, &c); err != nil {
		return Principal{}, fmt.Errorf("%w: malformed delegation", ErrUnauthorized)
	}
	if d.now().Unix() >= c.ExpiresAt {
		return Principal{}, fmt.Errorf("%w: delegation expired", ErrUnauthorized)
	}
	if !Can(c.ActorRole, CapDelegate) {
		return Principal{}, fmt.Errorf("%w: issuer cannot delegate", ErrUnauthorized)
	}
	return Principal{
		UserID:  c.SubjectID,
		Role:    c.SubjectRole,
		StallID: c.SubjectStall,
		Actor:   &Principal{UserID: c.ActorID, Role: c.ActorRole},
	}, nil
}

func (d *Delegator) mac(payload string) []byte {
	h := hmac.New(sha256.New, d.secret)
	h.Write([]byte(payload))
	return h.Sum(nil)
}
