// Package p11 draws content key material from a PKCS#11 token.
package p11

import (
	"errors"
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"
)

const (
	ErrHsmUnavailable = Error("hsm module could not be loaded")
	ErrHsmLogin       = Error("hsm login error")
	ErrHsmRandom      = Error("hsm random generation error")
	ErrHsmClosed      = Error("hsm session closed")
)

type Pkcs11Session struct {
	mu     sync.Mutex
	ctx    *pkcs11.Ctx
	handle pkcs11.SessionHandle
	closed bool
}

// Open loads module, opens a read-only session on slot and logs in as the
// normal user when pin is set.
func Open(module string, slot uint, pin string) (*Pkcs11Session, error) {
	ctx := pkcs11.New(module)
	if ctx == nil {
		return nil, fmt.Errorf("%w: %s", ErrHsmUnavailable, module)
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, errors.Join(ErrHsmUnavailable, err)
	}
	handle, err := ctx.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		finalize(ctx)
		return nil, errors.Join(ErrHsmUnavailable, err)
	}
	if pin != "" {
		if err := ctx.Login(handle, pkcs11.CKU_USER, pin); err != nil {
			_ = ctx.CloseSession(handle)
			finalize(ctx)
			return nil, errors.Join(ErrHsmLogin, err)
		}
	}
	return NewSession(ctx, handle), nil
}

func NewSession(ctx *pkcs11.Ctx, handle pkcs11.SessionHandle) *Pkcs11Session {
	return &Pkcs11Session{
		handle: handle,
		ctx:    ctx,
	}
}

// Generate returns n random bytes from the token's generator.
func (s *Pkcs11Session) Generate(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx == nil {
		return nil, ErrHsmClosed
	}
	b, err := s.ctx.GenerateRandom(s.handle, n)
	if err != nil {
		return nil, errors.Join(ErrHsmRandom, err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrHsmRandom, len(b), n)
	}
	return b, nil
}

func (s *Pkcs11Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx == nil {
		return nil
	}
	s.closed = true
	_ = s.ctx.Logout(s.handle)
	err := s.ctx.CloseSession(s.handle)
	finalize(s.ctx)
	return err
}

func finalize(ctx *pkcs11.Ctx) {
	_ = ctx.Finalize()
	ctx.Destroy()
}

type Error string

func (e Error) Error() string {
	return string(e)
}
