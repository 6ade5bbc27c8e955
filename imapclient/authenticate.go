package imapclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-sasl"
	"golang.org/x/text/unicode/norm"

	"github.com/overmail/kamel/internal/imapwire"
)

// Login sends a LOGIN command.
//
// A rejection by the server is returned as an *AuthError.
func (s *Session) Login(ctx context.Context, username, password string) error {
	username = norm.NFC.String(username)
	cmd, err := imapwire.NewEncoder("LOGIN").SP().Quoted(username).SP().Quoted(password).Command()
	if err != nil {
		return fmt.Errorf("imapclient: LOGIN: %w", err)
	}
	ex, err := s.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if err := ex.Wait(ctx); err != nil {
		return authErr(username, err)
	}
	return nil
}

func authErr(username string, err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &AuthError{Username: username, Err: err}
	}
	return err
}

// Authenticate sends an AUTHENTICATE command.
//
// Unlike other commands, this method blocks until the SASL exchange completes.
func (s *Session) Authenticate(ctx context.Context, username string, saslClient sasl.Client) error {
	mech, initialResp, err := saslClient.Start()
	if err != nil {
		return err
	}

	ex, err := s.Execute(ctx, "AUTHENTICATE "+mech)
	if err != nil {
		return err
	}

	for {
		resp, err := ex.Next(ctx)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return authErr(username, err)
		}
		if resp.Kind != ResponseContinuation {
			continue
		}

		challengeStr := strings.TrimSpace(strings.TrimPrefix(resp.Line, "+"))
		if challengeStr == "" && initialResp != nil {
			if err := s.writeSASLResp(initialResp); err != nil {
				return err
			}
			initialResp = nil
			continue
		}

		challenge, err := decodeSASL(challengeStr)
		if err != nil {
			// abort the exchange, the server answers with BAD
			s.writeLine("*")
			ex.Wait(ctx)
			return fmt.Errorf("imapclient: malformed SASL challenge: %w", err)
		}

		saslResp, err := saslClient.Next(challenge)
		if err != nil {
			s.writeLine("*")
			ex.Wait(ctx)
			return err
		}
		if err := s.writeSASLResp(saslResp); err != nil {
			return err
		}
	}
}

func (s *Session) writeSASLResp(resp []byte) error {
	return s.writeLine(base64.StdEncoding.EncodeToString(resp))
}

func decodeSASL(s string) ([]byte, error) {
	if s == "" {
		// go-sasl treats nil as no challenge, so return a non-nil empty
		// byte slice
		return []byte{}, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// authenticateSession logs in with the configured mechanism.
func authenticateSession(ctx context.Context, s *Session, creds Credentials) error {
	switch strings.ToUpper(creds.Mechanism) {
	case "", "LOGIN":
		return s.Login(ctx, creds.Username, creds.Password)
	case sasl.Plain:
		username := norm.NFC.String(creds.Username)
		return s.Authenticate(ctx, username, sasl.NewPlainClient("", username, creds.Password))
	default:
		return &AuthError{Username: creds.Username, Err: fmt.Errorf("unsupported mechanism %q", creds.Mechanism)}
	}
}
