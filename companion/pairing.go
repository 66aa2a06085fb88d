// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/interterm/lib/clock"
)

// ErrPairingRateLimited is returned for a pairing request less than a
// second after the previous accepted one.
var ErrPairingRateLimited = errors.New("pairing code requested too soon")

// pairingDigits is the length of a pairing code.
const pairingDigits = 8

// PairingIssuer issues pairing codes at most once per second. Safe for
// concurrent use.
type PairingIssuer struct {
	clock   clock.Clock
	limiter *rate.Limiter
}

// NewPairingIssuer returns an issuer whose window is measured on clk.
func NewPairingIssuer(clk clock.Clock) *PairingIssuer {
	return &PairingIssuer{
		clock:   clk,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Issue returns a fresh code, or ErrPairingRateLimited inside the
// window. A rejected request does not extend the window.
func (p *PairingIssuer) Issue() (string, error) {
	if !p.limiter.AllowN(p.clock.Now(), 1) {
		return "", ErrPairingRateLimited
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(pairingDigits), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generating pairing code: %w", err)
	}
	return fmt.Sprintf("%0*d", pairingDigits, n), nil
}
