/**
 * @description
 * This package derives the escrow sub-accounts that hold a campaign's funds.
 * Addresses and authority credentials are name-based UUIDs computed from the
 * campaign ID and a fixed label, so they can be re-derived at any time and are
 * never backed by a stored secret.
 *
 * @dependencies
 * - github.com/google/uuid: UUIDv5 (SHA-1 name based) derivation.
 */
package escrow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	LabelCurrencyTreasury = "currency-treasury"
	LabelTokenTreasury    = "token-treasury"

	addressPrefix = "esc_"
)

// DefaultNamespace is used when ESCROW_NAMESPACE is not configured.
var DefaultNamespace = uuid.MustParse("6f1c2a9e-52b4-4c1d-9a43-0d7c6e0b8f15")

// Authority is the credential the ledger accepts for moving funds out of an escrow.
type Authority struct {
	Address    string `json:"address"`
	Credential string `json:"credential"`
}

// Deriver derives escrow addresses within a namespace.
type Deriver struct {
	namespace uuid.UUID
}

// NewDeriver creates a deriver for the given namespace. An empty namespace selects DefaultNamespace.
func NewDeriver(namespace string) (*Deriver, error) {
	trimmed := strings.TrimSpace(namespace)
	if trimmed == "" {
		return &Deriver{namespace: DefaultNamespace}, nil
	}
	ns, err := uuid.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow namespace: %w", err)
	}
	return &Deriver{namespace: ns}, nil
}

// Address returns the escrow address for the campaign and label.
func (d *Deriver) Address(campaignID uuid.UUID, label string) string {
	return addressPrefix + d.derive("address", campaignID, label).String()
}

// Authority returns the address and signing credential for the campaign and label.
func (d *Deriver) Authority(campaignID uuid.UUID, label string) Authority {
	return Authority{
		Address:    d.Address(campaignID, label),
		Credential: d.derive("authority", campaignID, label).String(),
	}
}

// Verify reports whether address is the escrow derived for the campaign and label.
func (d *Deriver) Verify(campaignID uuid.UUID, label, address string) bool {
	return d.Address(campaignID, label) == address
}

func (d *Deriver) derive(purpose string, campaignID uuid.UUID, label string) uuid.UUID {
	name := make([]byte, 0, len(purpose)+len(campaignID)+len(label)+2)
	name = append(name, purpose...)
	name = append(name, '/')
	name = append(name, campaignID[:]...)
	name = append(name, '/')
	name = append(name, label...)
	return uuid.NewSHA1(d.namespace, name)
}
