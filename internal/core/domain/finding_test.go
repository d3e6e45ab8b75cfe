package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFindingDefinition(t *testing.T) {
	f := Finding{
		AssetExternalID: 42,
		Address:         "10.0.0.5",
		VulnExternalID:  900,
		Title:           "openssl heartbeat overread",
		Description:     "memory disclosure in the TLS heartbeat extension",
		CVSS:            9.8,
		CVSSVector:      "AV:N/AC:L",
		KnownExploits:   true,
		KnownMalware:    false,
		CVEs:            []string{"CVE-2014-0160"},
		Advisories:      []string{"RHSA-2014:0376"},
		Detected:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		AgeDays:         12,
	}

	def := f.Definition()
	assert.Equal(t, VulnDefinition{
		ExternalID:    900,
		Title:         "openssl heartbeat overread",
		CVSS:          9.8,
		KnownExploits: true,
		KnownMalware:  false,
		Description:   "memory disclosure in the TLS heartbeat extension",
		CVSSVector:    "AV:N/AC:L",
		CVEs:          []string{"CVE-2014-0160"},
		Advisories:    []string{"RHSA-2014:0376"},
	}, def)
	assert.Zero(t, def.ID, "internal id is assigned by the store")
}
