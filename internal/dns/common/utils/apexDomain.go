package utils

import "golang.org/x/net/publicsuffix"

// GetApexDomain returns the registrable domain (eTLD+1) for a name,
// resolved against the public suffix list. Names without a registrable
// apex, such as bare TLDs or invalid input, come back canonicalized but
// otherwise unchanged.
func GetApexDomain(name string) string {
	name = CanonicalDNSName(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}
