package gatekit

// resolveIdentifiers extracts every namespaced rate-limit key present on
// the request. Order is fixed from most to least specific: user, device,
// email, phone, ip. The first entry is the primary identifier used for
// event attribution; all entries are checked against the ledger.
func resolveIdentifiers(rc RequestContext) []Identifier {
	ids := make([]Identifier, 0, 5)

	if rc.UserID != "" {
		ids = append(ids, Identifier{Kind: IdentifierUser, Value: rc.UserID})
	}
	if rc.Fingerprint != "" {
		ids = append(ids, Identifier{Kind: IdentifierDevice, Value: rc.Fingerprint})
	}
	if rc.Email != "" {
		ids = append(ids, Identifier{Kind: IdentifierEmail, Value: rc.Email})
	}
	if rc.Phone != "" {
		ids = append(ids, Identifier{Kind: IdentifierPhone, Value: rc.Phone})
	}
	if rc.IP != "" {
		ids = append(ids, Identifier{Kind: IdentifierIP, Value: rc.IP})
	}

	return ids
}

// ResolveIdentifiers is the exported form of the gate's identifier
// extraction, for embedders that drive the ledger directly.
func ResolveIdentifiers(rc RequestContext) []Identifier {
	return resolveIdentifiers(rc)
}
