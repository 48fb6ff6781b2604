package resources

// Directory is the ACME server's directory resource, kept in its raw decoded
// form so unknown keys survive a save and load.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
type Directory map[string]any

// Endpoint returns the URL stored under the given directory key. The bool is
// false when the key is absent or not a non-empty string.
func (d Directory) Endpoint(name string) (string, bool) {
	rawURL, ok := d[name]
	if !ok {
		return "", false
	}
	switch v := rawURL.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	}
	return "", false
}

// TermsOfService returns the meta.termsOfService URL, if any.
func (d Directory) TermsOfService() string {
	meta, ok := d["meta"].(map[string]any)
	if !ok {
		return ""
	}
	tos, _ := meta["termsOfService"].(string)
	return tos
}
