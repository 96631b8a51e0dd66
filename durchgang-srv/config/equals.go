package config

// HasChanged returns true if the configuration has changed compared to
// another config. This implementation explicitly compares all fields
// without using reflection.
func HasChanged(a, b *Config) bool {
	if a == nil || b == nil {
		return a != b
	}

	if len(a.Servers) != len(b.Servers) {
		return true
	}
	for i := range a.Servers {
		if a.Servers[i].ListenAddress != b.Servers[i].ListenAddress ||
			a.Servers[i].Enabled != b.Servers[i].Enabled {
			return true
		}
	}

	if a.TimeoutSeconds != b.TimeoutSeconds {
		return true
	}
	if a.BufferSize != b.BufferSize {
		return true
	}

	if len(a.ProxyDomains) != len(b.ProxyDomains) {
		return true
	}
	for i := range a.ProxyDomains {
		if a.ProxyDomains[i] != b.ProxyDomains[i] {
			return true
		}
	}

	if !forwardEqual(a.Forward, b.Forward) {
		return true
	}

	if a.Statistics != b.Statistics {
		return true
	}

	return false
}

// forwardEqual compares two Forward interfaces for equality.
func forwardEqual(a, b Forward) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() {
		return false
	}
	switch ta := a.(type) {
	case *ForwardDirect:
		tb, ok := b.(*ForwardDirect)
		return ok && ta.ForceIPv4 == tb.ForceIPv4
	case *ForwardSocks5:
		tb, ok := b.(*ForwardSocks5)
		if !ok {
			return false
		}
		return ta.Address == tb.Address &&
			stringPtrEqual(ta.Username, tb.Username) &&
			stringPtrEqual(ta.Password, tb.Password)
	case *ForwardProxy:
		tb, ok := b.(*ForwardProxy)
		if !ok {
			return false
		}
		return ta.Address == tb.Address &&
			stringPtrEqual(ta.Username, tb.Username) &&
			stringPtrEqual(ta.Password, tb.Password)
	default:
		return false
	}
}

// stringPtrEqual compares two *string values for equality.
func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
