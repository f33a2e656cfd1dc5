package refresh

import (
	"fmt"
	"net"
	"strings"
)

// NameResolver turns a host name into its short and fully qualified forms.
type NameResolver interface {
	// Resolve returns the short name and FQDN of a host, trying each of the
	// candidate domains in order when the name is not already qualified.
	Resolve(hostname string, domains []string) (string, string, error)
}

// DNSResolver resolves host names through the system resolver.
type DNSResolver struct{}

// Resolve implements NameResolver. Names are lowercased before resolution.
// A name containing a dot is taken as already qualified and only verified;
// otherwise each candidate domain is appended in order and the first form
// that resolves wins.
func (DNSResolver) Resolve(hostname string, domains []string) (string, string, error) {
	hostname = strings.ToLower(hostname)

	if strings.Contains(hostname, ".") {
		short := strings.SplitN(hostname, ".", 2)[0]

		_, err := net.LookupHost(hostname)
		if err != nil {
			return "", "", fmt.Errorf("Unable to resolve hostname %q: %w", hostname, err)
		}

		return short, hostname, nil
	}

	for _, domain := range domains {
		domain = strings.ToLower(domain)
		if !strings.HasPrefix(domain, ".") {
			domain = "." + domain
		}

		fqdn := hostname + domain

		_, err := net.LookupHost(fqdn)
		if err != nil {
			continue
		}

		return hostname, fqdn, nil
	}

	return "", "", fmt.Errorf("Unable to resolve hostname %q in any candidate domain", hostname)
}
