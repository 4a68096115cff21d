// Package mx resolves recipient domains to MX hosts and groups recipients by
// the host their mail should be delivered to.
package mx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/mailit-dev/directmail/internal/mailerr"
)

// Record is one (preference, exchange) tuple from an MX answer.
type Record struct {
	Host       string
	Preference uint16
}

// Group is the set of recipients that share a single delivery target: the
// top-preference MX host for their common domain.
type Group struct {
	Domain     string
	Host       string
	Recipients []string
}

const defaultLookupTimeout = 10 * time.Second

// Resolver looks up MX records for a domain.
type Resolver struct {
	nameserver string
	timeout    time.Duration
}

// NewResolver builds a Resolver querying the given nameserver address
// (host:port). An empty nameserver falls back to the system resolver
// configuration at /etc/resolv.conf, or 8.8.8.8:53 if that cannot be read.
// A zero timeout defaults to 10 seconds and only applies when the passed
// context has no deadline of its own.
func NewResolver(nameserver string, timeout time.Duration) *Resolver {
	if nameserver == "" {
		nameserver = systemResolver()
	}
	if !strings.Contains(nameserver, ":") {
		nameserver += ":53"
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &Resolver{nameserver: nameserver, timeout: timeout}
}

func systemResolver() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err == nil && len(cfg.Servers) > 0 {
		return cfg.Servers[0] + ":53"
	}
	return "8.8.8.8:53"
}

// LookupMX resolves the MX records for domain, sorted ascending by
// preference. Unlike a general-purpose resolver, this library does not fall
// back to a domain's A record when no MX records exist: RFC 5321 treats that
// fallback as a convenience for mail submission agents, but a direct-delivery
// signer needs to know unambiguously where to hand off, so an empty MX set is
// a resolution failure.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]Record, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	c := &dns.Client{}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	m.RecursionDesired = true

	reply, _, err := c.ExchangeContext(ctx, m, r.nameserver)
	if err != nil {
		return nil, mailerr.New(mailerr.MXResolution, domain, err)
	}
	if reply.Rcode != dns.RcodeSuccess {
		return nil, mailerr.New(mailerr.MXResolution, domain,
			fmt.Errorf("DNS query returned %s", dns.RcodeToString[reply.Rcode]))
	}

	var records []Record
	for _, ans := range reply.Answer {
		if rr, ok := ans.(*dns.MX); ok {
			records = append(records, Record{
				Host:       strings.TrimSuffix(rr.Mx, "."),
				Preference: rr.Preference,
			})
		}
	}
	if len(records) == 0 {
		return nil, mailerr.New(mailerr.MXResolution, domain, fmt.Errorf("no MX records found"))
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Preference < records[j].Preference })
	return records, nil
}

// GroupByDomain partitions recipients by the substring after '@'.
func GroupByDomain(recipients []string) map[string][]string {
	byDomain := make(map[string][]string)
	for _, r := range recipients {
		domain := domainOf(r)
		byDomain[domain] = append(byDomain[domain], r)
	}
	return byDomain
}

func domainOf(mailbox string) string {
	if idx := strings.LastIndexByte(mailbox, '@'); idx >= 0 {
		return mailbox[idx+1:]
	}
	return mailbox
}

// ResolveGroups groups recipients by domain and resolves each domain's
// top-preference MX host, looking up distinct domains in parallel. The
// returned order matches a deterministic sort of the domain names, so
// delivery order is reproducible across runs with the same recipient set.
func ResolveGroups(ctx context.Context, resolver *Resolver, recipients []string) ([]Group, error) {
	byDomain := GroupByDomain(recipients)

	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	hosts := make([]string, len(domains))
	g, gctx := errgroup.WithContext(ctx)
	for i, domain := range domains {
		i, domain := i, domain
		g.Go(func() error {
			records, err := resolver.LookupMX(gctx, domain)
			if err != nil {
				return err
			}
			hosts[i] = records[0].Host
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups := make([]Group, len(domains))
	for i, domain := range domains {
		groups[i] = Group{Domain: domain, Host: hosts[i], Recipients: byDomain[domain]}
	}
	return groups, nil
}
