package message

import (
	"errors"
	"strings"
	"testing"

	"github.com/miekg/dns"

	"github.com/haukened/rr-proxy/internal/dns/domain"
	"github.com/haukened/rr-proxy/internal/dns/wirename"
)

// collectNames gathers owner names per section, in traversal order.
func collectNames(t *testing.T, m *Message, section Section) []string {
	t.Helper()
	var names []string
	err := m.Visit(section, func(h *Handle) bool {
		name, err := h.NameString()
		if err != nil {
			t.Fatalf("name failed: %v", err)
		}
		names = append(names, name)
		return false
	})
	if err != nil {
		t.Fatalf("visit failed: %v", err)
	}
	return names
}

func mustWireName(t *testing.T, name string) []byte {
	t.Helper()
	wire, err := wirename.FromString(name, nil)
	if err != nil {
		t.Fatalf("bad name %q: %v", name, err)
	}
	return wire
}

func TestRename_ExactMatch(t *testing.T) {
	wire := packResponse(t, "example.com", dns.TypeA,
		"example.com. 60 IN A 192.0.2.1",
		"other.example.com. 60 IN A 192.0.2.2",
	)
	m, err := Parse(wire)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	target := mustWireName(t, "example.net.")
	source := mustWireName(t, "example.com.")
	if err := m.Rename(target, source, false); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	if got := collectNames(t, m, SectionQuestion); got[0] != "example.net." {
		t.Errorf("question not renamed, got %q", got[0])
	}
	answers := collectNames(t, m, SectionAnswer)
	if answers[0] != "example.net." {
		t.Errorf("exact match not renamed, got %q", answers[0])
	}
	if answers[1] != "other.example.com." {
		t.Errorf("non-exact name must stay untouched, got %q", answers[1])
	}
}

func TestRename_SuffixMatch(t *testing.T) {
	wire := packResponse(t, "www.example.com", dns.TypeA,
		"www.example.com. 60 IN CNAME web.example.com.",
		"web.example.com. 60 IN A 192.0.2.1",
		"notexample.com. 60 IN A 192.0.2.3",
	)
	m, err := Parse(wire)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	target := mustWireName(t, "example.net.")
	source := mustWireName(t, "example.com.")
	if err := m.Rename(target, source, true); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	answers := collectNames(t, m, SectionAnswer)
	want := []string{"www.example.net.", "web.example.net.", "notexample.com."}
	for i, name := range want {
		if answers[i] != name {
			t.Errorf("answer %d: expected %q, got %q", i, name, answers[i])
		}
	}
}

func TestRename_RewritesRDataNames(t *testing.T) {
	wire := packResponse(t, "example.com", dns.TypeANY,
		"example.com. 60 IN CNAME alias.example.com.",
		"example.com. 60 IN MX 10 mail.example.com.",
		"_sip._tcp.example.com. 60 IN SRV 10 20 5060 sip.example.com.",
		"example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 1 7200 900 1209600 86400",
	)
	m, err := Parse(wire)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	target := mustWireName(t, "example.net.")
	source := mustWireName(t, "example.com.")
	if err := m.Rename(target, source, true); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	out, err := m.Bytes()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	decoded := new(dns.Msg)
	if err := decoded.Unpack(out); err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if cname := decoded.Answer[0].(*dns.CNAME); cname.Target != "alias.example.net." {
		t.Errorf("CNAME target not renamed, got %q", cname.Target)
	}
	if mx := decoded.Answer[1].(*dns.MX); mx.Mx != "mail.example.net." || mx.Preference != 10 {
		t.Errorf("MX not renamed or preference lost, got %q pref %d", mx.Mx, mx.Preference)
	}
	if srv := decoded.Answer[2].(*dns.SRV); srv.Target != "sip.example.net." || srv.Port != 5060 {
		t.Errorf("SRV not renamed or fields lost, got %q port %d", srv.Target, srv.Port)
	}
	soa := decoded.Answer[3].(*dns.SOA)
	if soa.Ns != "ns1.example.net." || soa.Mbox != "hostmaster.example.net." {
		t.Errorf("SOA names not renamed, got %q %q", soa.Ns, soa.Mbox)
	}
	if soa.Serial != 1 || soa.Minttl != 86400 {
		t.Errorf("SOA fixed fields lost, got serial %d minttl %d", soa.Serial, soa.Minttl)
	}
}

func TestRename_OverflowLeavesMessageUntouched(t *testing.T) {
	// Owner name sits near the wire-size limit, so swapping the suffix for a
	// longer one pushes it past the budget.
	label := strings.Repeat("a", 60)
	long := label + "." + label + "." + label + "." + "example.com."
	wire := packResponse(t, "example.com", dns.TypeA,
		"example.com. 60 IN A 192.0.2.1",
		long+" 60 IN A 192.0.2.2",
	)
	m, err := Parse(wire)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	target := mustWireName(t, strings.Repeat("b", 60)+"."+strings.Repeat("c", 60)+".example.net.")
	source := mustWireName(t, "example.com.")

	err = m.Rename(target, source, true)
	if !errors.Is(err, domain.ErrNameTooLong) {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}

	// The first answer matched too, but the failure must leave it alone.
	answers := collectNames(t, m, SectionAnswer)
	if answers[0] != "example.com." || answers[1] != long {
		t.Errorf("failed rename must not touch any name, got %v", answers)
	}
}

func TestRename_BadWireNameRejected(t *testing.T) {
	m, err := Parse(packQuery(t, "example.com", dns.TypeA))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	good := mustWireName(t, "example.net.")
	if err := m.Rename([]byte{0xff, 0x00}, good, false); err == nil {
		t.Error("expected invalid target name to be rejected")
	}
	if err := m.Rename(good, []byte{0x01}, false); err == nil {
		t.Error("expected invalid source name to be rejected")
	}
}
