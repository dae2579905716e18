package message

import (
	"errors"
	"testing"

	"github.com/miekg/dns"

	"github.com/haukened/rr-proxy/internal/dns/domain"
)

func TestAppendFromString_VisibleToTraversal(t *testing.T) {
	m, err := Parse(packQuery(t, "example.com", dns.TypeA))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if err := m.AppendFromString(SectionAnswer, "localhost.example.com. 3599 IN A 127.0.0.1"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	found := false
	_ = m.Visit(SectionAnswer, func(h *Handle) bool {
		found = true
		name, _ := h.NameString()
		if name != "localhost.example.com." {
			t.Errorf("expected localhost.example.com., got %q", name)
		}
		ttl, _ := h.TTL()
		if ttl != 3599 {
			t.Errorf("expected ttl 3599, got %d", ttl)
		}
		var addr [4]byte
		if _, err := h.Addr(addr[:]); err != nil {
			t.Fatalf("addr failed: %v", err)
		}
		if addr != [4]byte{127, 0, 0, 1} {
			t.Errorf("expected 127.0.0.1, got %v", addr)
		}
		return false
	})
	if !found {
		t.Fatal("appended record not visible to traversal")
	}
}

func TestAppendFromString_SurvivesSerialization(t *testing.T) {
	m, err := Parse(packQuery(t, "example.com", dns.TypeA))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	records := []string{
		"a.example.com. 60 IN AAAA 2001:db8::1",
		"example.com. 60 IN TXT \"hello world\"",
		"example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 1 7200 900 1209600 86400",
		"_sip._tcp.example.com. 60 IN SRV 10 20 5060 sip.example.com.",
	}
	for _, text := range records {
		if err := m.AppendFromString(SectionAnswer, text); err != nil {
			t.Fatalf("append %q failed: %v", text, err)
		}
	}
	out, err := m.Bytes()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	decoded := new(dns.Msg)
	if err := decoded.Unpack(out); err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if len(decoded.Answer) != len(records) {
		t.Fatalf("expected %d answers, got %d", len(records), len(decoded.Answer))
	}
	if txt, ok := decoded.Answer[1].(*dns.TXT); !ok || txt.Txt[0] != "hello world" {
		t.Errorf("unexpected TXT record: %v", decoded.Answer[1])
	}
	if soa, ok := decoded.Answer[2].(*dns.SOA); !ok || soa.Serial != 1 || soa.Minttl != 86400 {
		t.Errorf("unexpected SOA record: %v", decoded.Answer[2])
	}
}

func TestAppendFromString_MalformedAddsNothing(t *testing.T) {
	m, err := Parse(packQuery(t, "example.com", dns.TypeA))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	bad := []string{
		"example.com. 60 IN",
		"example.com. notanumber IN A 127.0.0.1",
		"example.com. 60 CH A 127.0.0.1",
		"example.com. 60 IN A 2001:db8::1",
		"example.com. 60 IN OPT whatever",
	}
	for _, text := range bad {
		if err := m.AppendFromString(SectionAnswer, text); !errors.Is(err, domain.ErrMalformedText) {
			t.Errorf("%q: expected ErrMalformedText, got %v", text, err)
		}
	}
	if m.Count(SectionAnswer) != 0 {
		t.Errorf("malformed appends must add nothing, got %d records", m.Count(SectionAnswer))
	}
}

func TestAppendFromString_QuestionSectionRejected(t *testing.T) {
	m := New(1)
	err := m.AppendFromString(SectionQuestion, "example.com. 60 IN A 127.0.0.1")
	if !errors.Is(err, domain.ErrMalformedText) {
		t.Errorf("expected question-section append to fail, got %v", err)
	}
}
